package domain

type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// DeliverySettings is a partial update of the user's delivery preferences.
// Nil fields are left untouched by the store.
type DeliverySettings struct {
	DeliveryTime    *string `json:"delivery_time,omitempty"`
	DeliveryDate    *string `json:"delivery_date,omitempty"`
	DeliveryEnabled *bool   `json:"delivery_enabled,omitempty"`
	Timezone        *string `json:"timezone,omitempty"`
}

// DeliveryRun asks the backend to generate a plan and deliver it, either now
// or at the scheduled time.
type DeliveryRun struct {
	DeliveryTime    string       `json:"delivery_time"`
	DeliveryDate    string       `json:"delivery_date"`
	DeliveryEnabled bool         `json:"delivery_enabled"`
	Timezone        string       `json:"timezone"`
	SendNow         bool         `json:"send_now"`
	Ingredients     []Ingredient `json:"ingredients"`
}

type DeliveryRunResult struct {
	OK           bool   `json:"ok"`
	WhatsAppSent bool   `json:"whatsapp_sent,omitempty"`
	MealKey      string `json:"meal_key,omitempty"`
}

type SendResult struct {
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
}
