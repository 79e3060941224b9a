package domain

type IntentKind string

const (
	IntentAddIngredient      IntentKind = "add_ingredient"
	IntentDeleteIngredient   IntentKind = "delete_ingredient"
	IntentSetDeliveryTime    IntentKind = "set_delivery_time"
	IntentSetDeliveryEnabled IntentKind = "set_delivery_enabled"
	IntentUnknown            IntentKind = "unknown"
)

// Intent is the structured form of one user command. Only the fields of the
// variant named by Kind are meaningful; the rest stay at their zero value so
// two parses of the same text compare equal with ==.
type Intent struct {
	Kind IntentKind

	// AddIngredient, DeleteIngredient
	Name string
	// AddIngredient
	Quantity float64
	Unit     string

	// SetDeliveryTime, always zero-padded 24-hour HH:MM
	Time string

	// SetDeliveryEnabled
	Enabled bool

	// Unknown
	RawText string
}

func AddIngredient(name string, quantity float64, unit string) Intent {
	return Intent{Kind: IntentAddIngredient, Name: name, Quantity: quantity, Unit: unit}
}

func DeleteIngredient(name string) Intent {
	return Intent{Kind: IntentDeleteIngredient, Name: name}
}

func SetDeliveryTime(hhmm string) Intent {
	return Intent{Kind: IntentSetDeliveryTime, Time: hhmm}
}

func SetDeliveryEnabled(enabled bool) Intent {
	return Intent{Kind: IntentSetDeliveryEnabled, Enabled: enabled}
}

func Unknown(rawText string) Intent {
	return Intent{Kind: IntentUnknown, RawText: rawText}
}

// Transcript is one unit of recognized speech. Interim transcripts are for
// live display only; final ones are dispatched.
type Transcript struct {
	Text    string
	IsFinal bool
}
