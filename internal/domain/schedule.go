package domain

import "time"

// ScheduleRequest is a user selection of when a delivery should happen.
// An empty Date means a bare time-of-day, as set by voice.
type ScheduleRequest struct {
	Date     string `json:"date,omitempty"`
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
}

func (r ScheduleRequest) HasDate() bool {
	return r.Date != ""
}

type ScheduleDecision struct {
	TargetInstant time.Time `json:"target_instant"`
	SendNow       bool      `json:"send_now"`
	// RolledOver is set when a bare time already passed today and the
	// target moved to the next day.
	RolledOver bool `json:"rolled_over"`
}
