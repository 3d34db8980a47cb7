package model

import "time"

type NotificationKind string

func (k NotificationKind) String() string {
	return string(k)
}

const (
	KindDailySummary   NotificationKind = "daily_summary"
	KindMonthlySummary NotificationKind = "monthly_summary"
	KindAlert          NotificationKind = "alert"
	KindLive           NotificationKind = "live"
)

// Notification is one outgoing message. Text is ready for a chat transport,
// Summaries carry the numbers for structured sinks.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Text      string           `json:"text"`
	Summaries []DeviceSummary  `json:"summaries,omitempty"`
	At        time.Time        `json:"at"`
}
