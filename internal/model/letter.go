package model

import "time"

type Status string

const (
	Pending Status = "pending"
	Sent    Status = "sent"
	Failed  Status = "failed"
)

// Letter is the persistent record of one scheduled delivery. Content is either
// the plaintext letter or a JSON envelope, depending on IsEncrypted.
type Letter struct {
	ID             int64
	Content        string
	RecipientEmail string
	ScheduledTime  time.Time
	Status         Status
	IsEncrypted    bool
	CreatedAt      time.Time
	SentAt         *time.Time
	ErrorMessage   *string
}
