package mailer

import "time"

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

type Kind string

const (
	KindVerify  Kind = "verify"
	KindReset   Kind = "reset"
	KindWelcome Kind = "welcome"
)

// Job is one outbound mail, delivered by the worker.
type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	Kind    Kind   `gorm:"type:varchar(16);index;not null"`
	To      string `gorm:"column:recipient;type:varchar(255);index;not null"`
	Subject string `gorm:"type:varchar(255);not null"`
	Body    string `gorm:"type:text;not null"`

	// Same key, same mail: a second enqueue returns the first job.
	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex"`

	Status   JobStatus `gorm:"type:varchar(16);index;not null"`
	Attempts int       `gorm:"not null;default:0"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	SentAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Job) TableName() string { return "mail_jobs" }
