package jobs

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Statuses lists every job status in lifecycle order.
var Statuses = []Status{StatusPending, StatusRunning, StatusSuccess, StatusFailed}

// Finished reports whether no worker will pick the job up again.
func (s Status) Finished() bool {
	return s == StatusSuccess || s == StatusFailed
}

type EnqueueRequest struct {
	Channel   string
	DedupeKey string
	Payload   Payload
}

// Payload is the serialized translation file handed to a delivery channel.
type Payload struct {
	LanguageCode string `json:"language_code"`
	FileName     string `json:"file_name"`
	EntryCount   int    `json:"entry_count"`
	Content      string `json:"-"`
}

type DeliveryJob struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	DedupeKey string    `json:"dedupe_key"`
	Payload   Payload   `json:"payload"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
