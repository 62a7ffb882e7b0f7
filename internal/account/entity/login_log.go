package entity

import "time"

// LoginOutcome is the result recorded for an authentication attempt.
type LoginOutcome string

const (
	LoginSuccess LoginOutcome = "success"
	LoginFailed  LoginOutcome = "failed"
)

// LoginLogEntry is one append-only row of the `login_logs` table.
type LoginLogEntry struct {
	ID            int64        `json:"id"`
	EventID       string       `json:"event_id"`
	AccountID     int64        `json:"user_id"`
	Outcome       LoginOutcome `json:"login_status"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	IP            string       `json:"login_ip"`
	UserAgent     string       `json:"user_agent"`
	CreatedAt     time.Time    `json:"login_time"`
}
