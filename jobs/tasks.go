package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPasswordReset delivers a password reset link by email.
	TaskPasswordReset = "auth:password_reset"
	// TaskSessionsPurge removes expired sign-in sessions.
	TaskSessionsPurge = "auth:sessions_purge"
)

// PasswordResetPayload describes the reset email to send.
type PasswordResetPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Link  string `json:"link"`
}

func (p PasswordResetPayload) validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return errors.New("password reset: email required")
	}
	if strings.TrimSpace(p.Link) == "" {
		return errors.New("password reset: link required")
	}
	return nil
}

// NewPasswordResetTask constructs an Asynq task for a reset email.
func NewPasswordResetTask(payload PasswordResetPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPasswordReset, data, asynq.MaxRetry(5)), nil
}

// SessionsPurgePayload carries the purge options.
type SessionsPurgePayload struct {
	// GraceHours keeps sessions that expired less than this many hours ago.
	GraceHours int `json:"grace_hours"`
}

// NewSessionsPurgeTask constructs the periodic purge task.
func NewSessionsPurgeTask(graceHours int) (*asynq.Task, error) {
	if graceHours < 0 {
		graceHours = 0
	}
	data, err := json.Marshal(SessionsPurgePayload{GraceHours: graceHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionsPurge, data), nil
}
