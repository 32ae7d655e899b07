package scheduler

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a scheduled job.
type Status string

const (
	// StatusPending is the durable rest state before firing.
	StatusPending Status = "pending"
	// StatusFiring marks a job claimed by a sweep. It is transient: a
	// job found in this state at startup is returned to pending.
	StatusFiring Status = "firing"
	// StatusDone marks a job whose handler completed.
	StatusDone Status = "done"
	// StatusFailed marks a job whose handler returned an error. Failed
	// jobs are not re-enqueued automatically.
	StatusFailed Status = "failed"
)

// Job is a durable record of a single future action.
type Job struct {
	ID        string
	Action    string
	Payload   json.RawMessage
	DueAt     time.Time
	Status    Status
	LastError string
	FiredAt   *time.Time
	CreatedAt time.Time
}

// Due reports whether the job's due time has passed.
func (j *Job) Due(now time.Time) bool {
	return !j.DueAt.After(now)
}
