package models

import "time"

// JobKind distinguishes the two shapes of scheduled work
type JobKind string

const (
	// JobOneShot fires once at FireAt and is discarded
	JobOneShot JobKind = "one_shot"
	// JobPeriodic fires at FireAt and then every Period
	JobPeriodic JobKind = "periodic"
)

// ScheduledJob is a pending reminder or the daily catch-up job
type ScheduledJob struct {
	Seq     int64         `json:"seq"` // Insertion sequence assigned by the store
	Key     string        `json:"key"` // Word ID or a fixed periodic key
	Kind    JobKind       `json:"kind"`
	FireAt  time.Time     `json:"fire_at"`
	Period  time.Duration `json:"period,omitempty"`  // Periodic jobs only
	Payload string        `json:"payload,omitempty"` // Display text snapshot for one-shot jobs
}
