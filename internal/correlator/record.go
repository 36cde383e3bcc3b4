package correlator

import "time"

// Status is the lifecycle state of a pending action.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusConfirmed, StatusFailed, StatusExpired:
		return true
	}
	return false
}

// PendingAction is one outstanding request for physical confirmation:
// a callback was dispatched at a device number and the bridge is waiting
// for the provider to report how that call ended.
type PendingAction struct {
	ID             string     `json:"id"`
	TargetEndpoint string     `json:"target_endpoint"`
	OriginIdentity string     `json:"origin_identity"`
	ActionKind     string     `json:"action_kind"`
	CreatedAt      time.Time  `json:"created_at"`
	Status         Status     `json:"status"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}
