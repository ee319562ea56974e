package record

import "time"

// ActivityDomain is the domain tag on every activity event this module emits.
const ActivityDomain = "risk-register"

// Activity actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// ActivityEvent is one entry in the activity log. Only primary mutations
// produce events; mirrored writes never do.
type ActivityEvent struct {
	ID         string            `json:"id"`
	Domain     string            `json:"domain"`
	Action     string            `json:"action"`
	EntityKind Kind              `json:"entityKind"`
	Name       string            `json:"name"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	At         time.Time         `json:"at"`
}
