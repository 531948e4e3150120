package audit

import "time"

// Outcome values recorded on an event.
const (
	OutcomeAllow = "allow"
	OutcomeDeny  = "deny"
)

// Event is one write-once authorization decision record. It carries
// enough to reconstruct who tried what, when, with what result,
// without joining against identity state that may have since changed.
type Event struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	IdentityID string    `json:"identity_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	Detail     string    `json:"detail,omitempty"`
}

// TimelineFilters narrows the decision timeline listing.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Identity string
	Outcome  string
	Reason   string
	Page     int
	PageSize int
}

// PagingInfo describes the timeline page that was returned.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Events []Event
	Paging PagingInfo
}
