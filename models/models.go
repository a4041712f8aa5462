package models

import "time"

// Collection names in the backing document store.
const (
	CollectionHelpRequests = "help_requests"
	CollectionKnowledge    = "knowledge_base"
)

// RequestStatus is the lifecycle state of a HelpRequest.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "PENDING"
	RequestStatusResolved RequestStatus = "RESOLVED"
	RequestStatusTimeout  RequestStatus = "TIMEOUT"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusResolved || s == RequestStatusTimeout
}

// HelpRequest is a question escalated to a human supervisor.
type HelpRequest struct {
	ID            string        `json:"id"`
	CallerID      string        `json:"caller_id"`
	CallerContact string        `json:"caller_contact"`
	Question      string        `json:"question"`
	Context       *string       `json:"context,omitempty"`
	Status        RequestStatus `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	Answer        *string       `json:"answer,omitempty"`
	ResolverName  *string       `json:"resolver_name,omitempty"`
}

// KnowledgeSource records where a KnowledgeEntry came from.
type KnowledgeSource string

const (
	KnowledgeSourceSeeded     KnowledgeSource = "SEEDED"
	KnowledgeSourceSupervisor KnowledgeSource = "SUPERVISOR"
)

// KnowledgeEntry is a question/answer pair the agent can reuse.
type KnowledgeEntry struct {
	ID                  string          `json:"id"`
	Question            string          `json:"question"`
	Answer              string          `json:"answer"`
	Source              KnowledgeSource `json:"source"`
	OriginHelpRequestID *string         `json:"origin_help_request_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	UsageCount          int64           `json:"usage_count"`
}

// Match is a KnowledgeEntry selected by similarity search together with its score.
type Match struct {
	Entry KnowledgeEntry
	Score float64
}

// Stats summarises the help request history.
type Stats struct {
	TotalRequests            int     `json:"total_requests"`
	Pending                  int     `json:"pending"`
	Resolved                 int     `json:"resolved"`
	Timeout                  int     `json:"timeout"`
	AvgResolutionTimeMinutes float64 `json:"avg_resolution_time_minutes"`
	ResolutionRate           float64 `json:"resolution_rate"`
	KnowledgeEntries         int     `json:"knowledge_entries"`
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string { return &s }

// Judgment is the outcome of a confidence check on a candidate answer.
// Answer is the text to speak back and is only meaningful when Confident.
type Judgment struct {
	Confident bool   `json:"confident"`
	Answer    string `json:"answer"`
}
