package domain

import "time"

// RemediationNotice tells the out-of-band remediation consumer that an event
// was ledgered as failed and will not be reprocessed automatically.
type RemediationNotice struct {
	EventID      string    `json:"event_id"`
	EventType    EventType `json:"event_type"`
	ProviderType string    `json:"provider_type"`
	SubjectID    string    `json:"subject_id"`
	Reason       string    `json:"reason"`
	Detail       string    `json:"detail,omitempty"`
	FailedAt     time.Time `json:"failed_at"`
}
