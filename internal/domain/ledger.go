package domain

import "time"

type LedgerStatus string

const (
	LedgerStatusProcessing LedgerStatus = "processing"
	LedgerStatusApplied    LedgerStatus = "applied"
	LedgerStatusSkipped    LedgerStatus = "skipped"
	LedgerStatusFailed     LedgerStatus = "failed"
)

func (s LedgerStatus) IsValid() bool {
	switch s {
	case LedgerStatusProcessing, LedgerStatusApplied, LedgerStatusSkipped, LedgerStatusFailed:
		return true
	default:
		return false
	}
}

func (s LedgerStatus) IsTerminal() bool {
	return s == LedgerStatusApplied || s == LedgerStatusSkipped || s == LedgerStatusFailed
}

type Admission int

const (
	Admitted Admission = iota + 1
	AlreadyProcessing
	AlreadyProcessed
)

func (a Admission) String() string {
	switch a {
	case Admitted:
		return "admitted"
	case AlreadyProcessing:
		return "already_processing"
	case AlreadyProcessed:
		return "already_processed"
	default:
		return "unknown"
	}
}

type IdempotencyRecord struct {
	EventID       string
	EventType     EventType
	SubjectID     string
	Status        LedgerStatus
	FailureReason *string
	ReceivedAt    time.Time
	StartedAt     time.Time
	ProcessedAt   *time.Time
}
