package audit

import (
	"time"

	"github.com/google/uuid"
)

type ActionType string

const (
	ActionDenialCreated   ActionType = "denial_created"
	ActionAppealGenerated ActionType = "appeal_generated"
	ActionAppealSubmitted ActionType = "appeal_submitted"
	ActionOutcomeRecorded ActionType = "outcome_recorded"
	ActionStatusChanged   ActionType = "status_changed"
)

var validActionTypes = map[ActionType]bool{
	ActionDenialCreated:   true,
	ActionAppealGenerated: true,
	ActionAppealSubmitted: true,
	ActionOutcomeRecorded: true,
	ActionStatusChanged:   true,
}

// Entry maps to the denial_audit table. Rows are never updated or deleted.
type Entry struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	DenialID    uuid.UUID  `db:"denial_id" json:"denial_id"`
	AppealID    *uuid.UUID `db:"appeal_id" json:"appeal_id,omitempty"`
	ActionType  ActionType `db:"action_type" json:"action_type"`
	Description string     `db:"description" json:"description"`
	PerformedBy string     `db:"performed_by" json:"performed_by"`
	Timestamp   time.Time  `db:"created_at" json:"timestamp"`
}
