package appeal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rcm/rcm/internal/domain/denial"
)

type AppealType string

const (
	TypeFirstLevel     AppealType = "first_level"
	TypeSecondLevel    AppealType = "second_level"
	TypeThirdLevel     AppealType = "third_level"
	TypeExternalReview AppealType = "external_review"
)

var validAppealTypes = map[AppealType]bool{
	TypeFirstLevel: true, TypeSecondLevel: true, TypeThirdLevel: true, TypeExternalReview: true,
}

// Label is the human form used in letters, e.g. "First Level".
func (t AppealType) Label() string {
	switch t {
	case TypeSecondLevel:
		return "Second Level"
	case TypeThirdLevel:
		return "Third Level"
	case TypeExternalReview:
		return "External Review"
	default:
		return "First Level"
	}
}

type Status string

const (
	StatusDraft         Status = "draft"
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusSubmitted     Status = "submitted"
	StatusInReview      Status = "in_review"
	StatusWon           Status = "won"
	StatusDenied        Status = "denied"
	StatusPartial       Status = "partial"
)

// AwaitingResponse reports whether the appeal has reached the payer and an
// outcome can be recorded.
func (s Status) AwaitingResponse() bool {
	return s == StatusSubmitted || s == StatusInReview
}

// workflow lists the non-outcome moves; outcomes go through RecordOutcome.
var workflow = map[Status][]Status{
	StatusDraft:         {StatusPendingReview, StatusSubmitted},
	StatusPendingReview: {StatusDraft, StatusApproved, StatusSubmitted},
	StatusApproved:      {StatusSubmitted},
	StatusSubmitted:     {StatusInReview},
}

func canAdvance(from, to Status) bool {
	for _, s := range workflow[from] {
		if s == to {
			return true
		}
	}
	return false
}

type SubmissionMethod string

const (
	MethodMail       SubmissionMethod = "mail"
	MethodFax        SubmissionMethod = "fax"
	MethodPortal     SubmissionMethod = "portal"
	MethodEmail      SubmissionMethod = "email"
	MethodElectronic SubmissionMethod = "electronic"
)

var validMethods = map[SubmissionMethod]bool{
	MethodMail: true, MethodFax: true, MethodPortal: true, MethodEmail: true, MethodElectronic: true,
}

type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomePartial Outcome = "partial"
	OutcomeDenied  Outcome = "denied"
)

var outcomeEvents = map[Outcome]denial.AppealEvent{
	OutcomeWon:     denial.AppealWon,
	OutcomePartial: denial.AppealPartial,
	OutcomeDenied:  denial.AppealDenied,
}

// Appeal maps to the appeal table: one letter-generation attempt against a
// denial.
type Appeal struct {
	ID                    uuid.UUID           `db:"id" json:"id"`
	AppealNumber          string              `db:"appeal_number" json:"appeal_number"`
	DenialID              uuid.UUID           `db:"denial_id" json:"denial_id"`
	TemplateID            *uuid.UUID          `db:"template_id" json:"template_id,omitempty"`
	AppealType            AppealType          `db:"appeal_type" json:"appeal_type"`
	SubjectLine           string              `db:"subject_line" json:"subject_line"`
	LetterBody            string              `db:"letter_body" json:"letter_body"`
	ClinicalJustification *string             `db:"clinical_justification" json:"clinical_justification,omitempty"`
	AdditionalNotes       *string             `db:"additional_notes" json:"additional_notes,omitempty"`
	SupportingDocuments   []string            `db:"supporting_documents" json:"supporting_documents"`
	OptionalDocuments     []string            `db:"optional_documents" json:"optional_documents"`
	DisputedAmount        decimal.Decimal     `db:"disputed_amount" json:"disputed_amount"`
	RequestedAmount       decimal.Decimal     `db:"requested_amount" json:"requested_amount"`
	OutcomeAmount         decimal.NullDecimal `db:"outcome_amount" json:"outcome_amount"`
	Status                Status              `db:"status" json:"status"`
	SubmissionMethod      *SubmissionMethod   `db:"submission_method" json:"submission_method,omitempty"`
	ConfirmationNumber    *string             `db:"confirmation_number" json:"confirmation_number,omitempty"`
	SubmittedAt           *time.Time          `db:"submitted_at" json:"submitted_at,omitempty"`
	ResponseDeadline      time.Time           `db:"response_deadline" json:"response_deadline"`
	ResponseDate          *time.Time          `db:"response_date" json:"response_date,omitempty"`
	ResponseNotes         *string             `db:"response_notes" json:"response_notes,omitempty"`
	AIGenerated           bool                `db:"ai_generated" json:"ai_generated"`
	AIEnhanced            bool                `db:"ai_enhanced" json:"ai_enhanced"`
	AIConfidence          int                 `db:"ai_confidence" json:"ai_confidence"`
	CreatedBy             string              `db:"created_by" json:"created_by"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}

// Template maps to the appeal_template table.
type Template struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	Name                string           `db:"name" json:"name"`
	SubjectTemplate     string           `db:"subject_template" json:"subject_template"`
	BodyTemplate        string           `db:"body_template" json:"body_template"`
	DenialCategory      *denial.Category `db:"denial_category" json:"denial_category,omitempty"`
	IsDefault           bool             `db:"is_default" json:"is_default"`
	Active              bool             `db:"active" json:"active"`
	RequiredAttachments []string         `db:"required_attachments" json:"required_attachments"`
	OptionalAttachments []string         `db:"optional_attachments" json:"optional_attachments"`
	UsageCount          int              `db:"usage_count" json:"usage_count"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

type PracticeInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Fax     string `json:"fax"`
}

type ProviderInfo struct {
	Name        string `json:"name"`
	NPI         string `json:"npi"`
	Credentials string `json:"credentials"`
}

// GenerateOptions are the caller-supplied inputs of GenerateAppeal.
type GenerateOptions struct {
	TemplateID            *uuid.UUID
	AppealType            AppealType
	ClinicalJustification *string
	AdditionalNotes       *string
	PracticeInfo          PracticeInfo
	ProviderInfo          ProviderInfo
}

type GenerateResult struct {
	AppealID          uuid.UUID `json:"appeal_id"`
	AppealNumber      string    `json:"appeal_number"`
	SubjectLine       string    `json:"subject_line"`
	LetterBody        string    `json:"letter_body"`
	RequiredDocuments []string  `json:"required_documents"`
	OptionalDocuments []string  `json:"optional_documents"`
	AIConfidence      int       `json:"ai_confidence"`
	ResponseDeadline  time.Time `json:"response_deadline"`
}

type SubmitInput struct {
	Method             SubmissionMethod
	ConfirmationNumber *string
}

type OutcomeInput struct {
	Outcome Outcome
	Amount  *decimal.Decimal
	Notes   string
}

// NotesInput updates free-text notes; nil fields are left unchanged.
type NotesInput struct {
	AdditionalNotes *string
	ResponseNotes   *string
}
