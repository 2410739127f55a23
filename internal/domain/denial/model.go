package denial

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category is the closed denial taxonomy used to pick appeal templates.
type Category string

const (
	CategoryMedicalNecessity       Category = "medical_necessity"
	CategoryCodingError            Category = "coding_error"
	CategoryAuthorization          Category = "authorization"
	CategoryEligibility            Category = "eligibility"
	CategoryTimelyFiling           Category = "timely_filing"
	CategoryDuplicate              Category = "duplicate"
	CategoryBundling               Category = "bundling"
	CategoryCoordinationOfBenefits Category = "coordination_of_benefits"
	CategoryOther                  Category = "other"
)

var validCategories = map[Category]bool{
	CategoryMedicalNecessity:       true,
	CategoryCodingError:            true,
	CategoryAuthorization:          true,
	CategoryEligibility:            true,
	CategoryTimelyFiling:           true,
	CategoryDuplicate:              true,
	CategoryBundling:               true,
	CategoryCoordinationOfBenefits: true,
	CategoryOther:                  true,
}

func (c Category) Valid() bool { return validCategories[c] }

type Status string

const (
	StatusNew          Status = "new"
	StatusReviewing    Status = "reviewing"
	StatusAppealing    Status = "appealing"
	StatusCorrecting   Status = "correcting"
	StatusResubmitting Status = "resubmitting"
	StatusResolved     Status = "resolved"
	StatusWrittenOff   Status = "written_off"
)

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions are permitted.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusWrittenOff
}

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank orders priorities from most to least urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 3
	}
}

// Resolution types written when a denial reaches resolved or written_off.
const (
	ResolutionAppealWon  = "appeal_won"
	ResolutionManual     = "manual"
	ResolutionWrittenOff = "written_off"
)

// Denial maps to the denial table: one denied claim line.
type Denial struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	ClaimID            *uuid.UUID      `db:"claim_id" json:"claim_id,omitempty"`
	PatientID          *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	BilledAmount       decimal.Decimal `db:"billed_amount" json:"billed_amount"`
	DeniedAmount       decimal.Decimal `db:"denied_amount" json:"denied_amount"`
	ReasonCode         string          `db:"reason_code" json:"reason_code"`
	ReasonDescription  *string         `db:"reason_description" json:"reason_description,omitempty"`
	ClassifiedCategory Category        `db:"classified_category" json:"classified_category"`
	RootCause          *string         `db:"root_cause" json:"root_cause,omitempty"`
	PayerName          *string         `db:"payer_name" json:"payer_name,omitempty"`
	ProcedureCode      *string         `db:"procedure_code" json:"procedure_code,omitempty"`
	DiagnosisCodes     []string        `db:"diagnosis_codes" json:"diagnosis_codes"`
	DenialDate         time.Time       `db:"denial_date" json:"denial_date"`
	ServiceDate        *time.Time      `db:"service_date" json:"service_date,omitempty"`
	AppealDeadline     *time.Time      `db:"appeal_deadline" json:"appeal_deadline,omitempty"`
	Status             Status          `db:"status" json:"status"`
	Priority           Priority        `db:"priority" json:"priority"`
	ResolutionType     *string         `db:"resolution_type" json:"resolution_type,omitempty"`
	ResolvedAt         *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
	CreatedBy          string          `db:"created_by" json:"created_by"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// DaysUntilDeadline returns whole calendar days from today until the appeal
// deadline, negative when past due, nil when there is no deadline.
func (d *Denial) DaysUntilDeadline(today time.Time) *int {
	if d.AppealDeadline == nil {
		return nil
	}
	days := int(dateOf(*d.AppealDeadline).Sub(dateOf(today)).Hours() / 24)
	return &days
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClaimSummary is the claim projection needed to address an appeal letter.
type ClaimSummary struct {
	ID           uuid.UUID `json:"id"`
	ClaimNumber  *string   `json:"claim_number,omitempty"`
	MemberID     *string   `json:"member_id,omitempty"`
	ProviderName *string   `json:"provider_name,omitempty"`
	ProviderNPI  *string   `json:"provider_npi,omitempty"`
}

// PatientSummary is the patient projection needed to address an appeal letter.
type PatientSummary struct {
	ID          uuid.UUID  `json:"id"`
	FirstName   *string    `json:"first_name,omitempty"`
	LastName    *string    `json:"last_name,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// Context is a denial joined with its optional claim and patient.
type Context struct {
	Denial  *Denial
	Claim   *ClaimSummary
	Patient *PatientSummary
}

// ListFilter narrows ListDenials. Zero values mean no filter.
type ListFilter struct {
	Status   Status
	Category Category
	Limit    int
	Offset   int
}
