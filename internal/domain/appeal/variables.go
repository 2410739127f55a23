package appeal

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rcm/rcm/internal/domain/denial"
)

const (
	letterDateLayout = "January 2, 2006"
	shortDateLayout  = "01/02/2006"
)

// AppealVariables holds every value a letter template may reference. Missing
// source data is replaced with a bracketed marker such as "[CLAIM NUMBER]" so
// the author can see what still needs filling in.
type AppealVariables struct {
	CurrentDate           string
	PatientName           string
	PatientFirstName      string
	PatientLastName       string
	PatientDOB            string
	MemberID              string
	ClaimNumber           string
	ServiceDate           string
	ProcedureCode         string
	DiagnosisCodes        string
	BilledAmount          string
	DeniedAmount          string
	DenialDate            string
	AppealDeadline        string
	ReasonCode            string
	ReasonDescription     string
	DenialCategory        string
	PayerName             string
	AppealType            string
	ClinicalJustification string
	AdditionalNotes       string
	PracticeName          string
	PracticeAddress       string
	PracticePhone         string
	PracticeFax           string
	ProviderName          string
	ProviderNPI           string
	ProviderCredentials   string
}

// BuildVariables maps a denial context and the generation options onto the
// template variables.
func BuildVariables(dc *denial.Context, opts GenerateOptions, today time.Time) AppealVariables {
	d := dc.Denial
	v := AppealVariables{
		CurrentDate:           today.Format(letterDateLayout),
		PatientName:           "[PATIENT NAME]",
		PatientFirstName:      "[PATIENT FIRST NAME]",
		PatientLastName:       "[PATIENT LAST NAME]",
		PatientDOB:            "[DATE OF BIRTH]",
		MemberID:              "[MEMBER ID]",
		ClaimNumber:           "[CLAIM NUMBER]",
		ServiceDate:           dateOr(d.ServiceDate, "[DATE OF SERVICE]"),
		ProcedureCode:         strOr(d.ProcedureCode, "[PROCEDURE CODE]"),
		DiagnosisCodes:        "[DIAGNOSIS CODES]",
		BilledAmount:          money(d.BilledAmount),
		DeniedAmount:          money(d.DeniedAmount),
		DenialDate:            d.DenialDate.Format(shortDateLayout),
		AppealDeadline:        dateOr(d.AppealDeadline, "[APPEAL DEADLINE]"),
		ReasonCode:            d.ReasonCode,
		ReasonDescription:     strOr(d.ReasonDescription, "[DENIAL REASON]"),
		DenialCategory:        strings.ReplaceAll(string(d.ClassifiedCategory), "_", " "),
		PayerName:             strOr(d.PayerName, "[PAYER NAME]"),
		AppealType:            opts.AppealType.Label(),
		ClinicalJustification: strOr(opts.ClinicalJustification, "[CLINICAL JUSTIFICATION]"),
		AdditionalNotes:       strOr(opts.AdditionalNotes, ""),
		PracticeName:          nonEmpty(opts.PracticeInfo.Name, "[PRACTICE NAME]"),
		PracticeAddress:       nonEmpty(opts.PracticeInfo.Address, "[PRACTICE ADDRESS]"),
		PracticePhone:         nonEmpty(opts.PracticeInfo.Phone, "[PRACTICE PHONE]"),
		PracticeFax:           nonEmpty(opts.PracticeInfo.Fax, "[PRACTICE FAX]"),
		ProviderName:          nonEmpty(opts.ProviderInfo.Name, "[PROVIDER NAME]"),
		ProviderNPI:           nonEmpty(opts.ProviderInfo.NPI, "[PROVIDER NPI]"),
		ProviderCredentials:   nonEmpty(opts.ProviderInfo.Credentials, "[CREDENTIALS]"),
	}
	if len(d.DiagnosisCodes) > 0 {
		v.DiagnosisCodes = strings.Join(d.DiagnosisCodes, ", ")
	}

	if c := dc.Claim; c != nil {
		v.ClaimNumber = strOr(c.ClaimNumber, v.ClaimNumber)
		v.MemberID = strOr(c.MemberID, v.MemberID)
		if opts.ProviderInfo.Name == "" {
			v.ProviderName = strOr(c.ProviderName, v.ProviderName)
		}
		if opts.ProviderInfo.NPI == "" {
			v.ProviderNPI = strOr(c.ProviderNPI, v.ProviderNPI)
		}
	}

	if p := dc.Patient; p != nil {
		v.PatientFirstName = strOr(p.FirstName, v.PatientFirstName)
		v.PatientLastName = strOr(p.LastName, v.PatientLastName)
		if p.FirstName != nil || p.LastName != nil {
			v.PatientName = strings.TrimSpace(strOr(p.FirstName, "") + " " + strOr(p.LastName, ""))
		}
		v.PatientDOB = dateOr(p.DateOfBirth, v.PatientDOB)
	}
	return v
}

// Map returns the variables keyed by their lower-case placeholder names.
func (v AppealVariables) Map() map[string]string {
	return map[string]string{
		"current_date":           v.CurrentDate,
		"patient_name":           v.PatientName,
		"patient_first_name":     v.PatientFirstName,
		"patient_last_name":      v.PatientLastName,
		"patient_dob":            v.PatientDOB,
		"member_id":              v.MemberID,
		"claim_number":           v.ClaimNumber,
		"service_date":           v.ServiceDate,
		"procedure_code":         v.ProcedureCode,
		"diagnosis_codes":        v.DiagnosisCodes,
		"billed_amount":          v.BilledAmount,
		"denied_amount":          v.DeniedAmount,
		"denial_date":            v.DenialDate,
		"appeal_deadline":        v.AppealDeadline,
		"reason_code":            v.ReasonCode,
		"reason_description":     v.ReasonDescription,
		"denial_category":        v.DenialCategory,
		"payer_name":             v.PayerName,
		"appeal_type":            v.AppealType,
		"clinical_justification": v.ClinicalJustification,
		"additional_notes":       v.AdditionalNotes,
		"practice_name":          v.PracticeName,
		"practice_address":       v.PracticeAddress,
		"practice_phone":         v.PracticePhone,
		"practice_fax":           v.PracticeFax,
		"provider_name":          v.ProviderName,
		"provider_npi":           v.ProviderNPI,
		"provider_credentials":   v.ProviderCredentials,
	}
}

func strOr(s *string, fallback string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return fallback
	}
	return *s
}

func nonEmpty(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func dateOr(t *time.Time, fallback string) string {
	if t == nil {
		return fallback
	}
	return t.Format(shortDateLayout)
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
