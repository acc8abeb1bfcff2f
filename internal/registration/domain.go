// Package registration implements the organization self-registration workflow:
// the step state machine, field validation, draft persistence, debounced
// lookups and the final multipart submission.
package registration

import (
	"strings"

	"golang.org/x/text/cases"
)

// Limits enforced by the data model.
const (
	MaxActivityCodes = 3
	MaxContacts      = 7
)

// IdentifierType enumerates the identifier kinds accepted for organizations and representatives.
type IdentifierType string

const (
	// IdentifierTaxID is the national tax identifier (NIT), checksum protected.
	IdentifierTaxID IdentifierType = "NIT"
	// IdentifierNationalID is the personal national identity document.
	IdentifierNationalID IdentifierType = "CC"
)

// Step identifies one phase of the wizard.
type Step int

const (
	StepOrganization Step = iota
	StepRepresentative
	StepContacts
	StepConfirmation
)

// StepCount is the number of steps in the fixed sequence.
const StepCount = 4

// Valid reports whether the step lies inside the fixed sequence.
func (s Step) Valid() bool {
	return s >= StepOrganization && s <= StepConfirmation
}

func (s Step) String() string {
	switch s {
	case StepOrganization:
		return "organization"
	case StepRepresentative:
		return "representative"
	case StepContacts:
		return "contacts"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

// SubmissionStatus is the coarse submission lifecycle.
type SubmissionStatus string

const (
	StatusEditing    SubmissionStatus = "editing"
	StatusSubmitting SubmissionStatus = "submitting"
	StatusSucceeded  SubmissionStatus = "succeeded"
	StatusFailed     SubmissionStatus = "failed"
)

// SubmissionState pairs the status with the failure message, if any.
type SubmissionState struct {
	Status  SubmissionStatus `json:"status"`
	Message string           `json:"message,omitempty"`
}

// DocumentKind names the two supporting documents.
type DocumentKind string

const (
	DocumentIncorporation   DocumentKind = "incorporation_certificate"
	DocumentTaxRegistration DocumentKind = "tax_registration"
)

// DocumentRef references an uploaded document. File contents never live in the draft.
type DocumentRef struct {
	Kind        DocumentKind `json:"kind"`
	FileName    string       `json:"file_name"`
	ContentType string       `json:"content_type,omitempty"`
	Size        int64        `json:"size,omitempty"`
}

// ActivityCode is an economic-activity classification entry.
type ActivityCode struct {
	ID    int64  `json:"id"`
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Organization holds the data captured on the first step.
type Organization struct {
	LegalName      string         `json:"legal_name"`
	TradeName      string         `json:"trade_name"`
	IdentifierType IdentifierType `json:"identifier_type"`
	Identifier     string         `json:"identifier"`
	Sector         string         `json:"sector"`
	SectorAlt      string         `json:"sector_alt"`
	Size           string         `json:"size"`
	InsurerCode    string         `json:"insurer_code"`
	Country        string         `json:"country"`
	City           string         `json:"city"`
	CityID         int64          `json:"city_id,omitempty"`
	Address        string         `json:"address"`
	Website        string         `json:"website"`
	Description    string         `json:"description"`
	ActivityCodes  []ActivityCode `json:"activity_codes"`
	EmailDomains   []string       `json:"email_domains"`
	Documents      []DocumentRef  `json:"-"`
}

// Representative holds the legal representative identity.
type Representative struct {
	FirstName      string         `json:"first_name"`
	MiddleName     string         `json:"middle_name"`
	LastName       string         `json:"last_name"`
	SecondLastName string         `json:"second_last_name"`
	IdentifierType IdentifierType `json:"identifier_type"`
	Identifier     string         `json:"identifier"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone"`
	Country        string         `json:"country"`
	City           string         `json:"city"`
	CityID         int64          `json:"city_id,omitempty"`
	Address        string         `json:"address"`
}

// Contact is an additional organization contact.
type Contact struct {
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Position           string `json:"position"`
	PracticeSupervisor bool   `json:"practice_supervisor"`
}

// blank reports whether nothing has been typed into the contact yet.
func (c Contact) blank() bool {
	return strings.TrimSpace(c.FirstName) == "" &&
		strings.TrimSpace(c.LastName) == "" &&
		strings.TrimSpace(c.Email) == "" &&
		strings.TrimSpace(c.Phone) == "" &&
		strings.TrimSpace(c.Position) == "" &&
		!c.PracticeSupervisor
}

// Draft is the single mutable aggregate the wizard operates on.
type Draft struct {
	Organization       Organization
	Representative     Representative
	AdditionalContacts []Contact
	Step               Step
	Submission         SubmissionState

	// Honeypot mirrors the hidden anti-automation input. It is never persisted.
	Honeypot string
}

// NewDraft returns an empty draft positioned on the first step.
func NewDraft() Draft {
	return Draft{
		Organization: Organization{IdentifierType: IdentifierTaxID},
		Representative: Representative{
			IdentifierType: IdentifierNationalID,
		},
		Step:       StepOrganization,
		Submission: SubmissionState{Status: StatusEditing},
	}
}

// HasInput reports whether any organization or representative field was filled in.
func (d Draft) HasInput() bool {
	o, r := d.Organization, d.Representative
	for _, v := range []string{
		o.LegalName, o.TradeName, o.Identifier, o.Sector, o.SectorAlt, o.Size, o.InsurerCode,
		o.Country, o.City, o.Address, o.Website, o.Description,
		r.FirstName, r.MiddleName, r.LastName, r.SecondLastName, r.Identifier, r.Email,
		r.Phone, r.Country, r.City, r.Address,
	} {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return len(o.ActivityCodes) > 0 || len(o.EmailDomains) > 0
}

// Normalize enforces the data-model invariants in place: email domains are
// folded and de-duplicated, activity codes are unique and capped, contacts
// are capped and the step is clamped to the sequence.
func (d *Draft) Normalize() {
	d.Organization.EmailDomains = normalizeDomains(d.Organization.EmailDomains)
	d.Organization.ActivityCodes = normalizeActivityCodes(d.Organization.ActivityCodes)
	if len(d.AdditionalContacts) > MaxContacts {
		d.AdditionalContacts = d.AdditionalContacts[:MaxContacts]
	}
	if d.Step < StepOrganization {
		d.Step = StepOrganization
	}
	if d.Step > StepConfirmation {
		d.Step = StepConfirmation
	}
	if d.Submission.Status == "" {
		d.Submission.Status = StatusEditing
	}
}

// Clone returns a deep copy so callers can read state without holding locks.
func (d Draft) Clone() Draft {
	out := d
	out.Organization.ActivityCodes = append([]ActivityCode(nil), d.Organization.ActivityCodes...)
	out.Organization.EmailDomains = append([]string(nil), d.Organization.EmailDomains...)
	out.Organization.Documents = append([]DocumentRef(nil), d.Organization.Documents...)
	out.AdditionalContacts = append([]Contact(nil), d.AdditionalContacts...)
	return out
}

// NormalizeDomain folds an email domain and strips a leading "@".
func NormalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	domain = strings.TrimPrefix(domain, "@")
	return cases.Fold().String(domain)
}

func normalizeDomains(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, raw := range domains {
		domain := NormalizeDomain(raw)
		if domain == "" {
			continue
		}
		if _, ok := seen[domain]; ok {
			continue
		}
		seen[domain] = struct{}{}
		out = append(out, domain)
	}
	return out
}

func normalizeActivityCodes(codes []ActivityCode) []ActivityCode {
	if len(codes) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(codes))
	out := make([]ActivityCode, 0, MaxActivityCodes)
	for _, code := range codes {
		key := strings.TrimSpace(code.Code)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		if len(out) == MaxActivityCodes {
			break
		}
		seen[key] = struct{}{}
		code.Code = key
		out = append(out, code)
	}
	return out
}
