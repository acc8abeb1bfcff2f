package registration

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	// validator's email tag accepts dotless hosts; the registry requires local@domain.tld.
	emailShape = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@.]+$`)
)

// ValidEmail reports whether email has the local@domain.tld shape.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return false
	}
	return emailShape.MatchString(email)
}

// EmailDomain returns the folded domain part of email, or "" when there is none.
func EmailDomain(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndexByte(email, '@')
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return NormalizeDomain(email[at+1:])
}

// EmailMatchesDomains reports whether the domain of email belongs to domains.
// Every email matches an empty domain set.
func EmailMatchesDomains(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	domain := EmailDomain(email)
	if domain == "" {
		return false
	}
	for _, accepted := range domains {
		if NormalizeDomain(accepted) == domain {
			return true
		}
	}
	return false
}

func acceptedDomainsList(domains []string) string {
	parts := make([]string, 0, len(domains))
	for _, d := range domains {
		parts = append(parts, "@"+NormalizeDomain(d))
	}
	return strings.Join(parts, ", ")
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// ValidateStep runs the policy of a single step against the draft and
// returns the first violation found, or nil. The confirmation step has no
// field rules of its own.
func ValidateStep(d Draft, step Step) *ValidationError {
	switch step {
	case StepOrganization:
		return validateOrganization(d.Organization)
	case StepRepresentative:
		return validateRepresentative(d.Representative, d.Organization.EmailDomains)
	case StepContacts:
		return validateContacts(d.AdditionalContacts, d.Organization.EmailDomains)
	default:
		return nil
	}
}

// ValidateAll runs every data-entry step in order and returns the first violation.
func ValidateAll(d Draft) *ValidationError {
	for step := StepOrganization; step < StepConfirmation; step++ {
		if verr := ValidateStep(d, step); verr != nil {
			return verr
		}
	}
	return nil
}

func validateOrganization(o Organization) *ValidationError {
	const step = StepOrganization
	if blank(o.LegalName) {
		return fieldError(step, "legal_name", ErrRequired, "legal name is required")
	}
	if blank(o.Identifier) {
		return fieldError(step, "identifier", ErrRequired, "identifier is required")
	}
	if o.IdentifierType == IdentifierTaxID {
		switch err := CheckTaxID(o.Identifier); err {
		case nil:
		case ErrTaxIDLength:
			return fieldError(step, "identifier", err, "tax identifier must have exactly %d digits", TaxIDLength)
		default:
			return fieldError(step, "identifier", err, "invalid check digit for tax identifier %s", DigitsOnly(o.Identifier))
		}
	}
	if blank(o.Sector) {
		return fieldError(step, "sector", ErrRequired, "sector is required")
	}
	if blank(o.Size) {
		return fieldError(step, "size", ErrRequired, "organization size is required")
	}
	if blank(o.City) {
		return fieldError(step, "city", ErrRequired, "city is required")
	}
	return nil
}

func validateRepresentative(r Representative, domains []string) *ValidationError {
	const step = StepRepresentative
	switch {
	case blank(r.FirstName):
		return fieldError(step, "first_name", ErrRequired, "representative first name is required")
	case blank(r.LastName):
		return fieldError(step, "last_name", ErrRequired, "representative last name is required")
	case blank(r.Identifier):
		return fieldError(step, "identifier", ErrRequired, "representative identifier is required")
	case blank(r.Email):
		return fieldError(step, "email", ErrRequired, "representative email is required")
	case !ValidEmail(r.Email):
		return fieldError(step, "email", ErrInvalidEmail, "representative email %q is not a valid address", strings.TrimSpace(r.Email))
	case blank(r.Phone):
		return fieldError(step, "phone", ErrRequired, "representative phone is required")
	case blank(r.City):
		return fieldError(step, "city", ErrRequired, "representative city is required")
	case !EmailMatchesDomains(r.Email, domains):
		return fieldError(step, "email", ErrEmailDomain,
			"representative email must belong to one of the accepted domains: %s", acceptedDomainsList(domains))
	}
	return nil
}

func validateContacts(contacts []Contact, domains []string) *ValidationError {
	const step = StepContacts
	for i, c := range contacts {
		if c.blank() {
			continue
		}
		n := i + 1
		field := func(name string) string { return fmt.Sprintf("contacts[%d].%s", i, name) }
		switch {
		case blank(c.FirstName):
			return fieldError(step, field("first_name"), ErrRequired, "contact %d: first name is required", n)
		case blank(c.LastName):
			return fieldError(step, field("last_name"), ErrRequired, "contact %d: last name is required", n)
		case blank(c.Email):
			return fieldError(step, field("email"), ErrRequired, "contact %d: email is required", n)
		case !ValidEmail(c.Email):
			return fieldError(step, field("email"), ErrInvalidEmail, "contact %d: email %q is not a valid address", n, strings.TrimSpace(c.Email))
		case !EmailMatchesDomains(c.Email, domains):
			return fieldError(step, field("email"), ErrEmailDomain,
				"contact %d: email must belong to one of the accepted domains: %s", n, acceptedDomainsList(domains))
		}
	}
	return nil
}
