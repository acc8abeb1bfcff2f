package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Multipart field names understood by the registration endpoint.
const (
	FieldAdditionalContacts = "additional_contacts"
	FieldActivityCodes      = "activity_codes"
	FieldEmailDomains       = "email_domains"
	FieldHoneypot           = "hp_company_fax"
)

// FallbackFailureMessage is shown when the backend gives no reason.
const FallbackFailureMessage = "The registration could not be completed. Please try again."

// PendingApproval is the status shown after a successful submission.
const PendingApproval = "pending_approval"

// Attachment is a supporting document uploaded with the registration.
type Attachment struct {
	Kind        DocumentKind
	FileName    string
	ContentType string
	Data        []byte
}

// Ref describes the attachment without its contents.
func (a Attachment) Ref() DocumentRef {
	return DocumentRef{Kind: a.Kind, FileName: a.FileName, ContentType: a.ContentType, Size: int64(len(a.Data))}
}

// RegistrationResponse is the application-level answer of the registration endpoint.
type RegistrationResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Registrar posts an encoded multipart body to the registration endpoint.
type Registrar interface {
	Register(ctx context.Context, contentType string, body io.Reader) (RegistrationResponse, error)
}

// Confirmation is the summary shown after a successful registration.
type Confirmation struct {
	OrganizationName  string `json:"organization_name"`
	Status            string `json:"status"`
	NotificationEmail string `json:"notification_email"`
	PasswordReminder  string `json:"password_reminder"`
}

// Outcome is the result of one submission attempt.
type Outcome struct {
	State        SubmissionState
	Confirmation *Confirmation
}

// Submitter assembles the registration payload and interprets the answer.
type Submitter struct {
	registrar Registrar
	logger    *slog.Logger
}

// NewSubmitter constructs a Submitter.
func NewSubmitter(registrar Registrar, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Submitter{registrar: registrar, logger: logger}
}

// Submit sends d and files in a single request. It never retries.
func (s *Submitter) Submit(ctx context.Context, d Draft, files []Attachment) Outcome {
	contentType, body, err := EncodeRegistration(d, files)
	if err != nil {
		s.logger.Error("encode registration", slog.Any("error", err))
		recordSubmission("encode_error")
		return failed("")
	}

	resp, err := s.registrar.Register(ctx, contentType, body)
	if err != nil {
		s.logger.Warn("registration request failed", slog.Any("error", err))
		recordSubmission("transport_error")
		return failed(resp.Message)
	}
	if !resp.Success {
		s.logger.Info("registration rejected", slog.String("message", resp.Message))
		recordSubmission("rejected")
		return failed(resp.Message)
	}

	recordSubmission("succeeded")
	return Outcome{
		State: SubmissionState{Status: StatusSucceeded},
		Confirmation: &Confirmation{
			OrganizationName:  strings.TrimSpace(d.Organization.LegalName),
			Status:            PendingApproval,
			NotificationEmail: strings.TrimSpace(d.Representative.Email),
			PasswordReminder:  "The legal representative's initial password is the organization's tax identifier.",
		},
	}
}

func failed(message string) Outcome {
	if strings.TrimSpace(message) == "" {
		message = FallbackFailureMessage
	}
	return Outcome{State: SubmissionState{Status: StatusFailed, Message: message}}
}

// SubmittableContacts returns the contacts that will be sent: entries without
// a first name or an email are dropped.
func SubmittableContacts(contacts []Contact) []Contact {
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if blank(c.FirstName) || blank(c.Email) {
			continue
		}
		c.FirstName = text(c.FirstName)
		c.LastName = text(c.LastName)
		c.Email = strings.TrimSpace(c.Email)
		c.Phone = text(c.Phone)
		c.Position = text(c.Position)
		out = append(out, c)
	}
	return out
}

// EncodeRegistration builds the multipart body of a registration request.
func EncodeRegistration(d Draft, files []Attachment) (string, io.Reader, error) {
	d = d.Clone()
	d.Normalize()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	o, r := d.Organization, d.Representative
	cityID := func(id int64) string {
		if id == 0 {
			return ""
		}
		return strconv.FormatInt(id, 10)
	}
	scalars := [][2]string{
		{"legal_name", text(o.LegalName)},
		{"trade_name", text(o.TradeName)},
		{"identifier_type", string(o.IdentifierType)},
		{"identifier", identifierValue(o.IdentifierType, o.Identifier)},
		{"sector", o.Sector},
		{"sector_alt", o.SectorAlt},
		{"size", o.Size},
		{"insurer_code", o.InsurerCode},
		{"country", o.Country},
		{"city", text(o.City)},
		{"city_id", cityID(o.CityID)},
		{"address", text(o.Address)},
		{"website", strings.TrimSpace(o.Website)},
		{"description", text(o.Description)},
		{"representative_first_name", text(r.FirstName)},
		{"representative_middle_name", text(r.MiddleName)},
		{"representative_last_name", text(r.LastName)},
		{"representative_second_last_name", text(r.SecondLastName)},
		{"representative_identifier_type", string(r.IdentifierType)},
		{"representative_identifier", identifierValue(r.IdentifierType, r.Identifier)},
		{"representative_email", strings.TrimSpace(r.Email)},
		{"representative_phone", text(r.Phone)},
		{"representative_country", r.Country},
		{"representative_city", text(r.City)},
		{"representative_city_id", cityID(r.CityID)},
		{"representative_address", text(r.Address)},
		{FieldHoneypot, d.Honeypot},
	}
	for _, field := range scalars {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return "", nil, fmt.Errorf("write field %s: %w", field[0], err)
		}
	}

	codes := make([]string, 0, len(o.ActivityCodes))
	for _, code := range o.ActivityCodes {
		codes = append(codes, code.Code)
	}
	domains := o.EmailDomains
	if domains == nil {
		domains = []string{}
	}
	jsonParts := []struct {
		name  string
		value any
	}{
		{FieldAdditionalContacts, SubmittableContacts(d.AdditionalContacts)},
		{FieldActivityCodes, codes},
		{FieldEmailDomains, domains},
	}
	for _, part := range jsonParts {
		raw, err := json.Marshal(part.value)
		if err != nil {
			return "", nil, fmt.Errorf("encode %s: %w", part.name, err)
		}
		if err := writer.WriteField(part.name, string(raw)); err != nil {
			return "", nil, fmt.Errorf("write field %s: %w", part.name, err)
		}
	}

	seen := make(map[DocumentKind]bool, 2)
	for _, file := range files {
		if file.Kind != DocumentIncorporation && file.Kind != DocumentTaxRegistration {
			return "", nil, fmt.Errorf("%w: %q", ErrDocumentKind, file.Kind)
		}
		if seen[file.Kind] {
			return "", nil, fmt.Errorf("duplicate attachment %q", file.Kind)
		}
		seen[file.Kind] = true
		if err := writeFile(writer, file); err != nil {
			return "", nil, err
		}
	}

	if err := writer.Close(); err != nil {
		return "", nil, err
	}
	return writer.FormDataContentType(), body, nil
}

func writeFile(writer *multipart.Writer, file Attachment) error {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(string(file.Kind)), escapeQuotes(file.FileName)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create part %s: %w", file.Kind, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("write part %s: %w", file.Kind, err)
	}
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func identifierValue(kind IdentifierType, value string) string {
	if kind == IdentifierTaxID {
		return DigitsOnly(value)
	}
	return strings.TrimSpace(value)
}

// text trims and NFC-normalizes user-entered text.
func text(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
