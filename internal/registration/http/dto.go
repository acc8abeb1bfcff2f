package registrationhttp

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/practicum-hub/practicum/internal/platform/httpx"
	"github.com/practicum-hub/practicum/internal/registration"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type organizationInput struct {
	LegalName      string `json:"legal_name" validate:"max=200"`
	TradeName      string `json:"trade_name" validate:"max=200"`
	IdentifierType string `json:"identifier_type" validate:"omitempty,oneof=NIT CC"`
	Identifier     string `json:"identifier" validate:"max=20"`
	Sector         string `json:"sector" validate:"max=64"`
	SectorAlt      string `json:"sector_alt" validate:"max=64"`
	Size           string `json:"size" validate:"max=64"`
	InsurerCode    string `json:"insurer_code" validate:"max=64"`
	Country        string `json:"country" validate:"max=64"`
	City           string `json:"city" validate:"max=120"`
	CityID         int64  `json:"city_id" validate:"gte=0"`
	Address        string `json:"address" validate:"max=250"`
	Website        string `json:"website" validate:"max=250"`
	Description    string `json:"description" validate:"max=2000"`
	Honeypot       string `json:"hp_company_fax" validate:"max=500"`
}

func (in organizationInput) apply(d *registration.Draft) {
	o := &d.Organization
	o.LegalName = in.LegalName
	o.TradeName = in.TradeName
	if in.IdentifierType != "" {
		o.IdentifierType = registration.IdentifierType(in.IdentifierType)
	}
	o.Identifier = in.Identifier
	o.Sector = in.Sector
	o.SectorAlt = in.SectorAlt
	o.Size = in.Size
	o.InsurerCode = in.InsurerCode
	o.Country = in.Country
	o.City = in.City
	o.CityID = in.CityID
	o.Address = in.Address
	o.Website = in.Website
	o.Description = in.Description
	d.Honeypot = in.Honeypot
}

type representativeInput struct {
	FirstName      string `json:"first_name" validate:"max=100"`
	MiddleName     string `json:"middle_name" validate:"max=100"`
	LastName       string `json:"last_name" validate:"max=100"`
	SecondLastName string `json:"second_last_name" validate:"max=100"`
	IdentifierType string `json:"identifier_type" validate:"omitempty,oneof=NIT CC"`
	Identifier     string `json:"identifier" validate:"max=20"`
	Email          string `json:"email" validate:"max=254"`
	Phone          string `json:"phone" validate:"max=40"`
	Country        string `json:"country" validate:"max=64"`
	City           string `json:"city" validate:"max=120"`
	CityID         int64  `json:"city_id" validate:"gte=0"`
	Address        string `json:"address" validate:"max=250"`
}

func (in representativeInput) apply(d *registration.Draft) {
	r := &d.Representative
	r.FirstName = in.FirstName
	r.MiddleName = in.MiddleName
	r.LastName = in.LastName
	r.SecondLastName = in.SecondLastName
	if in.IdentifierType != "" {
		r.IdentifierType = registration.IdentifierType(in.IdentifierType)
	}
	r.Identifier = in.Identifier
	r.Email = in.Email
	r.Phone = in.Phone
	r.Country = in.Country
	r.City = in.City
	r.CityID = in.CityID
	r.Address = in.Address
}

type contactInput struct {
	FirstName          string `json:"first_name" validate:"max=100"`
	LastName           string `json:"last_name" validate:"max=100"`
	Email              string `json:"email" validate:"max=254"`
	Phone              string `json:"phone" validate:"max=40"`
	Position           string `json:"position" validate:"max=120"`
	PracticeSupervisor bool   `json:"practice_supervisor"`
}

func (in contactInput) contact() registration.Contact {
	return registration.Contact{
		FirstName:          in.FirstName,
		LastName:           in.LastName,
		Email:              in.Email,
		Phone:              in.Phone,
		Position:           in.Position,
		PracticeSupervisor: in.PracticeSupervisor,
	}
}

type activityCodeInput struct {
	ID    int64  `json:"id" validate:"gte=0"`
	Code  string `json:"code" validate:"required,max=16"`
	Label string `json:"label" validate:"max=300"`
}

func (in activityCodeInput) activityCode() registration.ActivityCode {
	return registration.ActivityCode{ID: in.ID, Code: in.Code, Label: in.Label}
}

type domainInput struct {
	Domain string `json:"domain" validate:"required,max=253"`
}

type citySelectInput struct {
	Target     string `json:"target" validate:"required,oneof=organization representative"`
	ID         int64  `json:"id" validate:"gte=0"`
	Name       string `json:"name" validate:"required,max=120"`
	RegionName string `json:"region_name" validate:"max=120"`
}

func (in citySelectInput) city() registration.City {
	return registration.City{ID: in.ID, Name: in.Name, RegionName: in.RegionName}
}

type closeInput struct {
	Confirm bool `json:"confirm"`
}

type facultyInput struct {
	FacultyID int64 `json:"faculty_id" validate:"gte=0"`
}

type programInput struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	Name      string `json:"name" validate:"max=200"`
	FacultyID int64  `json:"faculty_id" validate:"gte=0"`
}

// inputError carries per-field messages for a rejected payload.
type inputError struct {
	fields map[string]string
}

func (e *inputError) Error() string {
	return "invalid input"
}

// bind decodes the JSON body into dst and validates it.
func bind(r *http.Request, dst any) error {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return &inputError{fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "max":
		return "Too long"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "gt", "gte":
		return "Value too small"
	default:
		return "Invalid value"
	}
}
