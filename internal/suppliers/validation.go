package suppliers

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/posadmin/posadmin/internal/platform/httpx"
)

// Input is the create/update payload, shared by forms and imports.
type Input struct {
	Code          string `form:"code" validate:"omitempty,max=30"`
	Name          string `form:"name" validate:"required,max=150"`
	ContactPerson string `form:"contact_person" validate:"max=100"`
	Email         string `form:"email" validate:"omitempty,email,max=150"`
	Phone         string `form:"phone" validate:"omitempty,max=30,phone"`
	Address       string `form:"address" validate:"max=500"`
	City          string `form:"city" validate:"max=100"`
	Country       string `form:"country" validate:"max=100"`
	TaxID         string `form:"tax_id" validate:"max=50"`
	PaymentTerms  string `form:"payment_terms" validate:"max=100"`
	Notes         string `form:"notes" validate:"max=2000"`
	Status        string `form:"status" validate:"required,oneof=active inactive"`
}

// ValidationError carries per-field messages keyed by form field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for _, msg := range e.Fields {
			return msg
		}
	}
	return "Please correct the highlighted fields"
}

// Unwrap classifies the error as a validation failure.
func (e *ValidationError) Unwrap() error { return httpx.ErrValidation }

// FieldErrors extracts per-field messages from err, if any.
func FieldErrors(err error) map[string]string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("form"); name != "" {
			return name
		}
		return f.Name
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		for _, r := range fl.Field().String() {
			if !strings.ContainsRune("0123456789+-() .", r) {
				return false
			}
		}
		return true
	})
	return v
}

// Normalize trims every field and applies defaults.
func (in Input) Normalize() Input {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = collapseSpaces(in.Name)
	in.ContactPerson = strings.TrimSpace(in.ContactPerson)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Address = strings.TrimSpace(in.Address)
	in.City = strings.TrimSpace(in.City)
	in.Country = strings.TrimSpace(in.Country)
	in.TaxID = strings.TrimSpace(in.TaxID)
	in.PaymentTerms = strings.TrimSpace(in.PaymentTerms)
	in.Notes = strings.TrimSpace(in.Notes)
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.Status == "" {
		in.Status = StatusActive
	}
	return in
}

// Validate checks a normalized input.
func (s *Service) Validate(in Input) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return &ValidationError{Fields: fields}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	label := strings.ReplaceAll(fe.Field(), "_", " ")
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Enter a valid email address"
	case "max":
		return label + " must be at most " + fe.Param() + " characters"
	case "oneof":
		return label + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "phone":
		return "Phone may only contain digits, spaces and + - ( )"
	default:
		return label + " is invalid"
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (in Input) toSupplier() Supplier {
	return Supplier{
		Code:          in.Code,
		Name:          in.Name,
		ContactPerson: in.ContactPerson,
		Email:         in.Email,
		Phone:         in.Phone,
		Address:       in.Address,
		City:          in.City,
		Country:       in.Country,
		TaxID:         in.TaxID,
		PaymentTerms:  in.PaymentTerms,
		Notes:         in.Notes,
		Status:        in.Status,
	}
}

// InputFrom copies editable fields from s.
func InputFrom(s Supplier) Input {
	return Input{
		Code:          s.Code,
		Name:          s.Name,
		ContactPerson: s.ContactPerson,
		Email:         s.Email,
		Phone:         s.Phone,
		Address:       s.Address,
		City:          s.City,
		Country:       s.Country,
		TaxID:         s.TaxID,
		PaymentTerms:  s.PaymentTerms,
		Notes:         s.Notes,
		Status:        s.Status,
	}
}
