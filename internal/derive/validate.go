package derive

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"bizbook/core/internal/domain"
)

type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func (e FieldError) Error() string {
	return e.Field + ": failed " + e.Rule
}

// ValidationErrors block a submission before any network call is made.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) Has(field string) bool {
	for _, fe := range v {
		if fe.Field == field {
			return true
		}
	}
	return false
}

type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		d, err := domain.ParseAmount(fl.Field().String())
		return err == nil && !d.IsNegative()
	})
	_ = v.RegisterValidation("positive_money", func(fl validator.FieldLevel) bool {
		d, err := domain.ParseAmount(fl.Field().String())
		return err == nil && d.IsPositive()
	})
	return &Validator{v: v}
}

// Struct runs the tag rules of any draft struct.
func (v *Validator) Struct(draft any) error {
	err := v.v.Struct(draft)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := make(ValidationErrors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// Transaction applies the tag rules plus the cross-field rules of a purchase
// or sale form: a partial payment needs a paid amount, and the stock guard
// must not be raised.
func (v *Validator) Transaction(d domain.TransactionDraft, r Result) error {
	var out ValidationErrors
	if err := v.Struct(d); err != nil {
		var verrs ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		out = append(out, verrs...)
	}
	if d.PaymentType == domain.PaymentPartial && strings.TrimSpace(d.PaidAmount) == "" && !out.Has("paid_amount") {
		out = append(out, FieldError{Field: "paid_amount", Rule: "required"})
	}
	if r.StockExceeded {
		out = append(out, FieldError{Field: "quantity", Rule: "stock"})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	if name == "" {
		return fld.Name
	}
	return name
}
