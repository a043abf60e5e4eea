package common

import (
	"fmt"
	"mime"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdf-analyzer/constants"
)

// ValidationError represents validation failures
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

// Validator provides validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{
		errors: make([]ValidationError, 0),
	}
}

// Field validates a field and collects errors
func (v *Validator) Field(fieldName string, value interface{}, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(fieldName, value); err != nil {
			v.errors = append(v.errors, *err)
			// first failure per field is enough for callers
			break
		}
	}
	return v
}

// HasErrors returns true if there are validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// ErrorMessage returns a combined error message as string
func (v *Validator) ErrorMessage() string {
	if !v.HasErrors() {
		return ""
	}

	var messages []string
	for _, err := range v.errors {
		messages = append(messages, err.Error())
	}
	return strings.Join(messages, "; ")
}

// Err returns an AppError carrying ErrValidation, or nil.
func (v *Validator) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return NewValidationError(v.ErrorMessage())
}

// ValidationRule represents a single validation rule
type ValidationRule func(fieldName string, value interface{}) *ValidationError

// Required - Common validation rules
func Required(fieldName string, value interface{}) *ValidationError {
	if value == nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case *string:
		if v == nil || strings.TrimSpace(*v) == "" {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	case []string:
		if len(v) == 0 {
			return &ValidationError{Field: fieldName, Value: value, Message: "is required"}
		}
	}
	return nil
}

func MaxItems(max int) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		items, ok := value.([]string)
		if !ok {
			return nil
		}
		if len(items) > max {
			return &ValidationError{
				Field:   fieldName,
				Value:   len(items),
				Message: fmt.Sprintf("must contain at most %d entries", max),
			}
		}
		return nil
	}
}

// MaxBytes rejects int64 sizes above limit.
func MaxBytes(limit int64) ValidationRule {
	return func(fieldName string, value interface{}) *ValidationError {
		size, ok := value.(int64)
		if !ok {
			return nil
		}
		if size > limit {
			return &ValidationError{
				Field:   fieldName,
				Value:   size,
				Message: fmt.Sprintf("exceeds the %d byte limit", limit),
			}
		}
		return nil
	}
}

// PDFFileName accepts names carrying an allowed extension.
func PDFFileName(fieldName string, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}
	if !constants.IsAllowedExt(str) {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a PDF file"}
	}
	return nil
}

// PDFContentType accepts declared media types listed in
// constants.AllowedContentTypes. Parameters such as charset are ignored.
func PDFContentType(fieldName string, value interface{}) *ValidationError {
	str, _ := value.(string)
	mediaType, _, err := mime.ParseMediaType(str)
	if err != nil {
		return &ValidationError{Field: fieldName, Value: value, Message: "is not a PDF content type"}
	}
	if _, ok := constants.AllowedContentTypes[mediaType]; !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "is not a PDF content type"}
	}
	return nil
}

// PDFContent checks the leading bytes of an upload for the PDF header.
func PDFContent(fieldName string, value interface{}) *ValidationError {
	head, ok := value.([]byte)
	if !ok || !strings.HasPrefix(string(head), constants.PDFMagic) {
		return &ValidationError{Field: fieldName, Value: "<binary>", Message: "is not a PDF document"}
	}
	return nil
}

func UUID(fieldName string, value interface{}) *ValidationError {
	str, ok := value.(string)
	if !ok {
		return &ValidationError{Field: fieldName, Value: value, Message: "must be a string"}
	}

	if _, err := uuid.Parse(str); err != nil {
		return &ValidationError{
			Field:   fieldName,
			Value:   value,
			Message: "must be a valid UUID",
		}
	}
	return nil
}
