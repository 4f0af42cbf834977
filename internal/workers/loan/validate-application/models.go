// internal/workers/loan/validate-application/models.go
package validateapplication

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

type Input struct {
	Application *models.ApplicationRecord `json:"application"`
	// RawPayload carries the undecoded request body when available so
	// the schema check can reject unknown shapes before typed checks.
	RawPayload map[string]interface{} `json:"raw_payload,omitempty"`
}

type Output struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Validation error codes.
const (
	CodeMissingRequired = "MISSING_REQUIRED"
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeOutOfRange      = "OUT_OF_RANGE"
	CodeSchemaViolation = "SCHEMA_VIOLATION"
)
