// internal/workers/loan/validate-application/schema.go
package validateapplication

import (
	"github.com/xeipuuv/gojsonschema"
)

// applicationSchema rejects structurally broken payloads before the
// typed checks run. Range rules that need cross-field context stay in
// validateRecord.
const applicationSchema = `{
  "type": "object",
  "required": ["applicant_name", "email", "requested_amount", "tenure_months"],
  "properties": {
    "application_id": {"type": "string"},
    "applicant_name": {"type": "string", "minLength": 1},
    "email": {"type": "string", "minLength": 3},
    "phone": {"type": "string"},
    "credit_history_months": {"type": "integer", "minimum": 0},
    "total_accounts": {"type": "integer", "minimum": 0},
    "credit_utilization_pct": {"type": "number", "minimum": 0, "maximum": 100},
    "recent_inquiries": {"type": "integer", "minimum": 0},
    "on_time_payments": {"type": "integer", "minimum": 0},
    "late_payments": {"type": "integer", "minimum": 0},
    "defaults_count": {"type": "integer", "minimum": 0},
    "written_off_count": {"type": "integer", "minimum": 0},
    "monthly_income": {"type": "number", "minimum": 0},
    "employment_status": {"type": "string", "enum": ["employed", "self_employed", "unemployed"]},
    "income_verified": {"type": "boolean"},
    "requested_amount": {"type": "number", "exclusiveMinimum": 0},
    "tenure_months": {"type": "integer", "minimum": 1},
    "existing_monthly_obligations": {"type": "number", "minimum": 0}
  }
}`

// CheckSchema validates a raw request payload against the application
// schema and maps each violation to a ValidationError.
func CheckSchema(payload map[string]interface{}) ([]ValidationError, error) {
	schemaLoader := gojsonschema.NewStringLoader(applicationSchema)
	documentLoader := gojsonschema.NewGoLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, err
	}

	var errs []ValidationError
	for _, desc := range result.Errors() {
		errs = append(errs, ValidationError{
			Field:   desc.Field(),
			Code:    CodeSchemaViolation,
			Message: desc.Description(),
		})
	}
	return errs, nil
}
