// internal/workers/loan/validate-application/handler_test.go
package validateapplication

import (
	"context"
	"testing"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Create a test logger that implements the logger.Logger interface
type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

func createValidApplication() *models.ApplicationRecord {
	return &models.ApplicationRecord{
		ApplicationID:        "app-valid-001",
		ApplicantName:        "Priya Sharma",
		Email:                "priya.sharma@example.com",
		Phone:                "9876543210",
		CreditHistoryMonths:  48,
		TotalAccounts:        4,
		CreditUtilizationPct: 30,
		OnTimePayments:       45,
		LatePayments:         1,
		MonthlyIncome:        6000,
		EmploymentStatus:     models.EmploymentEmployed,
		RequestedAmount:      40000,
		TenureMonths:         60,
	}
}

func TestValidateRecord(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(app *models.ApplicationRecord)
		expectedField string
		expectedCode  string
	}{
		{
			name:          "missing applicant name",
			mutate:        func(app *models.ApplicationRecord) { app.ApplicantName = "  " },
			expectedField: "applicant_name",
			expectedCode:  CodeMissingRequired,
		},
		{
			name:          "missing email",
			mutate:        func(app *models.ApplicationRecord) { app.Email = "" },
			expectedField: "email",
			expectedCode:  CodeMissingRequired,
		},
		{
			name:          "unknown employment status",
			mutate:        func(app *models.ApplicationRecord) { app.EmploymentStatus = "retired" },
			expectedField: "employment_status",
			expectedCode:  CodeInvalidFormat,
		},
		{
			name:          "utilization above 100",
			mutate:        func(app *models.ApplicationRecord) { app.CreditUtilizationPct = 120 },
			expectedField: "credit_utilization_pct",
			expectedCode:  CodeOutOfRange,
		},
		{
			name:          "negative income",
			mutate:        func(app *models.ApplicationRecord) { app.MonthlyIncome = -1 },
			expectedField: "monthly_income",
			expectedCode:  CodeOutOfRange,
		},
		{
			name:          "zero requested amount",
			mutate:        func(app *models.ApplicationRecord) { app.RequestedAmount = 0 },
			expectedField: "requested_amount",
			expectedCode:  CodeOutOfRange,
		},
		{
			name:          "zero tenure",
			mutate:        func(app *models.ApplicationRecord) { app.TenureMonths = 0 },
			expectedField: "tenure_months",
			expectedCode:  CodeOutOfRange,
		},
		{
			name:          "negative late payments",
			mutate:        func(app *models.ApplicationRecord) { app.LatePayments = -2 },
			expectedField: "late_payments",
			expectedCode:  CodeOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := createValidApplication()
			tt.mutate(app)

			errs := ValidateRecord(app)
			require.NotEmpty(t, errs)

			found := false
			for _, e := range errs {
				if e.Field == tt.expectedField && e.Code == tt.expectedCode {
					found = true
				}
			}
			assert.True(t, found, "expected %s/%s in %v", tt.expectedField, tt.expectedCode, errs)
		})
	}
}

func TestValidateRecord_ValidApplication(t *testing.T) {
	assert.Empty(t, ValidateRecord(createValidApplication()))
}

func TestValidateRecord_NilApplication(t *testing.T) {
	errs := ValidateRecord(nil)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeMissingRequired, errs[0].Code)
}

func TestCheckSchema(t *testing.T) {
	valid := map[string]interface{}{
		"applicant_name":   "Priya Sharma",
		"email":            "priya.sharma@example.com",
		"requested_amount": 40000,
		"tenure_months":    60,
	}
	errs, err := CheckSchema(valid)
	require.NoError(t, err)
	assert.Empty(t, errs)

	invalid := map[string]interface{}{
		"applicant_name":         "Priya Sharma",
		"email":                  "priya.sharma@example.com",
		"requested_amount":       40000,
		"tenure_months":          60,
		"credit_utilization_pct": 250,
		"late_payments":          "many",
	}
	errs, err = CheckSchema(invalid)
	require.NoError(t, err)
	assert.NotEmpty(t, errs)
	for _, e := range errs {
		assert.Equal(t, CodeSchemaViolation, e.Code)
	}
}

func TestHandler_Execute(t *testing.T) {
	handler := NewHandler(LoadConfig(), newTestLogger(t))

	output, err := handler.Execute(context.Background(), &Input{
		Application: createValidApplication(),
	})
	require.NoError(t, err)
	assert.True(t, output.Valid)

	bad := createValidApplication()
	bad.RequestedAmount = -5
	output, err = handler.Execute(context.Background(), &Input{Application: bad})
	require.NoError(t, err)
	assert.False(t, output.Valid)
	assert.NotEmpty(t, output.Errors)
}

func TestHandler_Execute_SchemaAndTypedChecksCombine(t *testing.T) {
	handler := NewHandler(LoadConfig(), newTestLogger(t))

	app := createValidApplication()
	app.TenureMonths = 0

	output, err := handler.Execute(context.Background(), &Input{
		Application: app,
		RawPayload: map[string]interface{}{
			"applicant_name":   app.ApplicantName,
			"email":            app.Email,
			"requested_amount": app.RequestedAmount,
			"tenure_months":    0,
		},
	})
	require.NoError(t, err)
	assert.False(t, output.Valid)
	// Both the schema check and the typed check flag the tenure.
	assert.GreaterOrEqual(t, len(output.Errors), 2)
}
