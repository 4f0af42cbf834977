// internal/workers/loan/verification/handler_test.go
package verification

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

func TestHandler_Execute(t *testing.T) {
	tests := []struct {
		name            string
		app             *models.ApplicationRecord
		expectedStatus  models.VerificationStatus
		expectedPending []string
	}{
		{
			name: "fully verified applicant",
			app: &models.ApplicationRecord{
				Email:            "priya.sharma@example.com",
				Phone:            "9876543210",
				IncomeVerified:   true,
				EmploymentStatus: models.EmploymentEmployed,
			},
			expectedStatus: models.VerificationVerified,
		},
		{
			name: "self-employed counts as verifiable employment",
			app: &models.ApplicationRecord{
				Email:            "dev@example.co.in",
				Phone:            "+91 98765 43210",
				IncomeVerified:   true,
				EmploymentStatus: models.EmploymentSelfEmployed,
			},
			expectedStatus: models.VerificationVerified,
		},
		{
			name: "unverified income stays pending",
			app: &models.ApplicationRecord{
				Email:            "rahul.verma@example.com",
				Phone:            "9123456789",
				IncomeVerified:   false,
				EmploymentStatus: models.EmploymentEmployed,
			},
			expectedStatus:  models.VerificationPending,
			expectedPending: []string{"income"},
		},
		{
			name: "malformed email and short phone",
			app: &models.ApplicationRecord{
				Email:            "not-an-email",
				Phone:            "12345",
				IncomeVerified:   true,
				EmploymentStatus: models.EmploymentEmployed,
			},
			expectedStatus:  models.VerificationPending,
			expectedPending: []string{"email", "phone"},
		},
		{
			name: "nothing verifiable",
			app: &models.ApplicationRecord{
				Email:            "bad",
				Phone:            "1",
				IncomeVerified:   false,
				EmploymentStatus: models.EmploymentUnemployed,
			},
			expectedStatus:  models.VerificationFailed,
			expectedPending: []string{"email", "phone", "income", "employment"},
		},
	}

	handler := NewHandler(LoadConfig(), newTestLogger(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := handler.Execute(context.Background(), &Input{Application: tt.app})
			require.NoError(t, err)

			assert.Equal(t, tt.expectedStatus, output.Status)
			assert.Equal(t, tt.expectedPending, output.PendingFields)
			if len(tt.expectedPending) > 0 {
				assert.Len(t, output.Notes, len(tt.expectedPending))
			}
		})
	}
}

func TestHandler_Execute_MissingApplication(t *testing.T) {
	handler := NewHandler(LoadConfig(), newTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingApplication)
}
