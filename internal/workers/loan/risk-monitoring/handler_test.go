// internal/workers/loan/risk-monitoring/handler_test.go
package riskmonitoring

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
		name          string
		input         *Input
		expectedScore int
		expectedLevel models.RiskLevel
	}{
		{
			name: "clean profile is low risk",
			input: &Input{
				Application: &models.ApplicationRecord{
					CreditUtilizationPct: 15,
				},
				CreditScore:        774,
				VerificationStatus: models.VerificationVerified,
			},
			expectedScore: 0,
			expectedLevel: models.RiskLow,
		},
		{
			name: "mid band score with elevated utilization is medium risk",
			input: &Input{
				Application: &models.ApplicationRecord{
					CreditUtilizationPct: 62,
				},
				CreditScore:        608,
				VerificationStatus: models.VerificationVerified,
			},
			// 25 for the score band, 10 for utilization
			expectedScore: 35,
			expectedLevel: models.RiskMedium,
		},
		{
			name: "distressed profile saturates at 100",
			input: &Input{
				Application: &models.ApplicationRecord{
					CreditUtilizationPct: 85,
					DefaultsCount:        2,
					WrittenOffCount:      1,
					LatePayments:         15,
					RecentInquiries:      8,
				},
				CreditScore:        300,
				VerificationStatus: models.VerificationPending,
			},
			expectedScore: 100,
			expectedLevel: models.RiskHigh,
		},
		{
			name: "unverified applicant carries a penalty",
			input: &Input{
				Application: &models.ApplicationRecord{
					CreditUtilizationPct: 20,
				},
				CreditScore:        720,
				VerificationStatus: models.VerificationPending,
			},
			expectedScore: 10,
			expectedLevel: models.RiskLow,
		},
		{
			name: "boundary at the medium threshold",
			input: &Input{
				Application: &models.ApplicationRecord{
					CreditUtilizationPct: 55,
				},
				CreditScore:        690,
				VerificationStatus: models.VerificationPending,
			},
			// 10 score band + 10 utilization + 10 verification = 30
			expectedScore: 30,
			expectedLevel: models.RiskMedium,
		},
	}

	handler := NewHandler(LoadConfig(), newTestLogger(t))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := handler.Execute(context.Background(), tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.expectedScore, output.RiskScore)
			assert.Equal(t, tt.expectedLevel, output.RiskLevel)
			assert.NotEmpty(t, output.RecommendedActions)
		})
	}
}

func TestClassifyRiskLevel_Boundaries(t *testing.T) {
	assert.Equal(t, models.RiskLow, classifyRiskLevel(0))
	assert.Equal(t, models.RiskLow, classifyRiskLevel(29))
	assert.Equal(t, models.RiskMedium, classifyRiskLevel(30))
	assert.Equal(t, models.RiskMedium, classifyRiskLevel(59))
	assert.Equal(t, models.RiskHigh, classifyRiskLevel(60))
	assert.Equal(t, models.RiskHigh, classifyRiskLevel(100))
}

func TestHandler_Execute_MissingApplication(t *testing.T) {
	handler := NewHandler(LoadConfig(), newTestLogger(t))

	_, err := handler.Execute(context.Background(), &Input{CreditScore: 700})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingApplication)
}
