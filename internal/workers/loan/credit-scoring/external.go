// internal/workers/loan/credit-scoring/external.go
package creditscoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/logger"
	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
)

var (
	ErrInferenceTimeout = errors.New("INFERENCE_TIMEOUT")
	ErrInferenceFailed  = errors.New("INFERENCE_FAILED")
)

// ExternalProvider scores through a hosted chat-completions endpoint.
// The model is instructed to return strict JSON; anything else is an
// ErrInferenceFailed, which the handler surfaces as a stage failure.
type ExternalProvider struct {
	config ExternalConfig
	client *http.Client
	logger logger.Logger
}

func NewExternalProvider(config ExternalConfig, log logger.Logger) *ExternalProvider {
	return &ExternalProvider{
		config: config,
		// No client timeout; the per-call context bounds the request.
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"provider": ProviderExternal}),
	}
}

func (p *ExternalProvider) Name() string {
	return ProviderExternal
}

func (p *ExternalProvider) Score(ctx context.Context, app *models.ApplicationRecord) (*Output, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	requestBody := map[string]interface{}{
		"model": p.config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": buildPrompt(app)},
		},
		"temperature":     0,
		"response_format": map[string]string{"type": "json_object"},
	}

	body, _ := json.Marshal(requestBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrInferenceTimeout
			}
		}

		req, err := http.NewRequestWithContext(ctx, "POST", p.config.BaseURL+"/v1/chat/completions", bytes.NewBuffer(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
		}
		req.Header.Set("Content-Type", "application/json")
		if p.config.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
		}

		resp, lastErr = p.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return nil, ErrInferenceTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrInferenceTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, lastErr)
	}
	defer resp.Body.Close()

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrInferenceFailed, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrInferenceFailed)
	}

	score, err := parseScorePayload(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	score = clamp(score, scoreFloor, scoreCeil)

	p.logger.Info("external score received", map[string]interface{}{
		"applicationId": app.ApplicationID,
		"score":         score,
	})

	// Tier mapping stays local so the band table is authoritative
	// regardless of what the model claims.
	return &Output{
		CreditScore: score,
		CreditTier:  classifyTier(score),
		Provider:    ProviderExternal,
	}, nil
}

const systemPrompt = "You are a credit scoring engine. Respond with a single JSON object " +
	`of the form {"credit_score": <integer between 300 and 850>} and nothing else.`

func buildPrompt(app *models.ApplicationRecord) string {
	var sb strings.Builder
	sb.WriteString("Score this loan applicant's credit profile.\n")
	fmt.Fprintf(&sb, "credit_history_months: %d\n", app.CreditHistoryMonths)
	fmt.Fprintf(&sb, "total_accounts: %d\n", app.TotalAccounts)
	fmt.Fprintf(&sb, "credit_utilization_pct: %.1f\n", app.CreditUtilizationPct)
	fmt.Fprintf(&sb, "recent_inquiries: %d\n", app.RecentInquiries)
	fmt.Fprintf(&sb, "on_time_payments: %d\n", app.OnTimePayments)
	fmt.Fprintf(&sb, "late_payments: %d\n", app.LatePayments)
	fmt.Fprintf(&sb, "defaults_count: %d\n", app.DefaultsCount)
	fmt.Fprintf(&sb, "written_off_count: %d\n", app.WrittenOffCount)
	return sb.String()
}

func parseScorePayload(content string) (int, error) {
	var payload struct {
		CreditScore *int `json:"credit_score"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return 0, fmt.Errorf("%w: malformed score payload: %v", ErrInferenceFailed, err)
	}
	if payload.CreditScore == nil {
		return 0, fmt.Errorf("%w: missing credit_score", ErrInferenceFailed)
	}
	return *payload.CreditScore, nil
}
