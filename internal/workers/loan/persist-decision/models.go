// internal/workers/loan/persist-decision/models.go
package persistdecision

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

// Input carries the finished decision result to be persisted.
type Input struct {
	Result *models.DecisionResult `json:"decision_result"`
}

// Output reports what was written.
type Output struct {
	Persisted   bool   `json:"persisted"`
	Indexed     bool   `json:"indexed"`
	PersistedAt string `json:"persisted_at"`
}
