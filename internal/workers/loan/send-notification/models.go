// internal/workers/loan/send-notification/models.go
package sendnotification

import "github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"

// Input carries the applicant contact details and the finished decision.
type Input struct {
	Application *models.ApplicationRecord `json:"application"`
	Result      *models.DecisionResult    `json:"decision_result"`
}

// Notification delivery statuses.
const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
	StatusFailed   = "failed"
)

// Output reports what was delivered.
type Output struct {
	NotificationID string `json:"notification_id"`
	Status         string `json:"status"`
	EmailSent      bool   `json:"email_sent"`
	SMSSent        bool   `json:"sms_sent"`
	SentAt         string `json:"sent_at"`
}
