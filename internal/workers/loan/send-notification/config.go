// internal/workers/loan/send-notification/config.go
package sendnotification

import (
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/common/config"
)

type Config struct {
	Timeout      time.Duration
	EmailEnabled bool
	FromEmail    string
	SMSEnabled   bool
	SMSSenderID  string
	SMSThreshold string
	AWSRegion    string
}

func LoadConfig(cfg *config.Config) *Config {
	wc := config.GetWorkerConfig(cfg, "send-notification")
	return &Config{
		Timeout:      config.GetDuration(wc.Timeout),
		EmailEnabled: cfg.Notifications.Email.Enabled,
		FromEmail:    cfg.Notifications.Email.FromEmail,
		SMSEnabled:   cfg.Notifications.SMS.Enabled,
		SMSSenderID:  cfg.Notifications.SMS.SenderID,
		SMSThreshold: cfg.Notifications.SMS.PriorityThreshold,
		AWSRegion:    cfg.Notifications.AWS.Region,
	}
}
