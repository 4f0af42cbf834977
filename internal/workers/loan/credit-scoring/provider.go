// internal/workers/loan/credit-scoring/provider.go
package creditscoring

import (
	"context"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/internal/models"
)

// ScoringProvider produces a credit score for an application. The
// active provider is chosen once at startup from config; stages never
// switch providers mid-run.
type ScoringProvider interface {
	Name() string
	Score(ctx context.Context, app *models.ApplicationRecord) (*Output, error)
}

const (
	scoreFloor = 300
	scoreCeil  = 850
	baseScore  = 390
)

// RuleBasedProvider is the deterministic in-process scorer. Same
// record in, same score out, no I/O.
type RuleBasedProvider struct{}

func NewRuleBasedProvider() *RuleBasedProvider {
	return &RuleBasedProvider{}
}

func (p *RuleBasedProvider) Name() string {
	return ProviderRules
}

func (p *RuleBasedProvider) Score(_ context.Context, app *models.ApplicationRecord) (*Output, error) {
	breakdown := ScoreBreakdown{
		Base:        baseScore,
		History:     historyComponent(app.CreditHistoryMonths),
		Payment:     paymentComponent(app.OnTimePayments, app.LatePayments),
		Utilization: utilizationComponent(app.CreditUtilizationPct),
		Inquiries:   -inquiryPenalty(app.RecentInquiries),
		Derogatory:  -derogatoryPenalty(app.DefaultsCount, app.WrittenOffCount),
	}

	raw := breakdown.Base + breakdown.History + breakdown.Payment +
		breakdown.Utilization + breakdown.Inquiries + breakdown.Derogatory
	score := clamp(raw, scoreFloor, scoreCeil)

	return &Output{
		CreditScore: score,
		CreditTier:  classifyTier(score),
		Breakdown:   breakdown,
		Provider:    ProviderRules,
	}, nil
}

func historyComponent(months int) int {
	switch {
	case months >= 84:
		return 110
	case months >= 60:
		return 85
	case months >= 36:
		return 60
	case months >= 24:
		return 40
	default:
		if months < 0 {
			return 0
		}
		if months > 30 {
			return 30
		}
		return months
	}
}

// paymentComponent rewards on-time performance against a ceiling that
// depends on how much history there is; thin files are capped lower.
// An empty repayment history contributes nothing rather than erroring.
func paymentComponent(onTime, late int) int {
	total := onTime + late
	if total <= 0 {
		return 0
	}

	ceiling := 220
	if total >= 40 {
		ceiling = 235
	}

	rate := float64(onTime) / float64(total)
	performance := int(rate * float64(ceiling))

	return performance - latePenalty(total, late)
}

// latePenalty escalates with the late count inside a history bucket.
// Deeper buckets penalize each late payment no harder than shallow
// ones, so growing the history never lowers the payment component.
func latePenalty(total, late int) int {
	if late <= 0 {
		return 0
	}
	switch {
	case total >= 70:
		switch {
		case late <= 2:
			return 8 * late
		case late <= 4:
			return 16 + (late-2)*18
		default:
			return 52 + (late-4)*22
		}
	case total >= 40:
		switch {
		case late <= 2:
			return 10 * late
		case late <= 4:
			return 20 + (late-2)*18
		default:
			return 56 + (late-4)*23
		}
	default:
		switch {
		case late <= 2:
			return 12 * late
		case late <= 4:
			return 24 + (late-2)*20
		default:
			return 64 + (late-4)*25
		}
	}
}

func utilizationComponent(pct float64) int {
	switch {
	case pct < 10:
		return 60
	case pct < 30:
		return 50
	case pct < 50:
		return 35
	case pct < 60:
		return 15
	case pct < 70:
		return 0
	case pct < 85:
		return -20
	default:
		return -40
	}
}

// inquiryPenalty is convex: each additional inquiry past the first few
// costs more than the one before it.
func inquiryPenalty(n int) int {
	switch {
	case n <= 0:
		return 0
	case n <= 2:
		return 3 * n
	case n <= 4:
		return 6 + (n-2)*8
	case n <= 6:
		return 22 + (n-4)*12
	default:
		return 46 + (n-6)*15
	}
}

// derogatoryPenalty charges each default and write-off progressively
// more than the previous one.
func derogatoryPenalty(defaults, writeOffs int) int {
	penalty := 0
	for i := 0; i < defaults; i++ {
		penalty += 100 + i*30
	}
	for i := 0; i < writeOffs; i++ {
		penalty += 150 + i*50
	}
	return penalty
}

// classifyTier maps a clamped score to its band. Boundaries are
// inclusive at the lower edge: exactly 750 is Excellent, 749 and 700
// are Very Good.
func classifyTier(score int) models.CreditTier {
	switch {
	case score >= 750:
		return models.TierExcellent
	case score >= 700:
		return models.TierVeryGood
	case score >= 650:
		return models.TierGood
	case score >= 600:
		return models.TierFair
	case score >= 550:
		return models.TierPoor
	default:
		return models.TierVeryPoor
	}
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
