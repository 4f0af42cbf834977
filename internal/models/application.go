// internal/models/application.go
package models

// EmploymentStatus is the normalized employment classification used by
// the decision and verification stages.
type EmploymentStatus string

const (
	EmploymentEmployed     EmploymentStatus = "employed"
	EmploymentSelfEmployed EmploymentStatus = "self_employed"
	EmploymentUnemployed   EmploymentStatus = "unemployed"
)

// IsWorking reports whether the applicant has a verifiable income source.
func (e EmploymentStatus) IsWorking() bool {
	return e == EmploymentEmployed || e == EmploymentSelfEmployed
}

// ApplicationRecord is the immutable input to the decision pipeline.
// Stages never mutate it; each stage derives its own typed output.
type ApplicationRecord struct {
	ApplicationID string `json:"application_id"`
	ApplicantName string `json:"applicant_name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`

	CreditHistoryMonths  int     `json:"credit_history_months"`
	TotalAccounts        int     `json:"total_accounts"`
	CreditUtilizationPct float64 `json:"credit_utilization_pct"`
	RecentInquiries      int     `json:"recent_inquiries"`
	OnTimePayments       int     `json:"on_time_payments"`
	LatePayments         int     `json:"late_payments"`
	DefaultsCount        int     `json:"defaults_count"`
	WrittenOffCount      int     `json:"written_off_count"`

	MonthlyIncome    float64          `json:"monthly_income"`
	EmploymentStatus EmploymentStatus `json:"employment_status"`
	IncomeVerified   bool             `json:"income_verified"`

	RequestedAmount            float64 `json:"requested_amount"`
	TenureMonths               int     `json:"tenure_months"`
	ExistingMonthlyObligations float64 `json:"existing_monthly_obligations"`
}

// TotalPayments is the size of the observable repayment history.
func (a *ApplicationRecord) TotalPayments() int {
	return a.OnTimePayments + a.LatePayments
}
