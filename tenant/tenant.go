package tenant

import "time"

// Plan is a tenant's subscription tier
type Plan string

const (
	PlanTrial   Plan = "trial"
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
)

// Valid reports whether the plan is a known tier
func (p Plan) Valid() bool {
	switch p {
	case PlanTrial, PlanStarter, PlanPro:
		return true
	}
	return false
}

// Paid reports whether the plan gets paid-tier rate limits
func (p Plan) Paid() bool {
	return p == PlanStarter || p == PlanPro
}

// DefaultQuota is the monthly query budget for a plan, used when a
// tenant row carries no explicit override
func (p Plan) DefaultQuota() int {
	switch p {
	case PlanStarter:
		return 500
	case PlanPro:
		return 5000
	default:
		return 25
	}
}

// Tenant is the unit of isolation: it owns projects, tracked queries,
// and a monthly usage quota
type Tenant struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Plan              Plan      `json:"plan"`
	MonthlyQueryQuota int       `json:"monthly_query_quota"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// QuotaStatus reports a tenant's budget position for the current period
type QuotaStatus struct {
	Used      int    `json:"used"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Period    string `json:"period"`
}

// usagePeriod is the calendar month key used for usage rows
func usagePeriod(now time.Time) string {
	return now.UTC().Format("2006-01")
}
