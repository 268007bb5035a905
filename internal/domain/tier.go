package domain

// Tier is a named subscription level governing quota limits and entitlements.
type Tier string

const (
	TierFree       Tier = "FREE"
	TierPlus       Tier = "PLUS"
	TierPro        Tier = "PRO"
	TierMax        Tier = "MAX"
	TierEnterprise Tier = "ENTERPRISE"
)

var dailyJobLimits = map[Tier]int{
	TierFree: 3,
	TierPlus: 8,
	TierPro:  20,
	TierMax:  40,
}

var monthlyCreditLimits = map[Tier]int64{
	TierPlus: 280,
	TierPro:  650,
	TierMax:  1500,
}

// DailyJobLimit returns the per-day job creation limit for a tier.
// Unbounded tiers report ok=false. Unknown tiers fall back to the free limit.
func (t Tier) DailyJobLimit() (limit int, ok bool) {
	if t == TierEnterprise {
		return 0, false
	}
	if l, found := dailyJobLimits[t]; found {
		return l, true
	}
	return dailyJobLimits[TierFree], true
}

// MonthlyCreditLimit returns the per-billing-cycle credit limit for a tier.
// The free tier has no monthly layer and unbounded tiers report ok=false.
func (t Tier) MonthlyCreditLimit() (limit int64, ok bool) {
	l, found := monthlyCreditLimits[t]
	return l, found
}

// AllowsRemoteSandbox reports whether the tier may run jobs in a remote
// sandbox environment.
func (t Tier) AllowsRemoteSandbox() bool {
	switch t {
	case TierPro, TierMax, TierEnterprise:
		return true
	}
	return false
}

// UpgradesModelOnDeepFix reports whether entering deep-fix entitles the job
// to an upgraded processing class.
func (t Tier) UpgradesModelOnDeepFix() bool {
	return t == TierMax || t == TierEnterprise
}
