package domain

import "time"

// SubscriptionStatus represents the billing state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionTrial     SubscriptionStatus = "TRIAL"
	SubscriptionPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
)

// OperatingMode selects how much autonomy the engine has for a user.
type OperatingMode string

const (
	OperatingModeSimple OperatingMode = "SIMPLE"
	OperatingModeExpert OperatingMode = "EXPERT"
)

// Subscription is the authoritative subscription record for a user.
type Subscription struct {
	ID                 int64              `json:"id" db:"id"`
	UserID             string             `json:"user_id" db:"user_id"`
	Tier               Tier               `json:"tier" db:"tier"`
	Status             SubscriptionStatus `json:"status" db:"status"`
	ContextCap         int                `json:"context_cap" db:"context_cap"`
	OperatingMode      OperatingMode      `json:"operating_mode" db:"operating_mode"`
	BillingCycleStart  time.Time          `json:"billing_cycle_start" db:"billing_cycle_start"`
	BillingCycleEnd    time.Time          `json:"billing_cycle_end" db:"billing_cycle_end"`
	ExternalCustomerID *string            `json:"external_customer_id,omitempty" db:"external_customer_id"`
	PaymentGateway     *string            `json:"payment_gateway,omitempty" db:"payment_gateway"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// PaymentSubscription mirrors the payment provider's view of a subscription.
// LastWebhookEventID gates webhook replay: applying the same provider event
// id twice is a no-op.
type PaymentSubscription struct {
	ID                     int64              `json:"id" db:"id"`
	UserID                 *string            `json:"user_id,omitempty" db:"user_id"`
	Gateway                string             `json:"gateway" db:"gateway"`
	ExternalSubscriptionID string             `json:"external_subscription_id" db:"external_subscription_id"`
	ExternalCustomerID     string             `json:"external_customer_id" db:"external_customer_id"`
	Tier                   Tier               `json:"tier" db:"tier"`
	Status                 SubscriptionStatus `json:"status" db:"status"`
	LastWebhookEventID     *string            `json:"last_webhook_event_id,omitempty" db:"last_webhook_event_id"`
	CreatedAt              time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" db:"updated_at"`
}

// PaymentEvent is a provider-neutral billing event extracted from a verified
// webhook payload.
type PaymentEvent struct {
	ID                     string
	Gateway                string
	ExternalSubscriptionID string
	ExternalCustomerID     string
	Tier                   Tier
	Status                 SubscriptionStatus
}

// EntitlementSnapshot is an immutable copy of a user's entitlements taken at
// job start, insulating an in-flight job from later plan changes.
type EntitlementSnapshot struct {
	JobID            string        `json:"job_id" db:"job_id"`
	UserID           string        `json:"user_id" db:"user_id"`
	Tier             Tier          `json:"tier" db:"tier"`
	OperatingMode    OperatingMode `json:"operating_mode" db:"operating_mode"`
	ExecutionMode    ExecutionMode `json:"execution_mode" db:"execution_mode"`
	ContextCap       int           `json:"context_cap" db:"context_cap"`
	WebGitHubEnabled bool          `json:"web_github_enabled" db:"web_github_enabled"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
}
