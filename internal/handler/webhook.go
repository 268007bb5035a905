package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/metrics"
	"github.com/refinery-dev/refinery/internal/service"
)

// WebhookHandler ingests payment-provider webhooks. Signature verification
// happens here; everything past this point works on provider-neutral events.
type WebhookHandler struct {
	webhooks      *service.WebhookService
	signingSecret string
	metrics       *metrics.Metrics
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhooks *service.WebhookService, signingSecret string, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, signingSecret: signingSecret, metrics: m}
}

// Stripe verifies and applies a Stripe webhook delivery. Replays and event
// types we do not track are acknowledged with 200 so Stripe stops retrying.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read webhook body", domain.ErrInvalidInput)
	}

	event, err := webhook.ConstructEvent(payload, c.Request().Header.Get("Stripe-Signature"), h.signingSecret)
	if err != nil {
		h.metrics.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		return fmt.Errorf("%w: webhook signature verification failed", domain.ErrUnauthorized)
	}

	paymentEvent, ok, err := translateStripeEvent(event)
	if err != nil {
		h.metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		return err
	}
	if !ok {
		h.metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		return c.NoContent(http.StatusOK)
	}

	duplicate, err := h.webhooks.Apply(c.Request().Context(), paymentEvent)
	if err != nil {
		h.metrics.WebhookEvents.WithLabelValues("error").Inc()
		return err
	}

	if duplicate {
		h.metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
	} else {
		h.metrics.WebhookEvents.WithLabelValues("applied").Inc()
	}
	return c.NoContent(http.StatusOK)
}

// translateStripeEvent maps a Stripe event to a provider-neutral payment
// event. ok=false means the event type is not one we track.
func translateStripeEvent(event stripe.Event) (domain.PaymentEvent, bool, error) {
	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
	default:
		return domain.PaymentEvent{}, false, nil
	}

	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: decode subscription payload", domain.ErrInvalidInput)
	}
	if sub.ID == "" || sub.Customer == nil || sub.Customer.ID == "" {
		return domain.PaymentEvent{}, false, fmt.Errorf("%w: subscription payload missing identifiers", domain.ErrInvalidInput)
	}

	status := translateStripeStatus(sub.Status)
	if event.Type == "customer.subscription.deleted" {
		status = domain.SubscriptionCancelled
	}

	return domain.PaymentEvent{
		ID:                     event.ID,
		Gateway:                "stripe",
		ExternalSubscriptionID: sub.ID,
		ExternalCustomerID:     sub.Customer.ID,
		Tier:                   tierFromMetadata(sub.Metadata),
		Status:                 status,
	}, true, nil
}

func translateStripeStatus(status stripe.SubscriptionStatus) domain.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return domain.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return domain.SubscriptionTrial
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return domain.SubscriptionPastDue
	default:
		return domain.SubscriptionCancelled
	}
}

// tierFromMetadata reads the tier the checkout flow stamped onto the
// subscription. Unknown or missing values fall back to the free tier so a
// misconfigured product can never grant entitlements.
func tierFromMetadata(metadata map[string]string) domain.Tier {
	switch domain.Tier(strings.ToUpper(metadata["tier"])) {
	case domain.TierPlus:
		return domain.TierPlus
	case domain.TierPro:
		return domain.TierPro
	case domain.TierMax:
		return domain.TierMax
	case domain.TierEnterprise:
		return domain.TierEnterprise
	default:
		return domain.TierFree
	}
}
