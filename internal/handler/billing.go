package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"

	"github.com/refinery-dev/refinery/internal/domain"
	"github.com/refinery-dev/refinery/internal/service"
)

// BillingHandler hands users over to the payment provider's hosted billing
// portal. Plan changes flow back asynchronously through the webhook.
type BillingHandler struct {
	subs        *service.SubscriptionService
	frontendURL string
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(subs *service.SubscriptionService, frontendURL string) *BillingHandler {
	return &BillingHandler{subs: subs, frontendURL: frontendURL}
}

// Portal creates a billing portal session for the caller and returns its URL.
func (h *BillingHandler) Portal(c echo.Context) error {
	claims, ok := GetClaims(c)
	if !ok {
		return domain.ErrUnauthorized
	}

	sub, err := h.subs.Current(c.Request().Context(), claims.UserID)
	if err != nil {
		return err
	}
	if sub.ExternalCustomerID == nil {
		return fmt.Errorf("%w: no billing account is linked to this user", domain.ErrConflict)
	}

	session, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(*sub.ExternalCustomerID),
		ReturnURL: stripe.String(h.frontendURL + "/settings/billing"),
	})
	if err != nil {
		return &domain.DependencyError{Op: "billing portal session", Err: err}
	}

	return JSON(c, http.StatusOK, map[string]string{"url": session.URL})
}
