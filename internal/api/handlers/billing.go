// Billing endpoints (interactive checkout):
//   - POST /v1/billing/checkout-session
//   - GET  /v1/billing/verify
//
// Webhook delivery lives in webhooks.go; verification here only covers the
// browser returning from a hosted checkout page.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bannerly/internal/core"
	"bannerly/internal/external"
	"bannerly/internal/types"
)

// CheckoutService is the subset of billing.Service the handler needs.
type CheckoutService interface {
	CreateCheckout(ctx context.Context, userID, email string, plan types.PlanTier, urls types.RedirectURLs) (string, error)
	VerifyCheckout(ctx context.Context, userID, sessionID string) (*external.CheckoutSessionInfo, error)
	CurrentPlan(ctx context.Context, userID string) (types.PlanTier, error)
}

// BillingUserStore resolves the purchasing user's email for the checkout
// session.
type BillingUserStore interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// checkoutRequest is the payload for POST /v1/billing/checkout-session.
type checkoutRequest struct {
	Plan       string `json:"plan" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

// checkoutResponse carries the hosted checkout URL.
type checkoutResponse struct {
	URL string `json:"url"`
}

// verifyResponse reports a checkout session's payment state after the
// browser returns from the hosted page.
type verifyResponse struct {
	SessionID     string         `json:"session_id"`
	PaymentStatus string         `json:"payment_status"`
	Plan          types.PlanTier `json:"plan"`
	CurrentPlan   types.PlanTier `json:"current_plan"`
}

// BillingHandler exposes interactive checkout. Credit grants happen only
// through the webhook surface; verify is purely informational.
type BillingHandler struct {
	billing   CheckoutService
	users     BillingUserStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billing CheckoutService, users BillingUserStore, v *core.Validator, l *slog.Logger) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		billing:   billing,
		users:     users,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts the billing endpoints under the v1 router.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Route("/billing", func(r chi.Router) {
		r.Post("/checkout-session", h.CreateCheckoutSession)
		r.Get("/verify", h.Verify)
	})
}

// CreateCheckoutSession handles POST /v1/billing/checkout-session.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	var req checkoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	checkoutURL, err := h.billing.CreateCheckout(r.Context(), userID, user.Email,
		types.PlanTier(req.Plan), types.RedirectURLs{
			Success: req.SuccessURL,
			Cancel:  req.CancelURL,
		})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusCreated, checkoutResponse{URL: checkoutURL})
}

// Verify handles GET /v1/billing/verify?session_id=...
// Reports the checkout session's payment state. The webhook remains the
// source of truth for credit grants; this endpoint only lets the dashboard
// show an accurate post-redirect state.
func (h *BillingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := types.GetUserID(r.Context())
	if userID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
		return
	}

	info, err := h.billing.VerifyCheckout(r.Context(), userID, r.URL.Query().Get("session_id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	currentPlan, err := h.billing.CurrentPlan(r.Context(), userID)
	if err != nil {
		// The session itself verified; degrade to reporting only its state.
		h.logger.WarnContext(r.Context(), "current plan lookup failed during verify",
			"user_id", userID,
			"error", err,
		)
		currentPlan = types.PlanFree
	}

	core.Data(w, r, http.StatusOK, verifyResponse{
		SessionID:     info.ID,
		PaymentStatus: info.PaymentStatus,
		Plan:          info.Plan,
		CurrentPlan:   currentPlan,
	})
}
