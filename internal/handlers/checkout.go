package handlers

import (
	"net/http"

	"flower-storefront/internal/checkout"
	"flower-storefront/internal/models"
)

// CheckoutResponse wraps the order snapshot with the confirmation text
type CheckoutResponse struct {
	Order   *models.OrderSnapshot `json:"order"`
	Message string                `json:"message"`
}

// CheckoutHandler handles order submission
type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(orchestrator *checkout.Orchestrator) *CheckoutHandler {
	return &CheckoutHandler{orchestrator: orchestrator}
}

// Checkout handles POST /v1/checkout. The order is sent once; the cart is
// cleared whether or not the backend accepted it.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := currentSession(w, r)
	if !ok {
		return
	}

	snapshot, err := h.orchestrator.Checkout(r.Context(), s.Identity(), s.Cart)
	if err != nil {
		writeDomainError(w, r, "checkout", err)
		return
	}

	message := "Order placed, the florist will contact you to confirm"
	if snapshot.OperatorHandle != "" {
		message = "Order placed, contact " + snapshot.OperatorHandle + " to confirm delivery"
	}
	if !snapshot.Submitted {
		message = "Order could not be sent, please contact " + operatorOrShop(snapshot.OperatorHandle)
	}

	writeJSONResponse(w, http.StatusOK, CheckoutResponse{Order: snapshot, Message: message})
}

func operatorOrShop(handle string) string {
	if handle == "" {
		return "the shop"
	}
	return handle
}
