// Subscription HTTP handlers.
//
// This file exposes the REST endpoints for the subscriber lifecycle:
//   - POST /subscriptions          (sign up, starts pending)
//   - GET  /subscriptions/confirm  (redeem the emailed confirmation token)
//
// Handlers in this file are transport-thin: they validate input, delegate to
// application services, and translate domain/service errors into HTTP results.
// Signups accept both JSON and form-encoded bodies so the endpoint works from
// a plain HTML form as well as API clients.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/services"
)

// SubscribeRequest is the payload for creating a subscription.
type SubscribeRequest struct {
	// Name as it should appear in greetings (1-256 chars).
	Name string `json:"name" form:"name" binding:"required" example:"Ursula Le Guin"`
	// Email receives the confirmation link and, later, the issues.
	Email string `json:"email" form:"email" binding:"required" example:"ursula@example.com"`
}

// SubscribeResponse acknowledges a pending signup.
type SubscribeResponse struct {
	SubscriberID string `json:"subscriber_id" example:"141add05-4415-4938-b5a1-17e0d3171aff"`
	Status       string `json:"status" example:"pending_confirmation"`
}

// Subscribe godoc
// @ID          subscribe
// @Summary     Subscribe to the newsletter
// @Description Stores a pending subscriber and emails a confirmation link. The subscription only receives issues after the link is followed.
// @Tags        Subscriptions
// @Accept      json
// @Accept      x-www-form-urlencoded
// @Produce     json
//
// @Param       body  body  handlers.SubscribeRequest  true  "Signup payload"
//
// @Success     201  {object} handlers.SubscribeResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid name or email"
// @Failure     409  {object} handlers.ErrorResponse "Email already subscribed"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /subscriptions [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and email are required")
		return
	}

	id, err := h.subSvc.Subscribe(c.Request.Context(), req.Name, req.Email)
	switch {
	case errors.Is(err, domain.ErrInvalidName):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name is empty, too long, or contains forbidden characters")
		return
	case errors.Is(err, domain.ErrInvalidEmail):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "email address is not valid")
		return
	case errors.Is(err, services.ErrAlreadySubscribed):
		fail(c, http.StatusConflict, ErrCodeConflict, "email is already subscribed")
		return
	case errors.Is(err, services.ErrConfirmationSend):
		// The pending row exists but the confirmation email did not go out.
		fail(c, http.StatusInternalServerError, ErrCodeSubscribeFailed, "could not send the confirmation email")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	ok(c, http.StatusCreated, SubscribeResponse{
		SubscriberID: id,
		Status:       domain.SubscriberStatusPending,
	})
}

// ConfirmSubscription godoc
// @ID          confirmSubscription
// @Summary     Confirm a subscription
// @Description Redeems the token from the confirmation email and activates the subscription. Safe to follow the link more than once.
// @Tags        Subscriptions
// @Produce     json
//
// @Param       subscription_token  query  string  true  "Token from the confirmation email"  example(k3j2h1g4f5d6s7a8q9w0e1r2t)
//
// @Success     200  {object} map[string]string
// @Failure     400  {object} handlers.ErrorResponse "Missing token"
// @Failure     401  {object} handlers.ErrorResponse "Unknown token"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /subscriptions/confirm [get]
func (h *Handlers) ConfirmSubscription(c *gin.Context) {
	token := strings.TrimSpace(c.Query("subscription_token"))
	if token == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "subscription_token query parameter is required")
		return
	}

	if err := h.subSvc.Confirm(c.Request.Context(), token); err != nil {
		if errors.Is(err, services.ErrUnknownToken) {
			fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "unknown subscription token")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeConfirmFailed, err.Error())
		return
	}

	ok(c, http.StatusOK, gin.H{"status": domain.SubscriberStatusConfirmed})
}
