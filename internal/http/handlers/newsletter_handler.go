// Newsletter HTTP handlers.
//
// This file exposes REST endpoints for newsletter issues:
//   - POST   /admin/newsletters   (idempotent publish)
//   - GET    /admin/newsletters   (list, paginated)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. The publish endpoint is special
// in one respect: its success response is never built here. The service
// persists the acknowledgement alongside the publish itself, and the handler
// streams that stored response verbatim whether it is fresh or a replay.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// NewsletterService defines publish and listing operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type NewsletterService interface {
	// Publish runs the idempotent publish pipeline and returns the response
	// to serve, with replayed=true when it came from the ledger.
	Publish(ctx context.Context, userID string, key domain.IdempotencyKey, subject, textBody, htmlBody string) (*domain.StoredResponse, bool, error)
	// ListPage returns a page of published issues and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.NewsletterIssue, int64, error)
}

// SubscriberService defines signup and confirmation operations.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type SubscriberService interface {
	// Subscribe stores a pending subscriber and emails the confirmation link.
	Subscribe(ctx context.Context, name, email string) (string, error)
	// Confirm redeems a confirmation token.
	Confirm(ctx context.Context, token string) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for newsletters and subscriptions.
// It depends on abstract service interfaces to keep transport concerns
// separate from business logic.
type Handlers struct {
	newsSvc NewsletterService
	subSvc  SubscriberService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(newsSvc NewsletterService, subSvc SubscriberService) *Handlers {
	return &Handlers{newsSvc: newsSvc, subSvc: subSvc}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
//
// Idempotency keys are scoped per user, so two publishers reusing the same
// key never collide.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// PublishNewsletterRequest is the JSON payload for publishing an issue.
//
// The idempotency key may arrive either in the body or via the
// Idempotency-Key header; the body wins when both are present.
type PublishNewsletterRequest struct {
	// Subject line shown to subscribers.
	Subject string `json:"subject" binding:"required" example:"Issue #42: parsing, not validating"`
	// TextBody is the plain-text rendition of the issue.
	TextBody string `json:"text_body" example:"Hello from issue 42..."`
	// HTMLBody is the HTML rendition of the issue.
	HTMLBody string `json:"html_body" example:"<p>Hello from issue 42...</p>"`
	// IdempotencyKey deduplicates retries of the same publish.
	IdempotencyKey string `json:"idempotency_key" example:"publish-2026-08-30-a1b2c3"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListNewslettersResponse wraps a page of issues and pagination information.
type ListNewslettersResponse struct {
	Newsletters []domain.NewsletterIssue `json:"newsletters"`
	Pagination  Pagination               `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// PublishNewsletter godoc
// @ID          publishNewsletter
// @Summary     Publish a newsletter issue
// @Description Idempotently publishes an issue to all confirmed subscribers. Retries with the same Idempotency-Key replay the original acknowledgement byte for byte without re-sending anything.
// @Tags        Newsletters
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(editor-1)
// @Param       Idempotency-Key  header  string  false "Idempotency key (alternative to the body field)"  example(publish-2026-08-30-a1b2c3)
// @Param       body             body    handlers.PublishNewsletterRequest  true  "Issue payload"
//
// @Success     202  {object}  services.PublishAck
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Publish with this key still in flight"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/newsletters [post]
func (h *Handlers) PublishNewsletter(c *gin.Context) {
	var req PublishNewsletterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rawKey := strings.TrimSpace(req.IdempotencyKey)
	if rawKey == "" {
		rawKey = strings.TrimSpace(c.GetHeader("Idempotency-Key"))
	}
	key, err := domain.ParseIdempotencyKey(rawKey)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "idempotency key required (1-50 printable ASCII chars)")
		return
	}

	resp, replayed, err := h.newsSvc.Publish(
		c.Request.Context(), userID(c), key, req.Subject, req.TextBody, req.HTMLBody,
	)
	switch {
	case errors.Is(err, services.ErrEmptySubject), errors.Is(err, services.ErrEmptyBody):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrPublishInProgress):
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodePublishInProgress,
			"a publish with this idempotency key is still in flight, retry shortly")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodePublishFailed, err.Error())
		return
	}

	if replayed {
		middleware.LoggerFrom(c).Info().
			Str("idempotency_key", key.String()).
			Msg("replayed stored publish acknowledgement")
	}
	replayable(c, resp)
}

// ListNewsletters godoc
// @ID          listNewsletters
// @Summary     List published issues (paginated)
// @Description Returns a page of published newsletter issues, newest first.
// @Tags        Newsletters
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(editor-1)
// @Param       page       query   int     false "Page number"            minimum(1) default(1)
// @Param       page_size  query   int     false "Items per page"         minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListNewslettersResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/newsletters [get]
func (h *Handlers) ListNewsletters(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.newsSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	resp := ListNewslettersResponse{
		Newsletters: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	}
	ok(c, http.StatusOK, resp)
}
