package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"shortlinks/internal/apperr"
	"shortlinks/internal/db"
	"shortlinks/internal/links"

	"github.com/gin-gonic/gin"
)

// PreviewReader looks up the rendered preview of a link. *db.Repo implements it.
type PreviewReader interface {
	FindPreview(ctx context.Context, linkID uint) (*db.LinkPreview, error)
}

// QueueStatus reports the preview queue state. *renderer.Queue implements it.
type QueueStatus interface {
	Status() map[string]interface{}
}

// Handler serves the link endpoints.
type Handler struct {
	store    *links.Store
	previews PreviewReader
	queue    QueueStatus
	pageSize int
}

// NewHandler builds a Handler. previews and queue may be nil.
func NewHandler(store *links.Store, previews PreviewReader, queue QueueStatus, pageSize int) *Handler {
	if pageSize < 1 {
		pageSize = 6
	}
	return &Handler{store: store, previews: previews, queue: queue, pageSize: pageSize}
}

// CreateRequest is the body for POST /links, as JSON or form data.
type CreateRequest struct {
	URL string `json:"url" form:"url"`
}

// ListResponse is one page of the caller's links.
type ListResponse struct {
	Links   []*db.Link `json:"links"`
	Page    int        `json:"page"`
	HasNext bool       `json:"has_next"`
}

// DetailResponse is a link together with its preview, if any.
type DetailResponse struct {
	Link    *db.Link        `json:"link"`
	Preview *db.LinkPreview `json:"preview"`
}

// ListHandler returns the caller's links newest first, PAGE_SIZE per page.
func (h *Handler) ListHandler(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	skip := (page - 1) * h.pageSize
	resp := ListResponse{Links: make([]*db.Link, 0, h.pageSize), Page: page}
	seen := 0
	for link, err := range h.store.List(c.Request.Context(), OwnerID(c)) {
		if err != nil {
			respondError(c, err)
			return
		}
		seen++
		if seen <= skip {
			continue
		}
		if len(resp.Links) == h.pageSize {
			resp.HasNext = true
			break
		}
		resp.Links = append(resp.Links, link)
	}

	c.JSON(http.StatusOK, resp)
}

// CreateHandler shortens a URL for the caller. JSON clients get the link
// back; form posts are redirected to the list or shown their errors.
func (h *Handler) CreateHandler(c *gin.Context) {
	isJSON := c.ContentType() == gin.MIMEJSON

	var req CreateRequest
	var bindErr error
	if isJSON {
		bindErr = c.ShouldBindJSON(&req)
	} else {
		bindErr = c.ShouldBind(&req)
	}
	if bindErr != nil {
		if isJSON {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + bindErr.Error()})
		} else {
			c.JSON(http.StatusOK, gin.H{"errors": []string{"Invalid form submission"}})
		}
		return
	}

	link, err := h.store.Create(c.Request.Context(), OwnerID(c), req.URL)
	if err != nil {
		if !isJSON && (apperr.IsValidation(err) || apperr.IsDuplicate(err)) {
			c.JSON(http.StatusOK, gin.H{"errors": []string{err.Error()}})
			return
		}
		respondError(c, err)
		return
	}

	if !isJSON {
		c.Redirect(http.StatusFound, "/links")
		return
	}
	c.JSON(http.StatusCreated, link)
}

// DetailHandler returns one of the caller's links with its preview.
func (h *Handler) DetailHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	link, err := h.store.Detail(c.Request.Context(), OwnerID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := DetailResponse{Link: link}
	if h.previews != nil {
		preview, err := h.previews.FindPreview(c.Request.Context(), link.ID)
		switch {
		case err == nil:
			resp.Preview = preview
		case !apperr.IsNotFound(err):
			log.Printf("API: failed to load preview for link %d: %v", link.ID, err)
		}
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteHandler permanently removes one of the caller's links.
func (h *Handler) DeleteHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), OwnerID(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RedirectHandler sends the client to the original URL of a short code.
func (h *Handler) RedirectHandler(c *gin.Context) {
	shortCode := c.Param("shortCode")

	link, err := h.store.Resolve(c.Request.Context(), shortCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusMovedPermanently, link.OriginalURL)
}

// HealthCheckHandler provides a simple health check endpoint.
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// StatusHandler reports liveness plus the preview queue state.
func (h *Handler) StatusHandler(c *gin.Context) {
	queue := gin.H{"enabled": false}
	if h.queue != nil {
		queue = gin.H{"enabled": true}
		for k, v := range h.queue.Status() {
			queue[k] = v
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP", "preview_queue": queue})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return 0, false
	}
	return uint(id), true
}

// respondError maps store errors to HTTP statuses. Ownership mismatches
// are reported as 404 so other owners' links are not revealed.
func respondError(c *gin.Context, err error) {
	switch {
	case apperr.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperr.IsDuplicate(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.IsNotFound(err), apperr.IsAuthorization(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
	case apperr.IsCapacity(err):
		log.Printf("API: capacity error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No short code available, try again later"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Request cancelled"})
	default:
		log.Printf("API: internal error on %s %s (request %s): %v", c.Request.Method, c.Request.URL.Path, c.GetString(requestIDHeader), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
