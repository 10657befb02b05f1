package rest

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/feral-file/ff-options/internal/options"
	"github.com/feral-file/ff-options/internal/value"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// ListOptions returns every option, optionally filtered by autoload
	// GET /api/v1/options?autoload=<true|false>
	ListOptions(c *gin.Context)

	// GetOption returns one option with its flags and timestamps
	// GET /api/v1/options/:key
	GetOption(c *gin.Context)

	// HasOption reports existence through the status code only
	// HEAD /api/v1/options/:key
	HasOption(c *gin.Context)

	// SetOption creates or replaces one option (requires authentication)
	// PUT /api/v1/options/:key
	SetOption(c *gin.Context)

	// SetOptions creates or replaces many options with a shared autoload flag (requires authentication)
	// PUT /api/v1/options
	SetOptions(c *gin.Context)

	// DeleteOption removes one option (requires authentication)
	// DELETE /api/v1/options/:key
	DeleteOption(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface on top of the options facade.
// Each request runs under an options.Capture so storage failures surface as 5xx, not 404.
type handler struct {
	options *options.Options
}

// NewHandler creates a new REST API handler
func NewHandler(opts *options.Options) Handler {
	return &handler{
		options: opts,
	}
}

// ListOptions returns every option, optionally filtered by autoload
func (h *handler) ListOptions(c *gin.Context) {
	var autoload *bool
	if raw, ok := c.GetQuery("autoload"); ok {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "Invalid autoload filter", "autoload must be true or false")
			return
		}
		autoload = &parsed
	}

	ctx, capture := options.WithCapture(c.Request.Context())
	all, err := h.options.GetAll(ctx, autoload)
	if err != nil {
		respondStoreError(c, err)
		return
	}
	if err := capture.Err(); err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListOptionsResponse{Options: all})
}

// GetOption returns one option with its flags and timestamps
func (h *handler) GetOption(c *gin.Context) {
	key := c.Param("key")

	ctx, capture := options.WithCapture(c.Request.Context())
	row := h.options.Option(ctx, key)
	if err := capture.Err(); err != nil {
		respondStoreError(c, err)
		return
	}
	if row == nil {
		respondNotFound(c, "Option not found", key)
		return
	}

	v, err := value.Decode(row.Value, row.IsJSON)
	if err != nil {
		respondStoreError(c, err)
		return
	}

	c.JSON(http.StatusOK, newOptionResponse(row, v))
}

// HasOption reports existence through the status code only
func (h *handler) HasOption(c *gin.Context) {
	ctx, capture := options.WithCapture(c.Request.Context())
	exists := h.options.Exists(ctx, c.Param("key"))
	if capture.Err() != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	if !exists {
		c.Status(http.StatusNotFound)
		return
	}

	c.Status(http.StatusOK)
}

// SetOption creates or replaces one option
func (h *handler) SetOption(c *gin.Context) {
	key := c.Param("key")

	var req SetOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	v, err := parseValue(req.Value)
	if err != nil {
		respondBadRequest(c, "Invalid option value", err.Error())
		return
	}

	ctx, capture := options.WithCapture(c.Request.Context())
	if !h.options.Set(ctx, key, v, req.Autoload) {
		respondStoreError(c, capture.Err())
		return
	}

	c.Status(http.StatusNoContent)
}

// SetOptions creates or replaces many options with a shared autoload flag.
// Entries are written independently; failed keys are listed in the error.
func (h *handler) SetOptions(c *gin.Context) {
	var req SetOptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	values := make(map[string]value.Value, len(req.Options))
	for key, raw := range req.Options {
		v, err := parseValue(raw)
		if err != nil {
			respondBadRequest(c, "Invalid option value", key+": "+err.Error())
			return
		}
		values[key] = v
	}

	ctx, capture := options.WithCapture(c.Request.Context())
	if !h.options.SetMultiple(ctx, values, req.Autoload) {
		failures := capture.Failures()
		keys := make([]string, 0, len(failures))
		for _, f := range failures {
			keys = append(keys, f.Key)
		}
		sort.Strings(keys)
		respondPartialFailure(c, keys)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteOption removes one option
func (h *handler) DeleteOption(c *gin.Context) {
	key := c.Param("key")

	ctx, capture := options.WithCapture(c.Request.Context())
	deleted := h.options.Delete(ctx, key)
	if err := capture.Err(); err != nil {
		respondStoreError(c, err)
		return
	}
	if !deleted {
		respondNotFound(c, "Option not found", key)
		return
	}

	c.Status(http.StatusNoContent)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "ff-options-api",
	})
}
