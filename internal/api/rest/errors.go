package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apierrors "github.com/feral-file/ff-options/internal/api/shared/errors"
	"github.com/feral-file/ff-options/internal/store"
	"github.com/feral-file/ff-options/internal/value"
)

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, apierrors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusNotFound, apierrors.NewNotFoundError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusUnprocessableEntity, apierrors.NewValidationError(message))
}

// respondPartialFailure responds with the keys a batch write could not store
func respondPartialFailure(c *gin.Context, keys []string) {
	c.JSON(http.StatusInternalServerError, apierrors.NewPartialFailureError("Some options were not stored", keys))
}

// respondStoreError maps an option store failure to a response.
// Details stay out of server errors; the facade has already logged them.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrInvalidKey):
		respondValidationError(c, err.Error())
	case errors.Is(err, value.ErrDecode):
		c.JSON(http.StatusInternalServerError, apierrors.NewDecodeError("Stored option value is not valid JSON"))
	case errors.Is(err, store.ErrDataAccess), errors.Is(err, store.ErrSchemaProvisioning), errors.Is(err, store.ErrNotPersisted):
		c.JSON(http.StatusInternalServerError, apierrors.NewDatabaseError("Option storage is unavailable"))
	default:
		c.JSON(http.StatusInternalServerError, apierrors.NewInternalError("Internal server error"))
	}
}
