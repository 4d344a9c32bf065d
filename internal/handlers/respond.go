package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/apperr"
	"github.com/vivenzalife/vivenza/pkg/i18n"
)

const callerKey = "user_id"

// callerID is empty for anonymous requests.
func callerID(c *gin.Context) string {
	return c.GetString(callerKey)
}

func respondError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)
	if status >= 500 {
		// Surfaced by the server error logger.
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": i18n.Translate(apperr.PublicMessage(err)), "code": code})
}

func abortWithError(c *gin.Context, err error) {
	respondError(c, err)
	c.Abort()
}

func invalidRequest(c *gin.Context) {
	respondError(c, apperr.NewInvalid("invalid request"))
}

// optionalFile returns a nil file when the form carries no such field.
func optionalFile(c *gin.Context, field string) (multipart.File, string, error) {
	file, header, err := c.Request.FormFile(field)
	switch {
	case err == nil:
		return file, header.Filename, nil
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, "", nil
	default:
		return nil, "", err
	}
}
