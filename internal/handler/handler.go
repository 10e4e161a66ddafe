package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gestoria/internal/middleware"
	"gestoria/internal/service"
	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Guards bundles the middleware every handler needs to protect its routes.
type Guards struct {
	Auth   *middleware.Auth
	Limits *middleware.Limiters
}

// respondError maps service errors to HTTP status codes. Unknown errors are
// logged and hidden behind a generic 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
		c.AbortWithStatusJSON(status, response.Error(status, "internal server error"))
		return
	}

	var coded *service.CodedError
	if errors.As(err, &coded) {
		c.AbortWithStatusJSON(status, response.ErrorWithCode(status, coded.Message, coded.Code))
		return
	}
	c.AbortWithStatusJSON(status, response.Error(status, err.Error()))
}

// bindJSON answers 400 and returns false when the body does not validate.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, q interface{}) bool {
	if err := c.ShouldBindQuery(q); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid query parameters: "+err.Error()))
		return false
	}
	return true
}

// queryYear reads ?year=, falling back to def. ok is false after a 400.
func queryYear(c *gin.Context, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query("year"))
	if raw == "" {
		return def, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 2000 || year > 2100 {
		c.AbortWithStatusJSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "year must be between 2000 and 2100"))
		return 0, false
	}
	return year, true
}

func queryBool(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(c.Query(key))
	return v
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, data))
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, data))
}

func message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": msg}))
}
