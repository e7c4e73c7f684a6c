package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"

	"meet-in-the-middle-api/internal/middleware"
	"meet-in-the-middle-api/internal/model"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// envelope is the body of every response: status is "success" or "error".
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func respond(c *gin.Context, code int, msg string, data any) {
	st := statusSuccess
	if code >= http.StatusBadRequest {
		st = statusError
	}
	c.JSON(code, envelope{Status: st, Message: msg, Data: data})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInsufficientData),
		errors.Is(err, model.ErrNoSuggestions),
		errors.Is(err, model.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail maps err onto a status code. Internal details are logged, never sent.
func (h *Handler) fail(c *gin.Context, err error) {
	code := statusFor(err)
	_ = c.Error(err)
	msg := err.Error()
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, model.ErrExternalService):
		msg = model.ErrExternalService.Error()
	case code == http.StatusInternalServerError:
		h.log.Error("request failed", "path", c.FullPath(), "err", err)
		msg = "internal error"
	case errors.As(err, &pgErr):
		// constraint names and SQLSTATE stay in the log
		h.log.Warn("request rejected by database", "path", c.FullPath(), "code", pgErr.Code, "err", err)
		msg = sentinelText(code)
	}
	respond(c, code, msg, nil)
}

func sentinelText(code int) string {
	switch code {
	case http.StatusConflict:
		return model.ErrDuplicate.Error()
	case http.StatusNotFound:
		return model.ErrNotFound.Error()
	default:
		return model.ErrInvalidInput.Error()
	}
}

func bad(c *gin.Context, msg string) {
	respond(c, http.StatusBadRequest, msg, nil)
}

func identity(c *gin.Context) model.Identity {
	id, _ := middleware.IdentityFrom(c)
	return id
}

// paging reads pageNo and items, defaulting to 1 and 10.
func paging(c *gin.Context) (page, items int) {
	page, _ = strconv.Atoi(c.Query("pageNo"))
	items, _ = strconv.Atoi(c.Query("items"))
	if page < 1 {
		page = 1
	}
	if items < 1 {
		items = 10
	}
	if items > 100 {
		items = 100
	}
	return page, items
}
