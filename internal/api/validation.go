package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"mass-messaging/internal/contacts"
	"mass-messaging/internal/dispatch"
	"mass-messaging/internal/store"
	"mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// ErrorBody is the payload returned for rejected request bodies
type ErrorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields"`
}

// ErrorResponse converts a binding error into a structured response
func ErrorResponse(err error) ErrorBody {
	fields := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Field())
			fields[field] = append(fields[field], fe.Tag())
		}
	}
	if len(fields) == 0 {
		return ErrorBody{Error: err.Error(), Fields: fields}
	}
	return ErrorBody{Error: "validation_failed", Fields: fields}
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse(err))
		return false
	}
	return true
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v >= 0 {
		return v
	}
	return def
}

func storeError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": what + " name already exists"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// dispatchError maps a dispatch failure to its HTTP answer
func dispatchError(c *gin.Context, err error, outcome models.SendOutcome, rejected []contacts.Rejection) {
	var derr *dispatch.Error
	if !errors.As(err, &derr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	body := gin.H{"error": string(derr.Code), "message": derr.Error()}
	if len(rejected) > 0 {
		body["rejected"] = rejected
	}
	switch derr.Code {
	case dispatch.CodeNoEligibleRecipients:
		body["excluded"] = outcome.Excluded
		c.JSON(http.StatusUnprocessableEntity, body)
	case dispatch.CodeMissingRequiredMedia:
		body["warnings"] = []dispatch.Code{derr.Code}
		body["excluded"] = outcome.Excluded
		c.JSON(http.StatusConflict, body)
	case dispatch.CodeCollaboratorFailure:
		c.JSON(http.StatusBadGateway, body)
	default:
		c.JSON(http.StatusBadRequest, body)
	}
}
