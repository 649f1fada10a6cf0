package api

import (
	"context"
	"errors"
	"net/http"

	"mass-messaging/internal/contacts"
	"mass-messaging/internal/directory"
	"mass-messaging/internal/metrics"
	"mass-messaging/pkg/models"

	"github.com/gin-gonic/gin"
)

// DirectorySource lists contacts from the remote directory
type DirectorySource interface {
	FetchContacts(ctx context.Context, q directory.Query) (directory.Page, error)
}

type ContactHandler struct {
	Directory DirectorySource
}

func NewContactHandler(dir DirectorySource) *ContactHandler {
	return &ContactHandler{Directory: dir}
}

// GetDirectoryContacts returns directory contacts normalized into records
func (h *ContactHandler) GetDirectoryContacts(c *gin.Context) {
	page, err := h.Directory.FetchContacts(c.Request.Context(), directory.Query{
		Search:     c.Query("search"),
		Department: c.Query("department"),
		Limit:      queryInt(c, "limit", 0),
		Offset:     queryInt(c, "offset", 0),
	})
	switch {
	case errors.Is(err, directory.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Contact directory not configured"})
		return
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to fetch directory contacts: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":    page.Total,
		"contacts": contacts.FromDirectory(page.Contacts),
	})
}

func (h *ContactHandler) GetDepartments(c *gin.Context) {
	c.JSON(http.StatusOK, directory.Departments())
}

type ManualContactRequest struct {
	Value string `json:"value" binding:"required"`
	Name  string `json:"name"`
}

// AddManual classifies one typed phone number or email address
func (h *ContactHandler) AddManual(c *gin.Context) {
	var req ManualContactRequest
	if !bindJSON(c, &req) {
		return
	}
	rec, err := contacts.FromManual(req.Value, req.Name)
	if err != nil {
		metrics.IncContactsRejected(string(contacts.ReasonInvalidFormat))
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   string(contacts.ReasonInvalidFormat),
			"message": "Enter a phone number with 10 to 15 digits or a valid email address",
		})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type BulkPasteRequest struct {
	Text string `json:"text" binding:"required"`
}

// PreviewBulk splits a pasted list into valid records and invalid tokens
func (h *ContactHandler) PreviewBulk(c *gin.Context) {
	var req BulkPasteRequest
	if !bindJSON(c, &req) {
		return
	}
	c.JSON(http.StatusOK, contacts.FromBulkPaste(req.Text))
}

type MergeRequest struct {
	Existing []models.ContactRecord `json:"existing"`
	Incoming []models.ContactRecord `json:"incoming" binding:"required"`
}

// Merge partitions incoming records against the current selection
func (h *ContactHandler) Merge(c *gin.Context) {
	var req MergeRequest
	if !bindJSON(c, &req) {
		return
	}
	res := contacts.Merge(req.Existing, req.Incoming)
	for _, r := range res.Rejected {
		metrics.IncContactsRejected(string(r.Reason))
	}
	c.JSON(http.StatusOK, res)
}
