package api

import (
	"errors"
	"net/http"

	"mass-messaging/internal/contacts"
	"mass-messaging/internal/store"

	"github.com/gin-gonic/gin"
)

type GroupHandler struct {
	Store *store.GroupStore
}

func NewGroupHandler(s *store.GroupStore) *GroupHandler {
	return &GroupHandler{Store: s}
}

type GroupRequest struct {
	Name        string `json:"name" binding:"required,max=255"`
	Description string `json:"description"`
}

func (h *GroupHandler) GetGroups(c *gin.Context) {
	groups, err := h.Store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, groups)
}

func (h *GroupHandler) GetGroup(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	g, err := h.Store.Get(c.Request.Context(), id)
	if err != nil {
		storeError(c, err, "Group")
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *GroupHandler) CreateGroup(c *gin.Context) {
	var req GroupRequest
	if !bindJSON(c, &req) {
		return
	}
	g, err := h.Store.Create(c.Request.Context(), req.Name, req.Description)
	if err != nil {
		storeError(c, err, "Group")
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (h *GroupHandler) UpdateGroup(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req GroupRequest
	if !bindJSON(c, &req) {
		return
	}
	g, err := h.Store.Update(c.Request.Context(), id, req.Name, req.Description)
	if err != nil {
		storeError(c, err, "Group")
		return
	}
	c.JSON(http.StatusOK, g)
}

func (h *GroupHandler) DeleteGroup(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Store.Delete(c.Request.Context(), id); err != nil {
		storeError(c, err, "Group")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Group deleted"})
}

type AddGroupContactsRequest struct {
	Contacts []store.NewContact `json:"contacts" binding:"required,min=1"`
}

// AddContacts adds new members, skipping duplicates and invalid entries
func (h *GroupHandler) AddContacts(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req AddGroupContactsRequest
	if !bindJSON(c, &req) {
		return
	}
	added, rejected, err := h.Store.AddContacts(c.Request.Context(), id, req.Contacts)
	if err != nil {
		storeError(c, err, "Group")
		return
	}
	if rejected == nil {
		rejected = []contacts.Rejection{}
	}
	c.JSON(http.StatusCreated, gin.H{"added": added, "rejected": rejected})
}

func (h *GroupHandler) UpdateContact(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	contactID, ok := idParam(c, "contactId")
	if !ok {
		return
	}
	var req store.NewContact
	if !bindJSON(c, &req) {
		return
	}
	gc, err := h.Store.UpdateContact(c.Request.Context(), id, contactID, req)
	if errors.Is(err, contacts.ErrInvalidFormat) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": string(contacts.ReasonInvalidFormat)})
		return
	}
	if err != nil {
		storeError(c, err, "Contact")
		return
	}
	c.JSON(http.StatusOK, gc)
}

func (h *GroupHandler) DeleteContact(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	contactID, ok := idParam(c, "contactId")
	if !ok {
		return
	}
	if err := h.Store.DeleteContact(c.Request.Context(), id, contactID); err != nil {
		storeError(c, err, "Contact")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "Contact deleted"})
}

type ResolveGroupsRequest struct {
	GroupIDs []uint `json:"group_ids" binding:"required,min=1"`
}

// ResolveGroups loads every requested group and returns their members as
// selection records, repeated members removed
func (h *GroupHandler) ResolveGroups(c *gin.Context) {
	var req ResolveGroupsRequest
	if !bindJSON(c, &req) {
		return
	}
	groups, err := contacts.ResolveGroups(c.Request.Context(), h.Store, req.GroupIDs)
	if err != nil {
		storeError(c, err, "Group")
		return
	}
	merged := contacts.Merge(nil, contacts.FromGroups(groups))
	c.JSON(http.StatusOK, gin.H{
		"groups":   groups,
		"contacts": merged.Added,
		"rejected": merged.Rejected,
	})
}
