package api

import "github.com/gin-gonic/gin"

// Handlers groups every handler served under /api
type Handlers struct {
	Contacts  *ContactHandler
	Groups    *GroupHandler
	Templates *TemplateHandler
	Broadcast *BroadcastHandler
	Messages  *MessageHandler
	Dashboard *DashboardHandler
}

// Register mounts the API routes on g
func (h Handlers) Register(g *gin.RouterGroup) {
	// Contact sources
	g.GET("/contacts/directory", h.Contacts.GetDirectoryContacts)
	g.GET("/contacts/departments", h.Contacts.GetDepartments)
	g.POST("/contacts/manual", h.Contacts.AddManual)
	g.POST("/contacts/bulk/preview", h.Contacts.PreviewBulk)
	g.POST("/contacts/merge", h.Contacts.Merge)

	// Groups
	g.GET("/groups", h.Groups.GetGroups)
	g.POST("/groups", h.Groups.CreateGroup)
	g.POST("/groups/resolve", h.Groups.ResolveGroups)
	g.GET("/groups/:id", h.Groups.GetGroup)
	g.PUT("/groups/:id", h.Groups.UpdateGroup)
	g.DELETE("/groups/:id", h.Groups.DeleteGroup)
	g.POST("/groups/:id/contacts", h.Groups.AddContacts)
	g.PUT("/groups/:id/contacts/:contactId", h.Groups.UpdateContact)
	g.DELETE("/groups/:id/contacts/:contactId", h.Groups.DeleteContact)

	// Templates
	g.GET("/templates", h.Templates.GetTemplates)
	g.POST("/templates", h.Templates.CreateTemplate)
	g.GET("/templates/whatsapp", h.Broadcast.GetChatTemplates)
	g.POST("/templates/sync", h.Broadcast.SyncTemplates)
	g.GET("/templates/:id", h.Templates.GetTemplate)
	g.PUT("/templates/:id", h.Templates.UpdateTemplate)
	g.DELETE("/templates/:id", h.Templates.DeleteTemplate)
	g.POST("/templates/:id/variables", h.Templates.GetVariables)
	g.POST("/templates/:id/preview", h.Templates.Preview)

	// Dispatch
	g.POST("/messages/whatsapp-template", h.Broadcast.SendBroadcast)
	g.POST("/messages/bulk", h.Messages.SendBulk)
	g.POST("/sms/send-bulk", h.Messages.SendSMS)
	g.GET("/sms/credits", h.Messages.GetCredits)

	// History
	g.GET("/history", h.Dashboard.GetHistory)
	g.GET("/history/stats", h.Dashboard.GetStats)
}
