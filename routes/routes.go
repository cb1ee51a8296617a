package routes

import (
	"github.com/LovationAdmin/advisor-api/handlers"
	"github.com/LovationAdmin/advisor-api/middleware"

	"github.com/gin-gonic/gin"
)

// SetupAdvisorRoutes registers the chat, decision and summary functions.
// Identity is optional: anonymous requests use demoProfileId or get general chat.
func SetupAdvisorRoutes(rg *gin.RouterGroup, h *handlers.AdvisorHandler, jwtSecret string) {
	advisor := rg.Group("/")
	advisor.Use(middleware.OptionalAuth(jwtSecret))
	{
		advisor.POST("/financial-chat", h.FinancialChat)
		advisor.POST("/suggestion-decision", h.SuggestionDecision)
		advisor.POST("/financial-summary", h.FinancialSummary)
	}

	rg.GET("/demo-profiles/:id", h.GetDemoProfile)
	rg.POST("/demo-profiles/:id/reset", h.ResetDemoProfile)
}

// SetupWaitlistRoutes sets up the public waitlist form.
func SetupWaitlistRoutes(rg *gin.RouterGroup, h *handlers.WaitlistHandler) {
	rg.POST("/waitlist-submit", h.Submit)
}

// SetupConversationRoutes sets up history routes; they need a signed-in user.
func SetupConversationRoutes(rg *gin.RouterGroup, h *handlers.ConversationHandler, jwtSecret string) {
	protected := rg.Group("/")
	protected.Use(middleware.RequireAuth(jwtSecret))
	{
		protected.GET("/conversations", h.ListConversations)
		protected.GET("/conversations/:id/messages", h.GetMessages)
	}
}

func SetupWSRoutes(router *gin.Engine, h *handlers.WSHandler, jwtSecret string) {
	ws := router.Group("/ws")
	ws.Use(middleware.OptionalAuth(jwtSecret))
	ws.GET("/dashboard", h.HandleWS)
}
