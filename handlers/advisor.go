package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/LovationAdmin/advisor-api/middleware"
	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/services"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
)

type AdvisorHandler struct {
	Advisor *services.AdvisorService
	Demo    *services.DemoFinanceStore
}

func NewAdvisorHandler(advisor *services.AdvisorService, demo *services.DemoFinanceStore) *AdvisorHandler {
	return &AdvisorHandler{Advisor: advisor, Demo: demo}
}

func identityFrom(c *gin.Context, demoProfileID string) models.Identity {
	if userID := middleware.GetUserID(c); userID != "" {
		return models.Identity{UserID: userID}
	}
	if demoProfileID == "" {
		demoProfileID = c.Query("demoProfileId")
	}
	return models.Identity{DemoProfileID: demoProfileID}
}

// ============================================================================
// FINANCIAL CHAT
// ============================================================================

// FinancialChat answers one chat turn, as JSON or as an SSE stream.
func (h *AdvisorHandler) FinancialChat(c *gin.Context) {
	start := time.Now()

	var req models.FinancialChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": services.ErrNoMessages.Error()})
		return
	}

	id := identityFrom(c, req.DemoProfileID)
	turn := services.ChatTurn{
		Identity:       id,
		Messages:       req.Messages,
		ContextType:    req.ContextType,
		ContextData:    req.ContextData,
		ConversationID: req.ConversationID,
	}

	if req.Stream || strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		h.streamChat(c, turn)
	} else {
		resp, err := h.Advisor.Chat(c.Request.Context(), turn)
		if err != nil {
			status, message := services.FriendlyLLMError(err)
			c.JSON(status, gin.H{"error": message})
		} else {
			c.JSON(http.StatusOK, resp)
		}
	}

	utils.LogAPIRequest(c.Request.Method, c.FullPath(), id.Key(), c.Writer.Status(), time.Since(start).String())
}

// streamChat writes `data: {"content": ...}` events and ends with
// `data: [DONE]`. Before the first chunk an error is still a plain JSON
// response; afterwards it travels as an event.
func (h *AdvisorHandler) streamChat(c *gin.Context, turn services.ChatTurn) {
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	resp, err := h.Advisor.Stream(c.Request.Context(), turn, func(chunk string) error {
		begin()
		return writeEvent(c, gin.H{"content": chunk})
	})
	if err != nil {
		status, message := services.FriendlyLLMError(err)
		if !started {
			c.JSON(status, gin.H{"error": message})
			return
		}
		log.Printf("[FinancialChat] ❌ Stream interrupted: %v", err)
		_ = writeEvent(c, gin.H{"error": message})
	} else {
		begin()
		_ = writeEvent(c, gin.H{"final": resp})
	}

	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}

func writeEvent(c *gin.Context, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// ============================================================================
// SUGGESTION DECISION
// ============================================================================

func (h *AdvisorHandler) SuggestionDecision(c *gin.Context) {
	var req models.SuggestionDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(req.Suggestion.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Suggestion title is required"})
		return
	}

	resp, err := h.Advisor.Decide(c.Request.Context(), identityFrom(c, req.DemoProfileID), req)
	if errors.Is(err, models.ErrUnknownDecision) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Decision must be approve, deny or know_more"})
		return
	}
	if err != nil {
		status, message := services.FriendlyLLMError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ============================================================================
// FINANCIAL SUMMARY
// ============================================================================

func (h *AdvisorHandler) FinancialSummary(c *gin.Context) {
	var req models.FinancialSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	id := identityFrom(c, req.DemoProfileID)
	resp, err := h.Advisor.Summary(c.Request.Context(), id, req.ViewMode, req.ForceRefresh)
	switch {
	case errors.Is(err, services.ErrNoIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in or choose a demo profile"})
	case errors.Is(err, services.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
	case err != nil:
		status, message := services.FriendlyLLMError(err)
		c.JSON(status, gin.H{"error": message})
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// ============================================================================
// DEMO PROFILES
// ============================================================================

func (h *AdvisorHandler) GetDemoProfile(c *gin.Context) {
	profile, err := h.Demo.DemoProfile(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Demo profile not found"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *AdvisorHandler) ResetDemoProfile(c *gin.Context) {
	profileID := c.Param("id")
	if err := h.Demo.Reset(profileID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Demo profile not found"})
		return
	}

	if h.Advisor.Cache != nil {
		if err := h.Advisor.Cache.Invalidate(c.Request.Context(), models.Identity{DemoProfileID: profileID}.Key()); err != nil {
			log.Printf("[DemoProfiles] ⚠️  Cache invalidation failed: %v", err)
		}
	}

	profile, _ := h.Demo.DemoProfile(profileID)
	c.JSON(http.StatusOK, profile)
}
