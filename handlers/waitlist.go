package handlers

import (
	"errors"
	"net/http"

	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/services"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type WaitlistHandler struct {
	Service *services.WaitlistService
}

func NewWaitlistHandler(service *services.WaitlistService) *WaitlistHandler {
	return &WaitlistHandler{Service: service}
}

func (h *WaitlistHandler) Submit(c *gin.Context) {
	var req models.WaitlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": waitlistFieldMessage(fieldErrs[0])})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	_, err := h.Service.Submit(c.Request.Context(), req, c.ClientIP())

	var validationErr *services.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "You're on the list! We'll be in touch soon.",
		})
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Message})
	case errors.Is(err, services.ErrTooManyAttempts):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts. Please try again later."})
	case errors.Is(err, services.ErrCaptchaFailed):
		utils.SafeWarn("[Waitlist] ❌ Captcha rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Captcha verification failed. Please try again."})
	case errors.Is(err, services.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": "This email is already on the waitlist."})
	default:
		utils.SafeError("[Waitlist] ❌ %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong. Please try again."})
	}
}

// waitlistFieldMessage turns the first failed binding rule into text for the form.
func waitlistFieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "FirstName", "LastName":
		if fe.Tag() == "max" {
			return "Names must be at most 100 characters"
		}
		return "First and last name are required"
	case "Email":
		return "Please enter a valid email address"
	case "Birthday":
		return "Birthday must be a date in YYYY-MM-DD format"
	case "TurnstileToken":
		return "Please complete the captcha"
	}
	return "Please check the form fields and try again"
}
