package models

import "time"

type WaitlistRequest struct {
	FirstName      string `json:"first_name" binding:"required,max=100"`
	LastName       string `json:"last_name" binding:"required,max=100"`
	Birthday       string `json:"birthday" binding:"required,datetime=2006-01-02"`
	Email          string `json:"email" binding:"required,email,max=254"`
	TurnstileToken string `json:"turnstile_token" binding:"required"`
}

type WaitlistEntry struct {
	ID        string    `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Birthday  time.Time `json:"birthday"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
