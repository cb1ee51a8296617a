package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const resendEndpoint = "https://api.resend.com/emails"

// Mailer sends transactional email. The waitlist only needs a confirmation.
type Mailer interface {
	SendWaitlistConfirmation(ctx context.Context, to, firstName string) error
}

// EmailService sends through the Resend HTTP API.
type EmailService struct {
	apiKey      string
	fromEmail   string
	frontendURL string
	endpoint    string
	client      *http.Client
}

func NewEmailService(apiKey, fromEmail, frontendURL string) *EmailService {
	return &EmailService{
		apiKey:      apiKey,
		fromEmail:   fromEmail,
		frontendURL: frontendURL,
		endpoint:    resendEndpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
	}
}

// Configured is false when RESEND_API_KEY is missing; callers skip sending.
func (s *EmailService) Configured() bool {
	return s.apiKey != ""
}

var waitlistTemplate = template.Must(template.New("waitlist").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #f3f4f6; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background: linear-gradient(135deg, #10b981 0%, #059669 100%); color: white; padding: 30px; border-radius: 10px 10px 0 0; }
        .content { background: #ffffff; padding: 30px; border-radius: 0 0 10px 10px; }
        .button { display: inline-block; background: #10b981; color: white; padding: 15px 30px; text-decoration: none; border-radius: 8px; margin: 20px 0; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>You're on the list</h1>
        </div>
        <div class="content">
            <p>Hi {{.FirstName}},</p>
            <p>Thanks for joining the waitlist. We'll email you as soon as your spot opens up.</p>
            <p>In the meantime you can try the advisor with one of our demo profiles.</p>
            <a href="{{.DemoURL}}" class="button">Try the demo</a>
        </div>
    </div>
</body>
</html>
`))

type emailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (s *EmailService) SendWaitlistConfirmation(ctx context.Context, to, firstName string) error {
	var body bytes.Buffer
	err := waitlistTemplate.Execute(&body, struct {
		FirstName string
		DemoURL   string
	}{FirstName: firstName, DemoURL: s.frontendURL + "/demo"})
	if err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	return s.send(ctx, to, "You're on the waitlist", body.String())
}

func (s *EmailService) send(ctx context.Context, to, subject, htmlBody string) error {
	if s.apiKey == "" {
		return fmt.Errorf("RESEND_API_KEY not configured")
	}

	jsonData, err := json.Marshal(emailRequest{
		From:    s.fromEmail,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("email API returned status: %d", resp.StatusCode)
	}
	return nil
}
