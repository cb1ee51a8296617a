package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

// DevBypassToken is accepted without a network call outside production.
const DevBypassToken = "XXXX.DUMMY.TOKEN.XXXX"

const DefaultTurnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

var ErrCaptchaFailed = errors.New("captcha verification failed")

type CaptchaVerifier interface {
	Verify(token, remoteIP string) error
}

type TurnstileVerifier struct {
	Secret     string
	VerifyURL  string
	Production bool
	Timeout    time.Duration
	client     *fasthttp.Client
}

func NewTurnstileVerifier(secret, verifyURL string, production bool) *TurnstileVerifier {
	if verifyURL == "" {
		verifyURL = DefaultTurnstileVerifyURL
	}
	return &TurnstileVerifier{
		Secret:     secret,
		VerifyURL:  verifyURL,
		Production: production,
		Timeout:    10 * time.Second,
		client:     &fasthttp.Client{Name: "advisor-api"},
	}
}

type turnstileResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *TurnstileVerifier) Verify(token, remoteIP string) error {
	if token == "" {
		return ErrCaptchaFailed
	}
	if !v.Production && token == DevBypassToken {
		log.Println("[Turnstile] 🧪 Development bypass token accepted")
		return nil
	}
	if v.Secret == "" {
		return fmt.Errorf("%w: TURNSTILE_SECRET_KEY not configured", ErrCaptchaFailed)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	args.Set("secret", v.Secret)
	args.Set("response", token)
	if remoteIP != "" {
		args.Set("remoteip", remoteIP)
	}

	req.SetRequestURI(v.VerifyURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/x-www-form-urlencoded")
	req.SetBody(args.QueryString())

	if err := v.client.DoTimeout(req, resp, v.Timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("%w: verify endpoint returned %d", ErrCaptchaFailed, resp.StatusCode())
	}

	var result turnstileResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return fmt.Errorf("%w: %v", ErrCaptchaFailed, err)
	}
	if !result.Success {
		log.Printf("[Turnstile] ❌ Rejected: %v", result.ErrorCodes)
		return ErrCaptchaFailed
	}
	return nil
}
