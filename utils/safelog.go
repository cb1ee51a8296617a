// utils/safelog.go
// ============================================================================
// SAFE LOGGING - masks personal and financial data in production
// ============================================================================

package utils

import (
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

var (
	// IsProduction turns masking on.
	IsProduction = os.Getenv("GIN_MODE") == "release" ||
		os.Getenv("ENVIRONMENT") == "production" ||
		os.Getenv("ENV") == "production"

	// LogLevel filters SafeDebug/SafeInfo/SafeWarn (DEBUG, INFO, WARN, ERROR).
	LogLevel = ParseLogLevel(os.Getenv("LOG_LEVEL"))
)

const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

func ParseLogLevel(level string) int {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LogLevelDebug
	case "WARN", "WARNING":
		return LogLevelWarn
	case "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ============================================================================
// MASKING PATTERNS
// ============================================================================

var (
	emailRegex  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	dollarRegex = regexp.MustCompile(`-?\$\s?\d[\d,]*(\.\d{1,2})?`)
	cardRegex   = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	bearerRegex = regexp.MustCompile(`(?i)bearer\s+[a-z0-9._-]+`)
	uuidRegex   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
)

// MaskString hides emails, dollar amounts, card numbers, tokens and shortens
// UUIDs. It is a no-op outside production.
func MaskString(input string) string {
	if !IsProduction {
		return input
	}

	result := emailRegex.ReplaceAllString(input, "***@***.***")
	result = bearerRegex.ReplaceAllString(result, "Bearer ***")
	result = cardRegex.ReplaceAllString(result, "****-****-****-****")
	result = dollarRegex.ReplaceAllString(result, "$***")
	result = uuidRegex.ReplaceAllStringFunc(result, func(id string) string {
		return id[:8] + "..."
	})
	return result
}

func MaskAmount(amount float64) string {
	if IsProduction {
		return "***"
	}
	return fmt.Sprintf("%.2f", amount)
}

// MaskID keeps the first 8 characters of an id in production.
func MaskID(id string) string {
	if !IsProduction {
		return id
	}
	if len(id) <= 8 {
		return "***"
	}
	return id[:8] + "..."
}

func MaskEmail(email string) string {
	if !IsProduction {
		return email
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***@***.***"
	}
	return email[:1] + "***" + email[at:]
}

// ============================================================================
// LEVELLED LOGGING
// ============================================================================

func SafeDebug(format string, args ...interface{}) {
	if LogLevel > LogLevelDebug {
		return
	}
	log.Printf("[DEBUG] %s", MaskString(fmt.Sprintf(format, args...)))
}

func SafeInfo(format string, args ...interface{}) {
	if LogLevel > LogLevelInfo {
		return
	}
	log.Printf("[INFO] %s", MaskString(fmt.Sprintf(format, args...)))
}

func SafeWarn(format string, args ...interface{}) {
	if LogLevel > LogLevelWarn {
		return
	}
	log.Printf("[WARN] %s", MaskString(fmt.Sprintf(format, args...)))
}

// SafeError is never filtered.
func SafeError(format string, args ...interface{}) {
	log.Printf("[ERROR] %s", MaskString(fmt.Sprintf(format, args...)))
}

// ============================================================================
// DOMAIN HELPERS
// ============================================================================

// LogDecision records a suggestion decision without its free text.
func LogDecision(identity string, suggestionID string, decision string, action string) {
	log.Printf("[Decision] %s - Identity: %s Suggestion: %s Action: %s",
		decision, MaskID(identity), MaskID(suggestionID), action)
}

// LogAPIRequest logs one request line with ids shortened in production.
func LogAPIRequest(method string, path string, identity string, statusCode int, duration string) {
	if IsProduction {
		path = uuidRegex.ReplaceAllStringFunc(path, func(id string) string {
			return id[:8] + "..."
		})
	}
	log.Printf("[API] %s %s - Identity: %s Status: %d Duration: %s",
		method, path, MaskID(identity), statusCode, duration)
}

func GetEnvMode() string {
	if IsProduction {
		return "production"
	}
	return "development"
}

func LogStartup(appName string, version string, port string) {
	log.Printf("🚀 %s v%s starting...", appName, version)
	log.Printf("   Mode: %s", GetEnvMode())
	log.Printf("   Port: %s", port)
	log.Printf("   Log Level: %d", LogLevel)
	if IsProduction {
		log.Printf("   ⚠️  Production mode: sensitive data will be masked in logs")
	}
}
