package validation

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var sessionModes = map[string]bool{
	"learning":   true,
	"training":   true,
	"evaluation": true,
}

type Config struct {
	MaxResponseLength   int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware rejects malformed response submissions before they reach the
// evaluation chain. Shape errors are the caller's fault and return 400;
// everything past this point can assume a well-formed payload.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxResponseLength == 0 {
		cfg.MaxResponseLength = 2000
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		if strings.Contains(c.Path(), "/api/v1/responses") && c.Method() == "POST" {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if msg := validateResponseBody(req, cfg.MaxResponseLength); msg != "" {
				cfg.Logger.Debug("Rejected response payload",
					zap.String("reason", msg),
					zap.String("ip", c.IP()),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": msg,
				})
			}
		}

		return c.Next()
	}
}

func validateResponseBody(req map[string]interface{}, maxLen int) string {
	for _, field := range []string{"learner_id", "object_id"} {
		s, ok := req[field].(string)
		if !ok || strings.TrimSpace(s) == "" {
			return field + " is required and must be a string"
		}
	}

	response, ok := req["response"].(string)
	if !ok {
		return "response is required and must be a string"
	}
	if len(response) > maxLen {
		return "response exceeds maximum length"
	}

	// JSON numbers decode as float64.
	if latency, ok := req["latency_ms"].(float64); ok && latency < 0 {
		return "latency_ms must be non-negative"
	}
	if cue, ok := req["cue_level"].(float64); ok && (cue < 0 || cue > 3) {
		return "cue_level must be between 0 and 3"
	}
	if mode, ok := req["session_mode"].(string); ok && mode != "" && !sessionModes[mode] {
		return "session_mode must be learning, training or evaluation"
	}

	return ""
}
