// Package notifications delivers push notifications and realtime feed events.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// PushMessage is one device notification.
type PushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Sound string         `json:"sound,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// PushSender hands a message to a push provider.
type PushSender interface {
	Send(ctx context.Context, msg PushMessage) error
}

// ExpoSender posts messages to the Expo push API.
type ExpoSender struct {
	endpoint    string
	accessToken string
	timeout     time.Duration
}

func NewExpoSender(endpoint, accessToken string) *ExpoSender {
	return &ExpoSender{endpoint: endpoint, accessToken: accessToken, timeout: 10 * time.Second}
}

type expoResponse struct {
	Data struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"data"`
}

func (s *ExpoSender) Send(ctx context.Context, msg PushMessage) error {
	if msg.Sound == "" {
		msg.Sound = "default"
	}

	timeout := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return context.DeadlineExceeded
	}

	agent := fiber.Post(s.endpoint).
		Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
		Timeout(timeout).
		JSON(msg)
	if s.accessToken != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+s.accessToken)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("push request: %w", errs[0])
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("push provider returned status %d", code)
	}

	var resp expoResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Data.Status == "error" {
		return fmt.Errorf("push rejected: %s", resp.Data.Message)
	}
	return nil
}
