package proxy

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/kgourjau/BridgeAI/pkg/llm"
)

// chatLogLine is one transcript line as served on /api/chat-logs.
type chatLogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

type chatLogsResponse struct {
	Logs []chatLogLine `json:"logs"`
}

// handleChatLogs returns the most recent transcript lines, oldest first.
func (p *Proxy) handleChatLogs(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultChatLogLimit)
	if limit <= 0 {
		limit = defaultChatLogLimit
	}
	limit = min(limit, maxChatLogLimit)

	entries, err := p.driver.List(c.UserContext(), limit)
	if err != nil {
		p.requestLogger(c).Error("failed to read transcript", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "could not read chat logs"})
	}

	resp := chatLogsResponse{Logs: make([]chatLogLine, 0, len(entries))}
	for _, e := range entries {
		resp.Logs = append(resp.Logs, chatLogLine{
			Timestamp: e.Timestamp,
			Role:      e.Role,
			Source:    e.Source,
			Message:   e.Message,
		})
	}

	return c.JSON(resp)
}
