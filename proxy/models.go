package proxy

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const modelsCacheKey = "models"

// handleModels relays the upstream model list, cached for ModelsCacheTTL.
func (p *Proxy) handleModels(c *fiber.Ctx) error {
	if body, ok := p.models.Get(modelsCacheKey); ok {
		p.metrics.RecordCacheLookup(true)
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(body)
	}
	p.metrics.RecordCacheLookup(false)

	body, err := p.upstream.ListModels(c.UserContext())
	if err != nil {
		return p.upstreamError(c, p.requestLogger(c), err)
	}

	if !p.models.SetWithTTL(modelsCacheKey, body, int64(len(body)), p.config.ModelsCacheTTL) {
		p.requestLogger(c).Debug("models cache rejected entry", zap.Int("size", len(body)))
	}
	p.models.Wait()

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
