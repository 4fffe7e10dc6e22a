// Package api exposes mining run status over HTTP.
package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/Caia-Tech/bitext-miner/internal/output"
	"github.com/Caia-Tech/bitext-miner/internal/pipeline"
	"github.com/Caia-Tech/bitext-miner/internal/scraping"
	"github.com/Caia-Tech/bitext-miner/internal/sitemap"
)

// Handlers serves status endpoints for a mining run
type Handlers struct {
	orchestrator *pipeline.Orchestrator
	events       *pipeline.EventBus
	enumerator   *sitemap.Enumerator
	limiter      *scraping.RateLimiter
	writer       *output.Writer
	startedAt    time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(
	orchestrator *pipeline.Orchestrator,
	events *pipeline.EventBus,
	enumerator *sitemap.Enumerator,
	limiter *scraping.RateLimiter,
	writer *output.Writer,
) *Handlers {
	return &Handlers{
		orchestrator: orchestrator,
		events:       events,
		enumerator:   enumerator,
		limiter:      limiter,
		writer:       writer,
		startedAt:    time.Now(),
	}
}

// Health returns the service health status
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"service":   "bitext-miner",
		"version":   "1.0.0",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startedAt).String(),
	})
}

// GetReport returns the current run report
func (h *Handlers) GetReport(c *fiber.Ctx) error {
	report := h.orchestrator.Report()
	if report == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "no mining run has started",
		})
	}

	return c.JSON(fiber.Map{
		"report": report,
	})
}

// GetStats returns component-level statistics
func (h *Handlers) GetStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"event_bus": h.events.Stats(),
		"sitemap": fiber.Map{
			"stats":      h.enumerator.Stats(),
			"cache_size": h.enumerator.CacheLen(),
		},
		"requests_by_host": h.limiter.Stats(),
		"output": fiber.Map{
			"path":          h.writer.Path(),
			"pairs_written": h.writer.Count(),
		},
	})
}
