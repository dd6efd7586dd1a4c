// Package agent manages agent presets: named system prompts stored on the
// server and grouped by category.
package agent

import (
	"strings"
	"time"

	"github.com/papercomputeco/lumina/pkg/client"
	"github.com/papercomputeco/lumina/pkg/utils"
)

// Category groups agents in listings.
type Category string

const (
	CategoryGeneral   Category = "general"
	CategoryCreative  Category = "creative"
	CategoryTechnical Category = "technical"
	CategoryResearch  Category = "research"
	CategoryBusiness  Category = "business"
	CategoryCustom    Category = "custom"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryGeneral,
	CategoryCreative,
	CategoryTechnical,
	CategoryResearch,
	CategoryBusiness,
	CategoryCustom,
}

// NormalizeCategory lowercases s and maps anything unknown, including the
// empty string, to CategoryCustom.
func NormalizeCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryCustom
}

// Agent is an agent preset.
type Agent struct {
	ID           string
	Name         string
	Description  string
	SystemPrompt string
	Category     Category

	// IsTemplate marks built-in presets that have not been stored yet.
	// Agents read back from the server are never templates.
	IsTemplate bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// fromConfig converts a stored agent.
func fromConfig(cfg *client.AgentConfig) *Agent {
	a := &Agent{
		ID:           cfg.ID,
		Name:         cfg.Name,
		SystemPrompt: cfg.SystemPrompt,
		Category:     CategoryCustom,
		CreatedAt:    utils.ParseTimestamp(cfg.CreatedAt),
		UpdatedAt:    utils.ParseTimestamp(cfg.UpdatedAt),
	}
	if cfg.Description != nil {
		a.Description = *cfg.Description
	}
	if cfg.Category != nil {
		a.Category = NormalizeCategory(*cfg.Category)
	}
	return a
}
