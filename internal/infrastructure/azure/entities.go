package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/infrastructure/resilience"
)

const entitiesPath = "/text/analytics/v3.1/entities/recognition/general"

type TextAnalyticsConfig struct {
	Endpoint string
	APIKey   string
	Language string
	Timeout  time.Duration
}

type TextAnalyticsClient struct {
	transport transport
	language  string
	executor  *resilience.Executor
}

func NewTextAnalyticsClient(cfg TextAnalyticsConfig, executor *resilience.Executor) *TextAnalyticsClient {
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &TextAnalyticsClient{
		transport: newTransport(cfg.Endpoint, cfg.APIKey, cfg.Timeout),
		language:  cfg.Language,
		executor:  executor,
	}
}

type entitiesRequest struct {
	Documents []entitiesRequestDocument `json:"documents"`
}

type entitiesRequestDocument struct {
	ID       string `json:"id"`
	Language string `json:"language"`
	Text     string `json:"text"`
}

type entitiesResponse struct {
	Documents []struct {
		ID       string `json:"id"`
		Entities []struct {
			Text            string  `json:"text"`
			Category        string  `json:"category"`
			Subcategory     string  `json:"subcategory"`
			ConfidenceScore float64 `json:"confidenceScore"`
			Offset          int     `json:"offset"`
			Length          int     `json:"length"`
		} `json:"entities"`
	} `json:"documents"`
	Errors []struct {
		ID    string `json:"id"`
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"errors"`
}

func (c *TextAnalyticsClient) ExtractEntities(ctx context.Context, text string) ([]domain.Entity, error) {
	request := entitiesRequest{Documents: []entitiesRequestDocument{{ID: "1", Language: c.language, Text: text}}}

	response, err := resilience.Do(ctx, c.executor, "nlp.entities", func(ctx context.Context) (entitiesResponse, error) {
		var out entitiesResponse
		err := c.transport.postJSON(ctx, entitiesPath, request, &out, "entity recognition")
		return out, err
	}, classifyAzureError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("entity recognition", err)
	}

	if len(response.Documents) == 0 {
		if len(response.Errors) > 0 {
			e := response.Errors[0].Error
			return nil, fmt.Errorf("azure entity recognition: %s: %s", e.Code, e.Message)
		}
		return []domain.Entity{}, nil
	}

	raw := response.Documents[0].Entities
	entities := make([]domain.Entity, 0, len(raw))
	for _, e := range raw {
		entities = append(entities, domain.Entity{
			Text:            e.Text,
			Category:        e.Category,
			Subcategory:     e.Subcategory,
			ConfidenceScore: e.ConfidenceScore,
			Offset:          e.Offset,
			Length:          e.Length,
		})
	}
	return entities, nil
}
