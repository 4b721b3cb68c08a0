package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/estate-docs/internal/config"
	"github.com/kirillkom/estate-docs/internal/infrastructure/azure"
	"github.com/kirillkom/estate-docs/internal/infrastructure/nlp/rules"
	"github.com/kirillkom/estate-docs/internal/infrastructure/ocr/localpdf"
	"github.com/kirillkom/estate-docs/internal/infrastructure/resilience"
	"github.com/kirillkom/estate-docs/internal/infrastructure/storage/localfs"
)

func TestProvidersFallBackToLocalWithoutEndpoints(t *testing.T) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())

	ocr, err := newOCRProvider(config.Config{}, executor)
	if err != nil {
		t.Fatalf("newOCRProvider() error = %v", err)
	}
	if _, ok := ocr.(*localpdf.Provider); !ok {
		t.Fatalf("expected local pdf provider, got %T", ocr)
	}
	if _, ok := newEntityExtractor(config.Config{}, executor).(*rules.Recognizer); !ok {
		t.Fatalf("expected rule recognizer")
	}
}

func TestProvidersUseAzureWhenConfigured(t *testing.T) {
	executor := resilience.NewExecutor(resilience.DefaultConfig())
	cfg := config.Config{
		AzureOCREndpoint:           "https://example.cognitiveservices.azure.com",
		AzureOCRKey:                "key",
		AzureTextAnalyticsEndpoint: "https://example.cognitiveservices.azure.com",
		AzureTextAnalyticsKey:      "key",
		ProviderHTTPTimeout:        time.Second,
	}

	ocr, err := newOCRProvider(cfg, executor)
	if err != nil {
		t.Fatalf("newOCRProvider() error = %v", err)
	}
	if _, ok := ocr.(*azure.DocumentIntelligenceClient); !ok {
		t.Fatalf("expected azure ocr client, got %T", ocr)
	}
	if _, ok := newEntityExtractor(cfg, executor).(*azure.TextAnalyticsClient); !ok {
		t.Fatalf("expected azure entity client")
	}
}

func TestNewStorage(t *testing.T) {
	storage, err := newStorage(context.Background(), config.Config{StorageBackend: "local", StoragePath: t.TempDir()})
	if err != nil {
		t.Fatalf("newStorage() error = %v", err)
	}
	if _, ok := storage.(*localfs.Storage); !ok {
		t.Fatalf("expected local storage, got %T", storage)
	}

	if _, err := newStorage(context.Background(), config.Config{StorageBackend: "s3"}); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestResilienceConfigKeepsDefaultsForUnsetFields(t *testing.T) {
	got := resilienceConfig(config.Config{RetryMaxAttempts: 5, BreakerMinRequests: 20})
	if got.RetryMaxAttempts != 5 || got.BreakerMinRequests != 20 {
		t.Fatalf("unexpected overrides %+v", got)
	}
	if got.RetryMultiplier != resilience.DefaultConfig().RetryMultiplier || got.BreakerHalfOpenMaxCalls == 0 {
		t.Fatalf("expected defaults to survive, got %+v", got)
	}
}

func TestQueueHealthIsNilWithoutBroker(t *testing.T) {
	app := &App{}
	if app.QueueHealth() != nil {
		t.Fatalf("expected no queue health check in memory mode")
	}
}
