package azure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/estate-docs/internal/core/domain"
	"github.com/kirillkom/estate-docs/internal/infrastructure/resilience"
)

const (
	DefaultOCRModel      = "prebuilt-read"
	DefaultOCRAPIVersion = "2023-07-31"
)

type OCRConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
	Timeout    time.Duration
}

// DocumentIntelligenceClient submits documents to the Azure Document Intelligence
// analyze endpoint and polls the returned operation.
type DocumentIntelligenceClient struct {
	transport  transport
	model      string
	apiVersion string
	host       string
	executor   *resilience.Executor
}

func NewDocumentIntelligenceClient(cfg OCRConfig, executor *resilience.Executor) (*DocumentIntelligenceClient, error) {
	parsed, err := url.Parse(strings.TrimSpace(cfg.Endpoint))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid ocr endpoint %q", cfg.Endpoint)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOCRModel
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultOCRAPIVersion
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &DocumentIntelligenceClient{
		transport:  newTransport(cfg.Endpoint, cfg.APIKey, cfg.Timeout),
		model:      cfg.Model,
		apiVersion: cfg.APIVersion,
		host:       parsed.Host,
		executor:   executor,
	}, nil
}

func (c *DocumentIntelligenceClient) Submit(ctx context.Context, doc *domain.Document, content []byte) (string, error) {
	target := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.transport.endpoint, url.PathEscape(c.model), url.QueryEscape(c.apiVersion))
	contentType := "application/octet-stream"
	if doc != nil && doc.MimeType != "" {
		contentType = doc.MimeType
	}

	locator, err := resilience.Do(ctx, c.executor, "ocr.submit", func(ctx context.Context) (string, error) {
		resp, err := c.transport.do(ctx, http.MethodPost, target, contentType, content, "ocr submit")
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			return "", newHTTPStatusError("ocr submit", resp)
		}
		location := strings.TrimSpace(resp.Header.Get("Operation-Location"))
		if location == "" {
			return "", errors.New("azure ocr submit: missing Operation-Location header")
		}
		return location, nil
	}, classifyAzureError)
	if err != nil {
		return "", wrapTemporaryIfNeeded("ocr submit", err)
	}
	return locator, nil
}

type analyzeOperation struct {
	Status string `json:"status"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	AnalyzeResult *struct {
		Pages []domain.OCRPage `json:"pages"`
	} `json:"analyzeResult"`
}

func (c *DocumentIntelligenceClient) Poll(ctx context.Context, locator string) (domain.OCRPollResult, error) {
	if err := c.checkLocator(locator); err != nil {
		return domain.OCRPollResult{}, err
	}

	op, err := resilience.Do(ctx, c.executor, "ocr.poll", func(ctx context.Context) (analyzeOperation, error) {
		resp, err := c.transport.do(ctx, http.MethodGet, locator, "", nil, "ocr poll")
		if err != nil {
			return analyzeOperation{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return analyzeOperation{}, newHTTPStatusError("ocr poll", resp)
		}
		var out analyzeOperation
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return analyzeOperation{}, fmt.Errorf("decode ocr poll response: %w", err)
		}
		return out, nil
	}, classifyAzureError)
	if err != nil {
		return domain.OCRPollResult{}, wrapTemporaryIfNeeded("ocr poll", err)
	}

	switch strings.ToLower(op.Status) {
	case "succeeded":
		result := domain.OCRPollResult{State: domain.OCRSucceeded}
		if op.AnalyzeResult != nil {
			result.Pages = op.AnalyzeResult.Pages
		}
		return result, nil
	case "failed", "canceled":
		msg := "analysis " + strings.ToLower(op.Status)
		if op.Error != nil && op.Error.Message != "" {
			msg = op.Error.Code + ": " + op.Error.Message
		}
		return domain.OCRPollResult{State: domain.OCRFailed, Error: msg}, nil
	case "notstarted", "running":
		return domain.OCRPollResult{State: domain.OCRRunning}, nil
	default:
		return domain.OCRPollResult{}, fmt.Errorf("azure ocr poll: unexpected status %q", op.Status)
	}
}

// checkLocator keeps the subscription key from being sent to a host other than the configured endpoint.
func (c *DocumentIntelligenceClient) checkLocator(locator string) error {
	parsed, err := url.Parse(locator)
	if err != nil || !strings.EqualFold(parsed.Host, c.host) {
		return domain.WrapError(domain.ErrInvalidInput, "ocr poll", fmt.Errorf("locator %q does not belong to %s", locator, c.host))
	}
	return nil
}
