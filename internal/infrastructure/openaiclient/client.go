package openaiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/metrics"
)

const (
	// DefaultBaseURL is the production OpenAI API endpoint.
	DefaultBaseURL = "https://api.openai.com/v1"

	defaultTimeout = 60 * time.Second

	streamDataPrefix = "data: "
	streamDoneMarker = "[DONE]"
)

// hyperparameterRequiredModels lists base models whose create-job request
// must carry at least one hyperparameter; a default of n_epochs=3 is
// injected when the caller provides none.
var hyperparameterRequiredModels = map[string]bool{
	"o4-mini-2025-04-16": true,
}

// APIError is a non-2xx response from the remote API. The parsed error
// body is preserved when the response carried one.
type APIError struct {
	StatusCode int
	Body       map[string]any
}

func (e *APIError) Error() string {
	if msg := e.errorMessage(); msg != "" {
		return fmt.Sprintf("openai: API error %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("openai: API error %d", e.StatusCode)
}

func (e *APIError) errorMessage() string {
	errObj, ok := e.Body["error"].(map[string]any)
	if !ok {
		return ""
	}
	msg, _ := errObj["message"].(string)
	return msg
}

// Config captures the knobs for the OpenAI client.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client issues authenticated requests against the OpenAI REST API,
// focused on the file and fine-tuning surfaces. It performs no retries
// and caches nothing; every call is a fresh remote read.
type Client struct {
	baseURL string
	rest    *resty.Client
}

// NewClient wires a resty client with bearer auth and a fixed
// per-request timeout.
func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	rest := resty.New().
		SetAuthToken(cfg.APIKey).
		SetTimeout(timeout)

	return &Client{
		baseURL: baseURL,
		rest:    rest,
	}
}

// Do performs one non-streaming JSON call against a relative endpoint.
// Non-2xx responses surface as *APIError; connectivity and timeout
// failures surface as wrapped transport errors. Neither is retried.
func (c *Client) Do(ctx context.Context, method, endpoint string, body any, query map[string]string) (map[string]any, error) {
	start := time.Now()

	req := c.rest.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, c.url(endpoint))
	c.observe(endpoint, start, err == nil && !resp.IsError())
	if err != nil {
		return nil, fmt.Errorf("openai: %s %s: %w", method, endpoint, err)
	}

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: parseErrorBody(resp.Body())}
		log.Error().
			Int("status", apiErr.StatusCode).
			Str("method", method).
			Str("endpoint", endpoint).
			Interface("error_body", apiErr.Body).
			Msg("OpenAI API returned an error")
		return nil, apiErr
	}

	if len(resp.Body()) == 0 {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("openai: decode %s %s response: %w", method, endpoint, err)
	}
	return out, nil
}

// Stream performs one streaming call and returns a channel of JSON-decoded
// server-sent events. The channel closes at the [DONE] sentinel, at end of
// stream, or on context cancellation; malformed event lines are logged and
// skipped. The stream is restartable per call, not resumable mid-stream.
func (c *Client) Stream(ctx context.Context, method, endpoint string, query map[string]string) (<-chan map[string]any, error) {
	req := c.rest.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, c.url(endpoint))
	if err != nil {
		return nil, fmt.Errorf("openai: %s %s: %w", method, endpoint, err)
	}

	raw := resp.RawBody()
	if resp.StatusCode() >= http.StatusBadRequest {
		defer raw.Close()
		body, _ := io.ReadAll(io.LimitReader(raw, 1<<20))
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: parseErrorBody(body)}
		log.Error().
			Int("status", apiErr.StatusCode).
			Str("endpoint", endpoint).
			Msg("OpenAI API rejected stream request")
		return nil, apiErr
	}

	events := make(chan map[string]any)
	go func() {
		defer close(events)
		defer raw.Close()

		scanner := bufio.NewScanner(raw)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, streamDataPrefix) {
				continue
			}
			data := strings.TrimPrefix(line, streamDataPrefix)
			if data == streamDoneMarker {
				return
			}

			var event map[string]any
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				log.Error().Err(err).Str("endpoint", endpoint).Msg("skipping malformed stream event")
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("endpoint", endpoint).Msg("stream read failed")
		}
	}()

	return events, nil
}

// UploadFile uploads a local file with a multipart body. It fails fast
// with a not-found error before any network call when the path is missing.
func (c *Client) UploadFile(ctx context.Context, filePath, purpose string) (map[string]any, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("openai: file not found: %s: %w", filePath, err)
	}

	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetFile("file", filePath).
		SetFormData(map[string]string{"purpose": purpose}).
		Post(c.url("files"))
	c.observe("files", start, err == nil && !resp.IsError())
	if err != nil {
		return nil, fmt.Errorf("openai: upload %s: %w", filePath, err)
	}

	if resp.IsError() {
		apiErr := &APIError{StatusCode: resp.StatusCode(), Body: parseErrorBody(resp.Body())}
		log.Error().
			Int("status", apiErr.StatusCode).
			Str("file_path", filePath).
			Interface("error_body", apiErr.Body).
			Msg("OpenAI API rejected file upload")
		return nil, apiErr
	}

	var out map[string]any
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("openai: decode upload response: %w", err)
	}
	return out, nil
}

func (c *Client) url(endpoint string) string {
	return c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
}

// observe records the remote call latency keyed by the endpoint's first
// path segment, which is stable across resource ids.
func (c *Client) observe(endpoint string, start time.Time, ok bool) {
	operation := endpoint
	if idx := strings.IndexByte(operation, '/'); idx > 0 {
		operation = operation[:idx]
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	metrics.ProviderRequestDuration.WithLabelValues(operation, status).Observe(time.Since(start).Seconds())
}

func parseErrorBody(body []byte) map[string]any {
	if len(body) == 0 {
		return map[string]any{}
	}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return map[string]any{"error": string(body)}
	}
	return parsed
}

// CreateJobRequest carries the parameters for a new fine-tuning job.
type CreateJobRequest struct {
	TrainingFileID   string
	Model            string
	ValidationFileID string
	Hyperparameters  map[string]any
	Suffix           string
}

// CreateFineTuningJob starts a new fine-tuning job. For models that
// require hyperparameters, a default of n_epochs=3 is supplied when the
// caller omits them.
func (c *Client) CreateFineTuningJob(ctx context.Context, req CreateJobRequest) (map[string]any, error) {
	body := map[string]any{
		"training_file": req.TrainingFileID,
		"model":         req.Model,
	}
	if req.ValidationFileID != "" {
		body["validation_file"] = req.ValidationFileID
	}

	hyperparameters := req.Hyperparameters
	if hyperparameterRequiredModels[req.Model] && len(hyperparameters) == 0 {
		hyperparameters = map[string]any{"n_epochs": 3}
	}
	if len(hyperparameters) > 0 {
		body["hyperparameters"] = hyperparameters
	}

	if req.Suffix != "" {
		body["suffix"] = req.Suffix
	}

	return c.Do(ctx, http.MethodPost, "fine_tuning/jobs", body, nil)
}

// ListFineTuningJobs lists recent fine-tuning jobs.
func (c *Client) ListFineTuningJobs(ctx context.Context, limit int, after string) ([]map[string]any, error) {
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if after != "" {
		query["after"] = after
	}
	resp, err := c.Do(ctx, http.MethodGet, "fine_tuning/jobs", nil, query)
	if err != nil {
		return nil, err
	}
	return dataList(resp), nil
}

// GetFineTuningJob fetches one fine-tuning job by id.
func (c *Client) GetFineTuningJob(ctx context.Context, jobID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "fine_tuning/jobs/"+jobID, nil, nil)
}

// CancelFineTuningJob requests cancellation of a fine-tuning job.
func (c *Client) CancelFineTuningJob(ctx context.Context, jobID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodPost, "fine_tuning/jobs/"+jobID+"/cancel", nil, nil)
}

// ListFineTuningEvents lists recent events for a fine-tuning job.
func (c *Client) ListFineTuningEvents(ctx context.Context, jobID string, limit int, after string) ([]map[string]any, error) {
	query := map[string]string{"limit": strconv.Itoa(limit)}
	if after != "" {
		query["after"] = after
	}
	resp, err := c.Do(ctx, http.MethodGet, "fine_tuning/jobs/"+jobID+"/events", nil, query)
	if err != nil {
		return nil, err
	}
	return dataList(resp), nil
}

// StreamFineTuningEvents streams events for a fine-tuning job as they
// are produced by the remote API.
func (c *Client) StreamFineTuningEvents(ctx context.Context, jobID string) (<-chan map[string]any, error) {
	return c.Stream(ctx, http.MethodGet, "fine_tuning/jobs/"+jobID+"/events", nil)
}

// ListFiles lists files uploaded to the remote API.
func (c *Client) ListFiles(ctx context.Context) ([]map[string]any, error) {
	resp, err := c.Do(ctx, http.MethodGet, "files", nil, nil)
	if err != nil {
		return nil, err
	}
	return dataList(resp), nil
}

// GetFile fetches metadata for one uploaded file.
func (c *Client) GetFile(ctx context.Context, fileID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "files/"+fileID, nil, nil)
}

// DeleteFile deletes an uploaded file.
func (c *Client) DeleteFile(ctx context.Context, fileID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "files/"+fileID, nil, nil)
}

// ListModels lists all models visible to the account, fine-tuned
// models included.
func (c *Client) ListModels(ctx context.Context) ([]map[string]any, error) {
	resp, err := c.Do(ctx, http.MethodGet, "models", nil, nil)
	if err != nil {
		return nil, err
	}
	return dataList(resp), nil
}

// GetModel fetches one model by id.
func (c *Client) GetModel(ctx context.Context, modelID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodGet, "models/"+modelID, nil, nil)
}

// DeleteModel deletes a fine-tuned model.
func (c *Client) DeleteModel(ctx context.Context, modelID string) (map[string]any, error) {
	return c.Do(ctx, http.MethodDelete, "models/"+modelID, nil, nil)
}

func dataList(payload map[string]any) []map[string]any {
	items, _ := payload["data"].([]any)
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
