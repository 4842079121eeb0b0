package finetuning

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/openaiclient"
)

// IsFineTunedModelID reports whether a model id carries a fine-tuned
// model marker.
func IsFineTunedModelID(id string) bool {
	return strings.HasPrefix(id, "ft-") || strings.Contains(id, ":ft-")
}

// OpenAIProvider implements Provider on top of the OpenAI REST API.
type OpenAIProvider struct {
	client *openaiclient.Client
}

var _ Provider = (*OpenAIProvider)(nil)

// NewOpenAIProvider wires an OpenAI-backed provider. A missing API key is
// a warning, not a startup failure; calls will surface the rejection.
func NewOpenAIProvider(cfg openaiclient.Config) *OpenAIProvider {
	if cfg.APIKey == "" {
		log.Warn().Msg("no OpenAI API key provided or found in environment")
	}
	return &OpenAIProvider{client: openaiclient.NewClient(cfg)}
}

// Name returns the registry name of the provider.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// PrepareData formats training examples into line-delimited records and
// optionally saves and re-validates them on disk.
func (p *OpenAIProvider) PrepareData(ctx context.Context, examples []map[string]any, schema, outputFile string) map[string]any {
	formatted, err := FormatTrainingData(examples, schema)
	if err != nil {
		log.Error().Err(err).Str("schema", schema).Msg("failed to format training data")
		return errorPayload(err)
	}

	if outputFile == "" {
		return map[string]any{
			"formatted_data": formatted,
			"example_count":  len(examples),
		}
	}

	filePath, err := SaveTrainingData(formatted, outputFile)
	if err != nil {
		log.Error().Err(err).Str("output_file", outputFile).Msg("failed to save training data")
		return errorPayload(err)
	}

	return map[string]any{
		"file_path":     filePath,
		"validation":    ValidateTrainingData(filePath, schema),
		"example_count": len(examples),
	}
}

// UploadFile uploads a training file and returns its remote metadata.
func (p *OpenAIProvider) UploadFile(ctx context.Context, filePath, purpose string) map[string]any {
	resp, err := p.client.UploadFile(ctx, filePath, purpose)
	if err != nil {
		log.Error().Err(err).Str("file_path", filePath).Msg("file upload failed")
		return errorPayload(err)
	}

	return map[string]any{
		"file_id":    resp["id"],
		"filename":   resp["filename"],
		"bytes":      resp["bytes"],
		"created_at": resp["created_at"],
		"status":     resp["status"],
	}
}

// StartFineTuning creates a fine-tuning job and returns its details.
func (p *OpenAIProvider) StartFineTuning(ctx context.Context, params StartJobParams) map[string]any {
	job, err := p.client.CreateFineTuningJob(ctx, openaiclient.CreateJobRequest{
		TrainingFileID:   params.TrainingFileID,
		Model:            params.Model,
		ValidationFileID: params.ValidationFileID,
		Hyperparameters:  params.Hyperparameters,
		Suffix:           params.Suffix,
	})
	if err != nil {
		log.Error().Err(err).Str("model", params.Model).Msg("failed to start fine-tuning job")
		return errorPayload(err)
	}

	return map[string]any{
		"job_id":           job["id"],
		"model":            job["model"],
		"created_at":       job["created_at"],
		"status":           job["status"],
		"fine_tuned_model": job["fine_tuned_model"],
	}
}

// GetJobStatus fetches a job and its 10 most recent events.
func (p *OpenAIProvider) GetJobStatus(ctx context.Context, jobID string) map[string]any {
	job, err := p.client.GetFineTuningJob(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to fetch job status")
		return errorPayload(err)
	}

	events, err := p.client.ListFineTuningEvents(ctx, jobID, 10, "")
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to fetch job events")
		return errorPayload(err)
	}

	return map[string]any{
		"job_id":           job["id"],
		"model":            job["model"],
		"created_at":       job["created_at"],
		"finished_at":      job["finished_at"],
		"status":           job["status"],
		"fine_tuned_model": job["fine_tuned_model"],
		"events":           events,
	}
}

// ListJobs lists recent fine-tuning jobs.
func (p *OpenAIProvider) ListJobs(ctx context.Context, limit int) map[string]any {
	jobs, err := p.client.ListFineTuningJobs(ctx, limit, "")
	if err != nil {
		log.Error().Err(err).Msg("failed to list fine-tuning jobs")
		return errorPayload(err)
	}

	return map[string]any{
		"jobs":  jobs,
		"count": len(jobs),
	}
}

// ListModels lists models whose ids carry a fine-tuned marker.
func (p *OpenAIProvider) ListModels(ctx context.Context) map[string]any {
	allModels, err := p.client.ListModels(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list models")
		return errorPayload(err)
	}

	fineTuned := make([]map[string]any, 0, len(allModels))
	for _, model := range allModels {
		id, _ := model["id"].(string)
		if IsFineTunedModelID(id) {
			fineTuned = append(fineTuned, model)
		}
	}

	return map[string]any{
		"models":       fineTuned,
		"count":        len(fineTuned),
		"total_models": len(allModels),
	}
}

// CancelJob cancels a fine-tuning job.
func (p *OpenAIProvider) CancelJob(ctx context.Context, jobID string) map[string]any {
	result, err := p.client.CancelFineTuningJob(ctx, jobID)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to cancel fine-tuning job")
		return errorPayload(err)
	}

	return map[string]any{
		"job_id":    result["id"],
		"status":    result["status"],
		"cancelled": true,
	}
}

// DeleteModel deletes a fine-tuned model.
func (p *OpenAIProvider) DeleteModel(ctx context.Context, modelID string) map[string]any {
	result, err := p.client.DeleteModel(ctx, modelID)
	if err != nil {
		log.Error().Err(err).Str("model_id", modelID).Msg("failed to delete model")
		return errorPayload(err)
	}

	deleted, _ := result["deleted"].(bool)
	if !deleted {
		log.Warn().Str("model_id", modelID).Msg("delete operation returned deleted=false")
	}

	return map[string]any{
		"model_id": modelID,
		"deleted":  deleted,
	}
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}
