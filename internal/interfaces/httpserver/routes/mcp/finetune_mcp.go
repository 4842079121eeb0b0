package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/ruvnet/fine-tune-mcp/internal/domain/finetuning"
	"github.com/ruvnet/fine-tune-mcp/internal/infrastructure/metrics"
)

// Tool key constants
const (
	ToolKeyPrepareTrainingData  = "prepare_training_data"
	ToolKeyUploadTrainingFile   = "upload_training_file"
	ToolKeyStartFineTuningJob   = "start_fine_tuning_job"
	ToolKeyGetJobStatus         = "get_fine_tuning_job_status"
	ToolKeyListJobs             = "list_fine_tuning_jobs"
	ToolKeyCancelJob            = "cancel_fine_tuning_job"
	ToolKeyListFineTunedModels  = "list_fine_tuned_models"
	ToolKeyDeleteFineTunedModel = "delete_fine_tuned_model"
)

var toolDescriptions = map[string]string{
	ToolKeyPrepareTrainingData:  "Format and validate training examples as line-delimited JSON, optionally saving them to a file.",
	ToolKeyUploadTrainingFile:   "Upload a validated training data file to the fine-tuning provider.",
	ToolKeyStartFineTuningJob:   "Start a fine-tuning job from an uploaded training file on a supported base model.",
	ToolKeyGetJobStatus:         "Fetch the current status and recent events of a fine-tuning job.",
	ToolKeyListJobs:             "List recent fine-tuning jobs.",
	ToolKeyCancelJob:            "Cancel a queued or running fine-tuning job.",
	ToolKeyListFineTunedModels:  "List available fine-tuned models.",
	ToolKeyDeleteFineTunedModel: "Delete a fine-tuned model.",
}

// PrepareTrainingDataArgs defines the arguments for the prepare_training_data tool
type PrepareTrainingDataArgs struct {
	Examples   []map[string]any `json:"examples"`
	FormatType string           `json:"format_type,omitempty"`
	OutputFile string           `json:"output_file,omitempty"`
}

// UploadTrainingFileArgs defines the arguments for the upload_training_file tool
type UploadTrainingFileArgs struct {
	FilePath string `json:"file_path"`
	Purpose  string `json:"purpose,omitempty"`
}

// StartFineTuningJobArgs defines the arguments for the start_fine_tuning_job tool
type StartFineTuningJobArgs struct {
	TrainingFileID   string         `json:"training_file_id"`
	Model            string         `json:"model,omitempty"`
	ValidationFileID string         `json:"validation_file_id,omitempty"`
	Hyperparameters  map[string]any `json:"hyperparameters,omitempty"`
	Suffix           string         `json:"suffix,omitempty"`
}

// GetJobStatusArgs defines the arguments for the get_fine_tuning_job_status tool
type GetJobStatusArgs struct {
	JobID string `json:"job_id"`
}

// ListJobsArgs defines the arguments for the list_fine_tuning_jobs tool
type ListJobsArgs struct {
	Limit *int `json:"limit,omitempty"`
}

// CancelJobArgs defines the arguments for the cancel_fine_tuning_job tool
type CancelJobArgs struct {
	JobID string `json:"job_id"`
}

// ListModelsArgs defines the arguments for the list_fine_tuned_models tool
type ListModelsArgs struct{}

// DeleteModelArgs defines the arguments for the delete_fine_tuned_model tool
type DeleteModelArgs struct {
	ModelID string `json:"model_id"`
}

// FinetuneMCP registers the fine-tuning tools on an MCP server and
// validates every call before it reaches the provider.
type FinetuneMCP struct {
	provider finetuning.Provider
}

// NewFinetuneMCP creates the fine-tuning MCP handler. A nil provider is
// tolerated; every call then reports an operational error payload.
func NewFinetuneMCP(provider finetuning.Provider) *FinetuneMCP {
	return &FinetuneMCP{provider: provider}
}

// RegisterTools registers all fine-tuning tools with the MCP server
func (f *FinetuneMCP) RegisterTools(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyPrepareTrainingData,
		Description: toolDescriptions[ToolKeyPrepareTrainingData],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input PrepareTrainingDataArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyPrepareTrainingData, func() map[string]any {
			return f.prepareTrainingData(ctx, input)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyUploadTrainingFile,
		Description: toolDescriptions[ToolKeyUploadTrainingFile],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input UploadTrainingFileArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyUploadTrainingFile, func() map[string]any {
			return f.uploadTrainingFile(ctx, input)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyStartFineTuningJob,
		Description: toolDescriptions[ToolKeyStartFineTuningJob],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input StartFineTuningJobArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyStartFineTuningJob, func() map[string]any {
			return f.startFineTuningJob(ctx, input)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyGetJobStatus,
		Description: toolDescriptions[ToolKeyGetJobStatus],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input GetJobStatusArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyGetJobStatus, func() map[string]any {
			return f.getFineTuningJobStatus(ctx, input)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyListJobs,
		Description: toolDescriptions[ToolKeyListJobs],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ListJobsArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyListJobs, func() map[string]any {
			return f.listFineTuningJobs(ctx, input)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyCancelJob,
		Description: toolDescriptions[ToolKeyCancelJob],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input CancelJobArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyCancelJob, func() map[string]any {
			return f.cancelFineTuningJob(ctx, input)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyListFineTunedModels,
		Description: toolDescriptions[ToolKeyListFineTunedModels],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input ListModelsArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyListFineTunedModels, func() map[string]any {
			return f.listFineTunedModels(ctx)
		}))
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolKeyDeleteFineTunedModel,
		Description: toolDescriptions[ToolKeyDeleteFineTunedModel],
	}, func(ctx context.Context, req *mcp.CallToolRequest, input DeleteModelArgs) (*mcp.CallToolResult, map[string]any, error) {
		return toolResult(f.timed(ToolKeyDeleteFineTunedModel, func() map[string]any {
			return f.deleteFineTunedModel(ctx, input)
		}))
	})
}

// timed wraps a tool invocation with duration and outcome metrics.
func (f *FinetuneMCP) timed(toolName string, fn func() map[string]any) map[string]any {
	start := time.Now()
	payload := fn()
	duration := time.Since(start)

	status := "ok"
	if errMsg, failed := payload["error"]; failed {
		status = "error"
		log.Warn().
			Str("tool", toolName).
			Dur("duration", duration).
			Interface("error", errMsg).
			Msg("tool call rejected")
	} else {
		log.Info().
			Str("tool", toolName).
			Dur("duration", duration).
			Msg("tool call completed")
	}

	metrics.ToolCallsTotal.WithLabelValues(toolName, status).Inc()
	metrics.ToolDuration.WithLabelValues(toolName).Observe(duration.Seconds())
	return payload
}

func toolResult(payload map[string]any) (*mcp.CallToolResult, map[string]any, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		text = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
	}

	_, isError := payload["error"]
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: isError,
	}, payload, nil
}

func (f *FinetuneMCP) providerUnavailable() map[string]any {
	if f.provider == nil {
		return map[string]any{"error": "no fine-tuning provider available"}
	}
	return nil
}

func (f *FinetuneMCP) prepareTrainingData(ctx context.Context, input PrepareTrainingDataArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	formatType := input.FormatType
	if formatType == "" {
		formatType = finetuning.SchemaChat
	}
	if formatType != finetuning.SchemaChat && formatType != finetuning.SchemaCompletion {
		return errorf("Invalid format_type: %s. Must be 'chat' or 'completion'.", formatType)
	}

	// Per-example structural check before formatting, so the error names
	// the offending example.
	for i, example := range input.Examples {
		switch formatType {
		case finetuning.SchemaChat:
			if _, ok := example["messages"]; !ok {
				return errorf("Example %d is missing 'messages' field required for chat format", i+1)
			}
		case finetuning.SchemaCompletion:
			_, hasPrompt := example["prompt"]
			_, hasCompletion := example["completion"]
			if !hasPrompt || !hasCompletion {
				return errorf("Example %d is missing 'prompt' or 'completion' field required for completion format", i+1)
			}
		}
	}

	if input.OutputFile != "" {
		if parent := filepath.Dir(input.OutputFile); parent != "." {
			if _, err := os.Stat(parent); err != nil {
				log.Warn().Str("directory", parent).Msg("output directory does not exist, it will be created")
			}
		}
	}

	log.Info().
		Int("example_count", len(input.Examples)).
		Str("format_type", formatType).
		Msg("formatting training data")

	return f.provider.PrepareData(ctx, input.Examples, formatType, input.OutputFile)
}

func (f *FinetuneMCP) uploadTrainingFile(ctx context.Context, input UploadTrainingFileArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	purpose := input.Purpose
	if purpose == "" {
		purpose = "fine-tune"
	}
	if err := validatePurpose(purpose); err != nil {
		return errorPayload(err)
	}

	if fieldErrors := validateFilePath(input.FilePath); len(fieldErrors) > 0 {
		return errorf("File validation failed: %s", joinFieldErrors(fieldErrors))
	}

	if !strings.HasSuffix(input.FilePath, ".jsonl") {
		log.Warn().
			Str("file_path", input.FilePath).
			Msg("file does not have a .jsonl extension, which is recommended for fine-tuning")
	}

	// Validate the content before spending a network call on it.
	validation := finetuning.ValidateTrainingData(input.FilePath, finetuning.SchemaChat)
	if !validation.Valid {
		return map[string]any{
			"error":             "File content validation failed",
			"validation_result": validation,
		}
	}

	log.Info().
		Str("file_path", input.FilePath).
		Str("purpose", purpose).
		Msg("uploading training file")

	return f.provider.UploadFile(ctx, input.FilePath, purpose)
}

func (f *FinetuneMCP) startFineTuningJob(ctx context.Context, input StartFineTuningJobArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	model := input.Model
	if model == "" {
		model = SupportedBaseModels[0]
	}
	if err := validateModel(model); err != nil {
		return errorPayload(err)
	}

	if err := validateIdentifier("Training file ID", input.TrainingFileID); err != nil {
		return errorPayload(err)
	}

	if len(input.Hyperparameters) > 0 {
		if fieldErrors := validateHyperparameters(input.Hyperparameters); len(fieldErrors) > 0 {
			return errorf("Hyperparameter validation failed: %s", joinFieldErrors(fieldErrors))
		}
	}

	if input.Suffix != "" {
		if err := validateSuffix(input.Suffix); err != nil {
			return errorPayload(err)
		}
	}

	log.Info().
		Str("model", model).
		Str("training_file_id", input.TrainingFileID).
		Msg("starting fine-tuning job")

	return f.provider.StartFineTuning(ctx, finetuning.StartJobParams{
		TrainingFileID:   input.TrainingFileID,
		Model:            model,
		ValidationFileID: input.ValidationFileID,
		Hyperparameters:  input.Hyperparameters,
		Suffix:           input.Suffix,
	})
}

func (f *FinetuneMCP) getFineTuningJobStatus(ctx context.Context, input GetJobStatusArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	if err := validateIdentifier("Job ID", input.JobID); err != nil {
		return errorPayload(err)
	}

	log.Info().Str("job_id", input.JobID).Msg("fetching fine-tuning job status")
	return f.provider.GetJobStatus(ctx, input.JobID)
}

func (f *FinetuneMCP) listFineTuningJobs(ctx context.Context, input ListJobsArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	limit := 10
	if input.Limit != nil {
		limit = *input.Limit
	}
	if limit < 1 || limit > 100 {
		return errorf("Limit must be between 1 and 100, got %d", limit)
	}

	log.Info().Int("limit", limit).Msg("listing fine-tuning jobs")
	return f.provider.ListJobs(ctx, limit)
}

// cancelFineTuningJob performs a best-effort status pre-check before
// cancelling. A pre-check that reports a non-cancellable state rejects
// the call; a pre-check that itself fails (network, unknown job) is
// logged as a warning and the cancel proceeds anyway, accepting the
// inherent race with the remote state.
func (f *FinetuneMCP) cancelFineTuningJob(ctx context.Context, input CancelJobArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	if err := validateIdentifier("Job ID", input.JobID); err != nil {
		return errorPayload(err)
	}

	status := f.provider.GetJobStatus(ctx, input.JobID)
	if preErr, failed := status["error"]; failed {
		log.Warn().
			Str("job_id", input.JobID).
			Interface("error", preErr).
			Msg("could not verify job status before cancellation")
	} else if state, _ := status["status"].(string); !finetuning.CancellableJobStatuses[state] {
		return map[string]any{
			"error":  fmt.Sprintf("Job with ID %s has status '%s' and cannot be cancelled", input.JobID, state),
			"status": state,
		}
	}

	log.Info().Str("job_id", input.JobID).Msg("cancelling fine-tuning job")
	return f.provider.CancelJob(ctx, input.JobID)
}

func (f *FinetuneMCP) listFineTunedModels(ctx context.Context) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	log.Info().Msg("listing fine-tuned models")
	return f.provider.ListModels(ctx)
}

func (f *FinetuneMCP) deleteFineTunedModel(ctx context.Context, input DeleteModelArgs) map[string]any {
	if errPayload := f.providerUnavailable(); errPayload != nil {
		return errPayload
	}

	if err := validateIdentifier("Model ID", input.ModelID); err != nil {
		return errorPayload(err)
	}

	if !finetuning.IsFineTunedModelID(input.ModelID) {
		log.Warn().
			Str("model_id", input.ModelID).
			Msg("model id does not appear to be a fine-tuned model")
	}

	log.Info().Str("model_id", input.ModelID).Msg("deleting fine-tuned model")
	return f.provider.DeleteModel(ctx, input.ModelID)
}

func errorPayload(err error) map[string]any {
	return map[string]any{"error": err.Error()}
}

func errorf(format string, args ...any) map[string]any {
	return map[string]any{"error": fmt.Sprintf(format, args...)}
}
