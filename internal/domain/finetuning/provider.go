package finetuning

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// DefaultProviderName is the registry fallback when the configured
// provider is unknown.
const DefaultProviderName = "openai"

// Provider is the uniform fine-tuning capability set. Each operation
// returns a result payload; expected failures are represented as data
// (an "error" key) rather than propagated errors, so the tool host never
// handles Go-level errors from this boundary.
type Provider interface {
	// Name returns the unique registry name of the provider.
	Name() string

	// PrepareData formats examples into line-delimited training data,
	// optionally saving and validating a file when outputFile is set.
	PrepareData(ctx context.Context, examples []map[string]any, schema, outputFile string) map[string]any

	// UploadFile uploads a training file to the provider.
	UploadFile(ctx context.Context, filePath, purpose string) map[string]any

	// StartFineTuning creates a new fine-tuning job.
	StartFineTuning(ctx context.Context, params StartJobParams) map[string]any

	// GetJobStatus fetches the current state of a fine-tuning job,
	// always fresh from the remote service.
	GetJobStatus(ctx context.Context, jobID string) map[string]any

	// ListJobs lists recent fine-tuning jobs.
	ListJobs(ctx context.Context, limit int) map[string]any

	// ListModels lists available fine-tuned models.
	ListModels(ctx context.Context) map[string]any

	// CancelJob cancels a fine-tuning job.
	CancelJob(ctx context.Context, jobID string) map[string]any

	// DeleteModel deletes a fine-tuned model.
	DeleteModel(ctx context.Context, modelID string) map[string]any
}

// Factory constructs a fresh provider instance.
type Factory func() Provider

// Registry maps provider names to factories. It is populated once at
// startup and read-only afterwards; concurrent reads are safe.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register records a factory under the name its instances report.
func (r *Registry) Register(factory Factory) {
	probe := factory()
	if probe == nil {
		log.Warn().Msg("provider factory returned nil, skipping registration")
		return
	}
	name := probe.Name()

	r.mu.Lock()
	r.factories[name] = factory
	r.mu.Unlock()

	log.Info().Str("provider", name).Msg("registered fine-tuning provider")
}

// Create returns a fresh provider instance for name, or nil when the
// name is unregistered. Callers must check for nil rather than rely on
// an error.
func (r *Registry) Create(name string) Provider {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return factory()
}

// List returns the names of all registered providers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Default resolves the provider named by configuration, falling back to
// DefaultProviderName when it is unregistered. A nil return means no
// provider is available; the caller must treat that as an operational
// error, not retry.
func (r *Registry) Default(name string) Provider {
	if name == "" {
		name = DefaultProviderName
	}

	provider := r.Create(name)
	if provider == nil && name != DefaultProviderName {
		log.Warn().
			Str("provider", name).
			Str("fallback", DefaultProviderName).
			Msg("configured provider not found, falling back")
		provider = r.Create(DefaultProviderName)
	}
	return provider
}
