package finetuning

import (
	"context"
	"reflect"
	"testing"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) PrepareData(ctx context.Context, examples []map[string]any, schema, outputFile string) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) UploadFile(ctx context.Context, filePath, purpose string) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) StartFineTuning(ctx context.Context, params StartJobParams) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) GetJobStatus(ctx context.Context, jobID string) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) ListJobs(ctx context.Context, limit int) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) ListModels(ctx context.Context) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) CancelJob(ctx context.Context, jobID string) map[string]any {
	return map[string]any{"provider": s.name}
}

func (s *stubProvider) DeleteModel(ctx context.Context, modelID string) map[string]any {
	return map[string]any{"provider": s.name}
}

func stubFactory(name string) Factory {
	return func() Provider { return &stubProvider{name: name} }
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubFactory("openai"))
	registry.Register(stubFactory("azure"))

	provider := registry.Create("azure")
	if provider == nil {
		t.Fatal("expected a provider for a registered name")
	}
	if provider.Name() != "azure" {
		t.Errorf("expected azure, got %s", provider.Name())
	}
}

func TestRegistry_CreateReturnsFreshInstances(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubFactory("openai"))

	first := registry.Create("openai")
	second := registry.Create("openai")
	if first == second {
		t.Error("expected distinct instances from consecutive Create calls")
	}
}

func TestRegistry_UnknownNameReturnsNil(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubFactory("openai"))

	if provider := registry.Create("anthropic"); provider != nil {
		t.Errorf("expected nil for unknown name, got %v", provider)
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry()
	registry.Register(stubFactory("openai"))
	registry.Register(stubFactory("azure"))
	registry.Register(stubFactory("bedrock"))

	got := registry.List()
	want := []string{"azure", "bedrock", "openai"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestRegistry_Default(t *testing.T) {
	tests := []struct {
		name       string
		registered []string
		configured string
		wantName   string
		wantNil    bool
	}{
		{
			name:       "configured name resolves",
			registered: []string{"openai", "azure"},
			configured: "azure",
			wantName:   "azure",
		},
		{
			name:       "empty name uses default",
			registered: []string{"openai"},
			configured: "",
			wantName:   "openai",
		},
		{
			name:       "unknown name falls back to default",
			registered: []string{"openai"},
			configured: "anthropic",
			wantName:   "openai",
		},
		{
			name:       "no providers at all",
			registered: nil,
			configured: "anthropic",
			wantNil:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			for _, name := range tt.registered {
				registry.Register(stubFactory(name))
			}

			provider := registry.Default(tt.configured)
			if tt.wantNil {
				if provider != nil {
					t.Errorf("expected nil, got %v", provider)
				}
				return
			}
			if provider == nil {
				t.Fatal("expected a provider")
			}
			if provider.Name() != tt.wantName {
				t.Errorf("expected %s, got %s", tt.wantName, provider.Name())
			}
		})
	}
}
