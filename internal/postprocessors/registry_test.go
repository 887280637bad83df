package postprocessors

import (
	"testing"

	"github.com/custodia-labs/ragpipe/internal/core/domain"
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
)

// registryMockSplitter is a simple mock for testing registry functionality.
type registryMockSplitter struct {
	name string
}

func (m *registryMockSplitter) Name() string { return m.name }
func (m *registryMockSplitter) Split(_ []domain.Block, _, _ int) ([]domain.Split, error) {
	return nil, nil
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	if r == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if len(r.builders) != 0 {
		t.Errorf("expected empty builders, got %d", len(r.builders))
	}
}

func TestRegistry_Build_Success(t *testing.T) {
	r := NewRegistry()

	r.Register("test", func(cfg map[string]any) (driven.Splitter, error) {
		name := "default"
		if n, ok := cfg["name"].(string); ok {
			name = n
		}
		return &registryMockSplitter{name: name}, nil
	})

	s, err := r.Build("test", map[string]any{"name": "custom"})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Name() != "custom" {
		t.Errorf("expected name 'custom', got %q", s.Name())
	}
}

func TestRegistry_Build_Unknown(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Build("unknown", nil); err == nil {
		t.Error("expected error for unknown splitter")
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	names := r.Names()
	if len(names) != 2 || names[0] != MarkdownSplitter || names[1] != "recursive" {
		t.Fatalf("unexpected names: %v", names)
	}

	s, err := r.Build("recursive", map[string]any{"separators": []any{"\n", " "}})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	splits, err := s.Split([]domain.Block{{Text: "one two\nthree"}}, 7, 0)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(splits) != 2 || splits[0].Text != "one two" || splits[1].Text != "three" {
		t.Errorf("unexpected splits: %+v", splits)
	}

	md, err := r.Build(MarkdownSplitter, nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if md.Name() != MarkdownSplitter {
		t.Errorf("expected %q, got %q", MarkdownSplitter, md.Name())
	}
}

func TestGetStringSliceFromConfig(t *testing.T) {
	cfg := map[string]any{
		"strings": []string{"a", "b"},
		"anys":    []any{"c", 1, "d"},
		"scalar":  "e",
	}

	if got := getStringSliceFromConfig(cfg, "strings"); len(got) != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if got := getStringSliceFromConfig(cfg, "anys"); len(got) != 2 || got[1] != "d" {
		t.Errorf("expected [c d], got %v", got)
	}
	if got := getStringSliceFromConfig(cfg, "scalar"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
	if got := getStringSliceFromConfig(nil, "missing"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
