package postprocessors

import (
	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/postprocessors/splitter"
)

// MarkdownSplitter is the name of the heading-aware splitter.
const MarkdownSplitter = "markdown"

// RegisterDefaults registers all built-in splitters with the registry.
// Call this during application initialisation.
func RegisterDefaults(r *Registry) {
	r.Register(splitter.Name, buildRecursive)
	r.Register(MarkdownSplitter, buildMarkdown)
}

// buildRecursive creates the recursive character splitter.
// Supported config keys:
//   - separators ([]string): Separators, most significant first
func buildRecursive(cfg map[string]any) (driven.Splitter, error) {
	var opts []splitter.Option
	if seps := getStringSliceFromConfig(cfg, "separators"); len(seps) > 0 {
		opts = append(opts, splitter.WithSeparators(seps...))
	}
	return splitter.New(opts...), nil
}

// buildMarkdown creates a splitter that prefers markdown heading boundaries.
func buildMarkdown(_ map[string]any) (driven.Splitter, error) {
	return splitter.New(
		splitter.WithName(MarkdownSplitter),
		splitter.WithSeparators(splitter.MarkdownSeparators...),
	), nil
}

// getStringSliceFromConfig safely extracts a string slice from generic config.
// Handles []string and the []any produced by TOML/YAML parsing.
func getStringSliceFromConfig(cfg map[string]any, key string) []string {
	val, ok := cfg[key]
	if !ok {
		return nil
	}

	switch v := val.(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	default:
		return nil
	}
}
