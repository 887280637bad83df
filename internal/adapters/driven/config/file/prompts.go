package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/custodia-labs/ragpipe/internal/core/ports/driven"
	"github.com/custodia-labs/ragpipe/internal/logger"
)

// Ensure PromptStore implements the interface.
var _ driven.PromptStore = (*PromptStore)(nil)

// PromptStore loads generation prompts from user-editable files on disk.
// Prompts are loaded from a configurable directory with fallback to built-in defaults.
//
// Files are only created on first Load, never in the constructor.
type PromptStore struct {
	mu        sync.RWMutex
	promptDir string
	cache     map[string]string
	initOnce  sync.Once
	initErr   error
}

// defaultPrompts are used when user files don't exist and as the initial
// content for new files. An empty system prompt sends no system turn.
var defaultPrompts = map[string]string{
	driven.PromptAnswer: driven.DefaultAnswerPrompt,
	driven.PromptSystem: "",
}

// NewPromptStore creates a new file-based prompt store.
// If promptDir is empty, defaults to ~/.ragpipe/prompts/.
func NewPromptStore(promptDir string) (*PromptStore, error) {
	if promptDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		promptDir = filepath.Join(home, ".ragpipe", "prompts")
	}

	return &PromptStore{
		promptDir: promptDir,
		cache:     make(map[string]string),
	}, nil
}

// requiredPlaceholders lists the placeholders a user template must keep.
var requiredPlaceholders = map[string][]string{
	driven.PromptAnswer: {driven.PlaceholderContext, driven.PlaceholderQuery},
}

// Load returns the prompt template for the given name.
// Falls back to the built-in default if the file is missing, unreadable or
// has lost a required placeholder.
func (s *PromptStore) Load(name string) (string, error) {
	s.initOnce.Do(s.initialise)

	fallback, known := defaultPrompts[name]
	if s.initErr != nil {
		if known {
			return fallback, nil
		}
		return "", fmt.Errorf("prompt store init failed: %w", s.initErr)
	}

	s.mu.RLock()
	prompt, cached := s.cache[name]
	s.mu.RUnlock()
	if cached {
		return prompt, nil
	}

	prompt, err := s.loadFromFile(name)
	switch {
	case err != nil && !known:
		return "", fmt.Errorf("load prompt %q: %w", name, err)
	case err != nil:
		logger.Debug("prompt %s: %v, using default", name, err)
		prompt = fallback
	case !hasPlaceholders(name, prompt):
		logger.Warn("prompt %s is missing %s, using default",
			name, strings.Join(requiredPlaceholders[name], " and "))
		prompt = fallback
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.cache[name]; ok {
		return existing, nil
	}
	s.cache[name] = prompt
	return prompt, nil
}

func hasPlaceholders(name, prompt string) bool {
	for _, p := range requiredPlaceholders[name] {
		if !strings.Contains(prompt, p) {
			return false
		}
	}
	return true
}

// Reload clears the prompt cache, forcing fresh loads from disk.
func (s *PromptStore) Reload() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}

// Dir returns the prompt directory path.
func (s *PromptStore) Dir() string {
	return s.promptDir
}

// initialise creates the prompt directory and default files.
func (s *PromptStore) initialise() {
	if err := os.MkdirAll(s.promptDir, 0700); err != nil {
		s.initErr = fmt.Errorf("create prompt directory: %w", err)
		return
	}

	// Create default prompt files (only if they don't exist)
	for name, content := range defaultPrompts {
		path := filepath.Join(s.promptDir, name+".txt")
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0600); err != nil {
				s.initErr = fmt.Errorf("create default prompt %q: %w", name, err)
				return
			}
		}
	}

	if err := s.createReadme(); err != nil {
		s.initErr = err
	}
}

// loadFromFile reads a prompt from disk.
func (s *PromptStore) loadFromFile(name string) (string, error) {
	path := filepath.Join(s.promptDir, name+".txt")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// createReadme writes a README file explaining the prompts directory.
func (s *PromptStore) createReadme() error {
	path := filepath.Join(s.promptDir, "README.md")
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil // Already exists or stat error (ignore)
	}

	content := `# ragpipe prompts

This directory contains customisable prompts used by ` + "`ragpipe answer`" + `.

## Files

- ` + "`answer.txt`" + ` - Frames retrieved context and the question
- ` + "`system.txt`" + ` - Optional system message sent before the conversation

## Placeholders

` + "`answer.txt`" + ` must contain ` + "`{context}`" + ` and ` + "`{query}`" + `.
Changes take effect on the next command.
`
	return os.WriteFile(path, []byte(content), 0600)
}
