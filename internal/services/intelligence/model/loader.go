// Package model defines the model-loading capability the intelligence
// server depends on. Loading produces opaque handles; tokenization and
// inference live behind them and are not implemented here.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/ifeanyidike/cenphi-intelligence/internal/platform/errors"
)

// Files a model directory must contain.
const (
	ConfigFile    = "config.json"
	TokenizerFile = "tokenizer.json"
)

// Tokenizer is a loaded tokenizer handle.
type Tokenizer interface {
	Name() string
}

// Model is a loaded encoder model handle.
type Model interface {
	Name() string
}

// Loader loads a tokenizer and model pair.
type Loader interface {
	Load(ctx context.Context) (Tokenizer, Model, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (Tokenizer, Model, error)

// Load implements Loader.
func (fn LoaderFunc) Load(ctx context.Context) (Tokenizer, Model, error) {
	return fn(ctx)
}

// Handle is the handle type DirLoader returns for both artifacts.
type Handle struct {
	name string
	path string
}

// Name returns the artifact name.
func (h Handle) Name() string { return h.name }

// Path returns the file the artifact was resolved from.
func (h Handle) Path() string { return h.path }

// DirLoader resolves a tokenizer and model from a Hugging Face style
// directory holding config.json and tokenizer.json.
type DirLoader struct {
	Dir string
}

type modelConfig struct {
	ModelType     string   `json:"model_type"`
	Architectures []string `json:"architectures"`
	NameOrPath    string   `json:"_name_or_path"`
}

// Load validates the directory and decodes config.json to name the model.
func (l DirLoader) Load(ctx context.Context) (Tokenizer, Model, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dir := strings.TrimSpace(l.Dir)
	if dir == "" {
		return nil, nil, loadError(dir, "model directory is required", nil)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, nil, loadError(dir, "stat model directory", err)
	}
	if !info.IsDir() {
		return nil, nil, loadError(dir, "model path is not a directory", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, loadError(dir, "load cancelled", err)
	}

	tokenizerPath := filepath.Join(dir, TokenizerFile)
	if _, err := os.Stat(tokenizerPath); err != nil {
		return nil, nil, loadError(dir, "stat tokenizer", err)
	}

	configPath := filepath.Join(dir, ConfigFile)
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, loadError(dir, "read model config", err)
	}
	var cfg modelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, nil, loadError(dir, "decode model config", err)
	}

	name := modelName(cfg, dir)
	return Handle{name: name, path: tokenizerPath}, Handle{name: name, path: configPath}, nil
}

func modelName(cfg modelConfig, dir string) string {
	if name := strings.TrimSpace(cfg.NameOrPath); name != "" {
		return name
	}
	if len(cfg.Architectures) > 0 && strings.TrimSpace(cfg.Architectures[0]) != "" {
		return cfg.Architectures[0]
	}
	if name := strings.TrimSpace(cfg.ModelType); name != "" {
		return name
	}
	return filepath.Base(dir)
}

func loadError(dir, message string, cause error) error {
	if dir != "" {
		message = fmt.Sprintf("%s %s", message, dir)
	}
	metadata := map[string]string{"dir": dir}
	if cause == nil {
		return apperrors.WithMetadata(apperrors.CodeModelLoadFailed, message, metadata)
	}
	return apperrors.WrapWithMetadata(apperrors.CodeModelLoadFailed, message, metadata, cause)
}
