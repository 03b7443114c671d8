package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/scenesync/internal/compiler"
	"github.com/roach88/scenesync/internal/harness"
	"github.com/roach88/scenesync/internal/protocol"
	"github.com/roach88/scenesync/internal/render"
)

// LoadError represents an error that occurred while loading a world or
// config file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadWorld compiles and validates a world file. Schema errors stop the load;
// validation errors are all collected.
func LoadWorld(path string) (*compiler.World, []error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("world file not found: %s", path)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing world file: %v", err)}}
	}
	if info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a file: %s", path)}}
	}

	w, err := compiler.CompileFile(path)
	if err != nil {
		return nil, []error{convertCompileError(err)}
	}

	var errs []error
	for _, ve := range compiler.Validate(w) {
		errs = append(errs, &LoadError{Code: ve.Code, Message: fmt.Sprintf("%s: %s", ve.Field, ve.Message)})
	}
	return w, errs
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeBuildFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeBuildFailed, Message: err.Error()}
}

// IsWorldFile reports whether path names a CUE world rather than a glTF model.
func IsWorldFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".cue")
}

// IsModelFile reports whether path names a glTF or GLB model.
func IsModelFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return slices.Contains([]string{".gltf", ".glb"}, ext)
}

// Config is the optional YAML runtime configuration passed with --config.
type Config struct {
	Label       string              `yaml:"label"`
	ClickPolicy render.ClickPolicy  `yaml:"click_policy"`
	CameraSpec  *harness.CameraSpec `yaml:"camera"`
	Spawn       *protocol.Vec3      `yaml:"spawn"`
	ChatHistory int                 `yaml:"chat_history"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{ClickPolicy: render.DefaultClickPolicy()}
}

// LoadConfig reads a YAML config file. Unknown fields are rejected. An empty
// path returns DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading config: %v", err)}
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, &LoadError{Code: ErrCodeConfig, Message: fmt.Sprintf("parsing config %s: %v", path, err)}
	}

	// Zero thresholds fall back to the defaults.
	defaults := render.DefaultClickPolicy()
	if cfg.ClickPolicy.MaxMoves == 0 {
		cfg.ClickPolicy.MaxMoves = defaults.MaxMoves
	}
	if cfg.ClickPolicy.MaxDuration == 0 {
		cfg.ClickPolicy.MaxDuration = defaults.MaxDuration
	}
	if cfg.ClickPolicy.MaxMoves < 0 || cfg.ClickPolicy.MaxDuration < 0 {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "click_policy thresholds must not be negative"}
	}
	if cfg.ChatHistory < 0 {
		return nil, &LoadError{Code: ErrCodeConfig, Message: "chat_history must not be negative"}
	}
	return cfg, nil
}

// Camera returns the configured picking camera.
func (c *Config) Camera() protocol.Camera {
	if c.CameraSpec == nil {
		return harness.DefaultCamera()
	}
	return c.CameraSpec.Camera()
}

// SpawnTransform returns the configured player spawn, if any.
func (c *Config) SpawnTransform() (protocol.Transform, bool) {
	if c.Spawn == nil {
		return protocol.Transform{}, false
	}
	t := protocol.IdentityTransform()
	t.Translation = *c.Spawn
	return t, true
}
