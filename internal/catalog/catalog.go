// Package catalog loads knowledge pattern catalogs from disk.
//
// A catalog is a list of patterns under a top-level "patterns" key, written
// as YAML, TOML or JSON (a bare JSON array is also accepted):
//
//	patterns:
//	  - id: rust-borrow
//	    keywords: [borrow, moved, lifetime]
//	    error_codes: [E0382]
//	    tags: [rust]
//	    path_patterns: [.rs]
//	    priority: 0.9
//	    content: Clone the value or restructure ownership.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/recalld/internal/knowledge"
)

// MaxCatalogSize bounds catalog files read from disk.
const MaxCatalogSize = 16 * 1024 * 1024

var (
	// ErrUnsupportedFormat indicates an unknown catalog file extension.
	ErrUnsupportedFormat = errors.New("unsupported catalog format")

	// ErrInvalidPattern indicates a pattern failed validation.
	ErrInvalidPattern = errors.New("invalid pattern")
)

// Format is a catalog encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// filePattern is the on-disk shape of a pattern. Priority is a pointer so
// that an absent value can take the default.
type filePattern struct {
	ID           string   `koanf:"id" toml:"id"`
	Keywords     []string `koanf:"keywords" toml:"keywords"`
	ErrorCodes   []string `koanf:"error_codes" toml:"error_codes"`
	Tags         []string `koanf:"tags" toml:"tags"`
	PathPatterns []string `koanf:"path_patterns" toml:"path_patterns"`
	Priority     *float64 `koanf:"priority" toml:"priority"`
	Content      string   `koanf:"content" toml:"content"`
}

func (fp filePattern) pattern() knowledge.Pattern {
	p := knowledge.Pattern{
		ID:           fp.ID,
		Keywords:     fp.Keywords,
		ErrorCodes:   fp.ErrorCodes,
		Tags:         fp.Tags,
		PathPatterns: fp.PathPatterns,
		Priority:     knowledge.DefaultPriority,
		Content:      fp.Content,
	}
	if fp.Priority != nil {
		p.Priority = *fp.Priority
	}
	return p
}

// Load reads and validates the catalog at path.
func Load(path string) ([]knowledge.Pattern, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	if info.Size() > MaxCatalogSize {
		return nil, fmt.Errorf("catalog %s exceeds %d bytes", path, MaxCatalogSize)
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied catalog path
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	patterns, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog %s: %w", path, err)
	}
	return patterns, nil
}

// Parse decodes and validates catalog bytes in the given format.
func Parse(data []byte, format Format) ([]knowledge.Pattern, error) {
	var (
		patterns []knowledge.Pattern
		err      error
	)
	switch format {
	case FormatYAML:
		patterns, err = parseYAML(data)
	case FormatTOML:
		patterns, err = parseTOML(data)
	case FormatJSON:
		patterns, err = parseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(patterns); err != nil {
		return nil, err
	}
	return patterns, nil
}

func parseYAML(data []byte) ([]knowledge.Pattern, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	var file []filePattern
	if err := k.Unmarshal("patterns", &file); err != nil {
		return nil, fmt.Errorf("decoding yaml patterns: %w", err)
	}
	return convert(file), nil
}

func parseTOML(data []byte) ([]knowledge.Pattern, error) {
	var file struct {
		Patterns []filePattern `toml:"patterns"`
	}
	if _, err := toml.Decode(string(data), &file); err != nil {
		return nil, fmt.Errorf("decoding toml: %w", err)
	}
	return convert(file.Patterns), nil
}

func parseJSON(data []byte) ([]knowledge.Pattern, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var patterns []knowledge.Pattern
		if err := json.Unmarshal(trimmed, &patterns); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
		return patterns, nil
	}

	var file struct {
		Patterns []knowledge.Pattern `json:"patterns"`
	}
	if err := json.Unmarshal(trimmed, &file); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}
	return file.Patterns, nil
}

func convert(file []filePattern) []knowledge.Pattern {
	out := make([]knowledge.Pattern, len(file))
	for i, fp := range file {
		out[i] = fp.pattern()
	}
	return out
}

// Validate checks that every pattern has a unique id and a priority in [0,1].
func Validate(patterns []knowledge.Pattern) error {
	seen := make(map[string]struct{}, len(patterns))
	for i, p := range patterns {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("%w: pattern %d has no id", ErrInvalidPattern, i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidPattern, p.ID)
		}
		seen[p.ID] = struct{}{}

		if p.Priority < 0 || p.Priority > 1 {
			return fmt.Errorf("%w: pattern %q priority %g outside [0,1]", ErrInvalidPattern, p.ID, p.Priority)
		}
	}
	return nil
}
