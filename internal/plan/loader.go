package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/sprint/internal/errors"
	"github.com/Iron-Ham/sprint/internal/sprint"
)

// Format is the encoding of a plan document.
type Format string

// Supported plan encodings.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath infers the encoding from a file extension. Unknown
// extensions are treated as YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatYAML, FormatTOML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown plan format %q", name)
	}
}

// ParseFile reads and parses the plan at path.
func ParseFile(path string) (*sprint.SprintPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("plan: read %s: %w", path, err)
	}
	p, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("plan: %s: %w", path, err)
	}
	return p, nil
}

// ParseReader reads a plan document from r.
func ParseReader(r io.Reader, format Format) (*sprint.SprintPlan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("plan: read: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes a plan document. Structural problems are returned as
// *errors.ParseError.
func Parse(data []byte, format Format) (*sprint.SprintPlan, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewParseError("sprint", "document is empty")
	}

	tree, err := decode(data, format)
	if err != nil {
		return nil, err
	}
	return build(tree)
}

func decode(data []byte, format Format) (any, error) {
	var tree any
	var err error

	switch format {
	case FormatYAML, "":
		err = yaml.Unmarshal(data, &tree)
	case FormatJSON:
		err = json.Unmarshal(data, &tree)
	case FormatTOML:
		var doc map[string]any
		err = toml.Unmarshal(data, &doc)
		tree = doc
	default:
		return nil, errors.NewParseError("", fmt.Sprintf("unsupported format %q", format))
	}

	if err != nil {
		return nil, errors.NewParseError("", fmt.Sprintf("invalid %s document", formatName(format))).WithCause(err)
	}
	return tree, nil
}

func formatName(f Format) string {
	if f == "" {
		return string(FormatYAML)
	}
	return string(f)
}
