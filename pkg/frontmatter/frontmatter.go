// Package frontmatter reads and writes the metadata block that precedes the
// body of a content document. Three dialects are supported: YAML between ---
// fences, TOML between +++ fences, and documents that are a single JSON
// object.
package frontmatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the front-matter dialect of a document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

const (
	yamlFence = "---"
	tomlFence = "+++"
)

// ErrUnknownFormat is returned when a document starts with none of the
// recognized front-matter fences.
var ErrUnknownFormat = errors.New("frontmatter: unknown format")

// Parse splits a document into its front-matter fields and Markdown body.
// The body is returned with surrounding whitespace trimmed. JSON documents
// have no body.
func Parse(content []byte) (map[string]any, string, Format, error) {
	src := normalizeLineEndings(string(content))

	if block, body, ok := splitFenced(src, yamlFence); ok {
		var fields map[string]any
		if err := yaml.Unmarshal([]byte(block), &fields); err != nil {
			return nil, "", "", fmt.Errorf("frontmatter: decode yaml: %w", err)
		}
		return sanitize(fields), strings.TrimSpace(body), FormatYAML, nil
	}

	if block, body, ok := splitFenced(src, tomlFence); ok {
		var fields map[string]any
		if err := toml.Unmarshal([]byte(block), &fields); err != nil {
			return nil, "", "", fmt.Errorf("frontmatter: decode toml: %w", err)
		}
		return sanitize(fields), strings.TrimSpace(body), FormatTOML, nil
	}

	if strings.HasPrefix(strings.TrimSpace(src), "{") {
		var fields map[string]any
		if err := json.Unmarshal(content, &fields); err != nil {
			return nil, "", "", fmt.Errorf("frontmatter: decode json: %w", err)
		}
		return sanitize(fields), "", FormatJSON, nil
	}

	return nil, "", "", ErrUnknownFormat
}

// Construct is the inverse of Parse: it assembles a document from fields,
// body and format. YAML maps are encoded with two-space indentation.
func Construct(fields map[string]any, body string, format Format) ([]byte, error) {
	if fields == nil {
		fields = map[string]any{}
	}

	var buf bytes.Buffer
	switch format {
	case FormatYAML:
		buf.WriteString(yamlFence + "\n")
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(fields); err != nil {
			return nil, fmt.Errorf("frontmatter: encode yaml: %w", err)
		}
		buf.WriteString(yamlFence + "\n")
	case FormatTOML:
		buf.WriteString(tomlFence + "\n")
		enc := toml.NewEncoder(&buf)
		if err := enc.Encode(fields); err != nil {
			return nil, fmt.Errorf("frontmatter: encode toml: %w", err)
		}
		buf.WriteString(tomlFence + "\n")
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fields); err != nil {
			return nil, fmt.Errorf("frontmatter: encode json: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("frontmatter: unsupported format %q", format)
	}

	if body != "" {
		buf.WriteString("\n")
		buf.WriteString(body)
		buf.WriteString("\n")
	}

	return buf.Bytes(), nil
}

// Normalize parses a document and reconstructs it in canonical form so that
// two logically equal documents compare byte-equal. Documents that fail to
// parse are returned trimmed with a trailing newline.
func Normalize(content []byte) []byte {
	if len(content) == 0 {
		return content
	}
	fields, body, format, err := Parse(content)
	if err != nil {
		return append(bytes.TrimSpace(content), '\n')
	}
	out, err := Construct(fields, body, format)
	if err != nil {
		return append(bytes.TrimSpace(content), '\n')
	}
	return append(bytes.TrimSpace(out), '\n')
}

// splitFenced extracts the block between an opening fence on the first line
// and the first closing fence that occupies a whole line. The closing fence
// may be the last line of the document.
func splitFenced(src, fence string) (block, body string, ok bool) {
	if !strings.HasPrefix(src, fence+"\n") {
		return "", "", false
	}
	rest := src[len(fence)+1:]

	if idx := strings.Index(rest, "\n"+fence+"\n"); idx >= 0 {
		return rest[:idx+1], rest[idx+1+len(fence)+1:], true
	}
	if strings.HasSuffix(rest, "\n"+fence) {
		return rest[:len(rest)-len(fence)], "", true
	}
	return "", "", false
}

// sanitize converts any map[interface{}]interface{} values produced by the
// YAML decoder into map[string]any, recursively, so fields round-trip
// through JSON and TOML encoders.
func sanitize(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return sanitize(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, inner := range v {
			out[fmt.Sprint(key)] = sanitizeValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = sanitizeValue(v[i])
		}
		return out
	default:
		return v
	}
}

func normalizeLineEndings(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
