// Package models holds the content types shared across the engine.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Post represents one release-notes document in the content tree.
type Post struct {
	Path        string         `json:"path"`
	Slug        string         `json:"slug"`
	Format      string         `json:"format,omitempty"`
	FrontMatter map[string]any `json:"frontmatter,omitempty"`
	Body        string         `json:"body,omitempty"`
	Meta        Metadata       `json:"meta"`
	Draft       bool           `json:"draft"`
	Dirty       bool           `json:"is_dirty"`
}

// Metadata is the typed front-matter schema every post must satisfy.
type Metadata struct {
	Layout      string    `json:"layout" validate:"required"`
	Title       string    `json:"title" validate:"required"`
	Date        time.Time `json:"date" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Categories  []string  `json:"categories" validate:"required,min=1,dive,required"`
}

// Problem reports one validation finding on a document.
type Problem struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

const (
	ProblemFrontMatter = "frontmatter"
	ProblemLink        = "link"
	ProblemRender      = "render"
)

// DateLayout is the canonical on-disk form of the date field.
const DateLayout = "2006-01-02 15:04:05 -0700"

var dateLayouts = []string{
	time.RFC3339,
	DateLayout,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// MetadataFromMap decodes the raw front-matter fields into typed Metadata.
// Unknown fields are ignored; they stay available in Post.FrontMatter.
func MetadataFromMap(fields map[string]any) (Metadata, error) {
	var meta Metadata
	meta.Layout = stringField(fields, "layout")
	meta.Title = stringField(fields, "title")
	meta.Description = stringField(fields, "description")
	meta.Categories = ParseCategories(fields["categories"])

	if raw, ok := fields["date"]; ok && raw != nil {
		date, err := parseDate(raw)
		if err != nil {
			return meta, err
		}
		meta.Date = date
	}
	return meta, nil
}

// Map re-encodes the metadata as front-matter fields, with categories in
// their space-separated on-disk form.
func (m Metadata) Map() map[string]any {
	fields := map[string]any{
		"layout":      m.Layout,
		"title":       m.Title,
		"description": m.Description,
		"categories":  strings.Join(m.Categories, " "),
	}
	if !m.Date.IsZero() {
		fields["date"] = m.Date.Format(DateLayout)
	}
	return fields
}

// Validate checks that every required metadata field is present and
// non-empty, reporting one problem per violated field.
func (m Metadata) Validate() []Problem {
	err := validate.Struct(m)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []Problem{{Kind: ProblemFrontMatter, Message: err.Error()}}
	}
	problems := make([]Problem, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, Problem{
			Kind:    ProblemFrontMatter,
			Field:   strings.ToLower(fe.Field()),
			Message: tagMessage(fe),
		})
	}
	return problems
}

// ParseCategories accepts the two shapes categories appear in on disk: a
// single space-separated string ("release windows macos linux") or a list.
// Values are lowercased and de-duplicated, order preserved.
func ParseCategories(raw any) []string {
	var parts []string
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		parts = strings.Fields(v)
	case []string:
		parts = v
	case []any:
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
	default:
		parts = strings.Fields(fmt.Sprint(v))
	}

	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringField(fields map[string]any, key string) string {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return ""
	}
	if s, ok := raw.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprint(raw))
}

func parseDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		value := strings.TrimSpace(v)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, value); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("models: unrecognized date %q", value)
	default:
		return time.Time{}, fmt.Errorf("models: date has type %T", raw)
	}
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required and must be non-empty"
	case "min":
		return "must have at least one entry"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
