package models

import (
	"reflect"
	"testing"
	"time"
)

func TestMetadataFromMap(t *testing.T) {
	t.Parallel()

	fields := map[string]any{
		"layout":      "post",
		"title":       "Release 0.0.11",
		"date":        "2023-02-14 12:34:00 +0100",
		"description": "Renderer performance and packaging fixes",
		"categories":  "release windows macos linux",
	}
	meta, err := MetadataFromMap(fields)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.Layout != "post" {
		t.Fatalf("layout = %q", meta.Layout)
	}
	if meta.Title != "Release 0.0.11" {
		t.Fatalf("title = %q", meta.Title)
	}
	wantDate := time.Date(2023, time.February, 14, 12, 34, 0, 0, time.FixedZone("", 3600))
	if !meta.Date.Equal(wantDate) {
		t.Fatalf("date = %v, want %v", meta.Date, wantDate)
	}
	want := []string{"release", "windows", "macos", "linux"}
	if !reflect.DeepEqual(meta.Categories, want) {
		t.Fatalf("categories = %v, want %v", meta.Categories, want)
	}
}

func TestMetadataFromMapNativeDate(t *testing.T) {
	t.Parallel()

	when := time.Date(2023, time.February, 14, 0, 0, 0, 0, time.UTC)
	meta, err := MetadataFromMap(map[string]any{"date": when})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !meta.Date.Equal(when) {
		t.Fatalf("date = %v, want %v", meta.Date, when)
	}
}

func TestMetadataFromMapBadDate(t *testing.T) {
	t.Parallel()

	_, err := MetadataFromMap(map[string]any{"date": "next tuesday"})
	if err == nil {
		t.Fatal("expected date parse error")
	}
}

func TestParseCategories(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want []string
	}{
		{"space separated", "release windows macos linux", []string{"release", "windows", "macos", "linux"}},
		{"list", []any{"Release", "Linux"}, []string{"release", "linux"}},
		{"string slice", []string{"release", "release"}, []string{"release"}},
		{"mixed case dupes", "Release release RELEASE", []string{"release"}},
		{"nil", nil, nil},
		{"blank", "   ", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ParseCategories(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseCategories(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestMetadataValidateComplete(t *testing.T) {
	t.Parallel()

	meta := Metadata{
		Layout:      "post",
		Title:       "Release 0.0.11",
		Date:        time.Date(2023, time.February, 14, 0, 0, 0, 0, time.UTC),
		Description: "Fixes",
		Categories:  []string{"release"},
	}
	if problems := meta.Validate(); len(problems) != 0 {
		t.Fatalf("unexpected problems: %v", problems)
	}
}

func TestMetadataValidateMissingFields(t *testing.T) {
	t.Parallel()

	problems := Metadata{}.Validate()
	if len(problems) == 0 {
		t.Fatal("expected problems for empty metadata")
	}

	missing := map[string]bool{}
	for _, p := range problems {
		if p.Kind != ProblemFrontMatter {
			t.Fatalf("problem kind = %q, want %q", p.Kind, ProblemFrontMatter)
		}
		missing[p.Field] = true
	}
	for _, field := range []string{"layout", "title", "date", "description", "categories"} {
		if !missing[field] {
			t.Fatalf("no problem reported for %q (got %v)", field, problems)
		}
	}
}

func TestMetadataMapRoundTrip(t *testing.T) {
	t.Parallel()

	meta := Metadata{
		Layout:      "post",
		Title:       "Release 0.0.11",
		Date:        time.Date(2023, time.February, 14, 12, 34, 0, 0, time.UTC),
		Description: "Fixes",
		Categories:  []string{"release", "linux"},
	}
	back, err := MetadataFromMap(meta.Map())
	if err != nil {
		t.Fatalf("round trip decode: %v", err)
	}
	if back.Title != meta.Title || back.Layout != meta.Layout || back.Description != meta.Description {
		t.Fatalf("round trip changed fields: %+v", back)
	}
	if !back.Date.Equal(meta.Date) {
		t.Fatalf("date = %v, want %v", back.Date, meta.Date)
	}
	if !reflect.DeepEqual(back.Categories, meta.Categories) {
		t.Fatalf("categories = %v, want %v", back.Categories, meta.Categories)
	}
}

func TestSiteConfigWithDefaultsKeepsTitle(t *testing.T) {
	t.Parallel()

	got := SiteConfig{Title: "Rio"}.WithDefaults()
	if got.Title != "Rio" {
		t.Fatalf("title = %q", got.Title)
	}
	if got.PostsDir != "posts" || got.AssetsDir != "assets" || got.AssetsURL != "/assets/" {
		t.Fatalf("defaults not applied: %+v", got)
	}
}
