// Package markdown renders post bodies to HTML and checks the hyperlinks
// they contain. Checks are purely syntactic; nothing here touches the
// network.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"

	"relnotes/pkg/models"
)

// ErrEmptyDocument is returned when rendering produces no visible output.
var ErrEmptyDocument = errors.New("markdown: document renders to empty output")

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithParserOptions(parser.WithAutoHeadingID()),
)

// Render converts Markdown source to HTML. Rendering must produce non-empty
// output; a blank document is an error, not an empty page.
func Render(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("markdown: render: %w", err)
	}
	if len(bytes.TrimSpace(buf.Bytes())) == 0 {
		return nil, ErrEmptyDocument
	}
	return buf.Bytes(), nil
}

// ExtractLinks returns every link, image and autolink destination in the
// document, in walk order.
func ExtractLinks(src []byte) []string {
	doc := md.Parser().Parse(text.NewReader(src))

	var links []string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Link:
			links = append(links, string(node.Destination))
		case *ast.Image:
			links = append(links, string(node.Destination))
		case *ast.AutoLink:
			links = append(links, string(node.URL(src)))
		}
		return ast.WalkContinue, nil
	})
	return links
}

// CheckLink validates a single destination. Absolute URLs must parse with
// an http or https scheme and a host; fragment, root-relative, relative and
// mailto destinations are accepted as-is.
func CheckLink(dest string) error {
	if strings.TrimSpace(dest) == "" {
		return errors.New("empty destination")
	}
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("unparseable destination: %v", err)
	}
	switch {
	case u.Scheme == "http" || u.Scheme == "https":
		if u.Host == "" {
			return errors.New("absolute URL without host")
		}
		return nil
	case u.Scheme == "mailto":
		if u.Opaque == "" {
			return errors.New("mailto without address")
		}
		return nil
	case u.Scheme != "":
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	default:
		// Fragment, root-relative or relative reference.
		return nil
	}
}

// CheckLinks runs CheckLink over every destination in the document and
// reports each violation.
func CheckLinks(src []byte) []models.Problem {
	var problems []models.Problem
	for _, dest := range ExtractLinks(src) {
		if err := CheckLink(dest); err != nil {
			problems = append(problems, models.Problem{
				Kind:    models.ProblemLink,
				Field:   dest,
				Message: err.Error(),
			})
		}
	}
	return problems
}
