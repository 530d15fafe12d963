// Package cards renders the social share image for a post. Everything runs
// on the software rasterizer; no GPU is involved.
package cards

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/gogpu/gg"
	ggtext "github.com/gogpu/gg/text"

	"relnotes/pkg/models"
)

// Card dimensions follow the Open Graph convention.
const (
	Width  = 1200
	Height = 630
)

// Renderer draws share cards. A zero Renderer draws the geometric variant
// without any text.
type Renderer struct {
	SiteTitle string
	// Accents maps a category to a hex color. Categories not listed get a
	// color derived from a hash of the name.
	Accents map[string]string

	font *ggtext.FontSource
}

// New builds a renderer. fontPath may be empty; without a font the card
// carries no text, which gg handles by drawing nothing.
func New(siteTitle string, accents map[string]string, fontPath string) (*Renderer, error) {
	r := &Renderer{SiteTitle: siteTitle, Accents: accents}
	if fontPath != "" {
		source, err := ggtext.NewFontSourceFromFile(fontPath)
		if err != nil {
			return nil, fmt.Errorf("cards: load font: %w", err)
		}
		r.font = source
	}
	return r, nil
}

// Render draws the card for a post and returns it PNG-encoded.
func (r *Renderer) Render(post models.Post) ([]byte, error) {
	dc := gg.NewContext(Width, Height)
	defer dc.Close()

	dc.ClearWithColor(gg.Hex("#10141c"))

	accent := r.accentFor(post)

	// Accent panel with a soft echo behind it.
	dc.SetHexColor(accent)
	dc.DrawRoundedRectangle(64, 64, Width-128, Height-224, 24)
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("cards: draw panel: %w", err)
	}
	dc.SetRGBA(1, 1, 1, 0.08)
	dc.DrawRoundedRectangle(84, 84, Width-168, Height-264, 18)
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("cards: draw inset: %w", err)
	}

	// Footer band.
	dc.SetHexColor("#1b2230")
	dc.DrawRectangle(0, Height-120, Width, 120)
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("cards: draw footer: %w", err)
	}
	dc.SetHexColor(accent)
	dc.DrawRectangle(0, Height-120, Width, 6)
	if err := dc.Fill(); err != nil {
		return nil, fmt.Errorf("cards: draw rule: %w", err)
	}

	if r.font != nil {
		dc.SetFont(r.font.Face(56))
		dc.SetRGB(1, 1, 1)
		dc.DrawStringAnchored(post.Meta.Title, Width/2, 220, 0.5, 0.5)

		dc.SetFont(r.font.Face(30))
		dc.SetRGBA(1, 1, 1, 0.85)
		if !post.Meta.Date.IsZero() {
			dc.DrawStringAnchored(post.Meta.Date.Format("January 2, 2006"), Width/2, 310, 0.5, 0.5)
		}
		dc.DrawStringAnchored(r.SiteTitle, Width/2, Height-60, 0.5, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("cards: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// accentFor picks the panel color: the configured accent of the post's
// first category when present, otherwise a hue hashed from the name so the
// same category always gets the same color.
func (r *Renderer) accentFor(post models.Post) string {
	category := ""
	if len(post.Meta.Categories) > 0 {
		category = post.Meta.Categories[0]
	}
	if hex, ok := r.Accents[category]; ok && hex != "" {
		return hex
	}
	return hashedAccent(category)
}

func hashedAccent(category string) string {
	h := fnv.New32a()
	h.Write([]byte(category))
	hue := float64(h.Sum32()%360) / 360
	red, green, blue := hslToRGB(hue, 0.45, 0.38)
	return fmt.Sprintf("#%02x%02x%02x", red, green, blue)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	if s == 0 {
		v := uint8(math.Round(l * 255))
		return v, v, v
	}
	var q float64
	if l < 0.5 {
		q = l * (1 + s)
	} else {
		q = l + s - l*s
	}
	p := 2*l - q
	conv := func(t float64) uint8 {
		if t < 0 {
			t++
		}
		if t > 1 {
			t--
		}
		var v float64
		switch {
		case t < 1.0/6:
			v = p + (q-p)*6*t
		case t < 1.0/2:
			v = q
		case t < 2.0/3:
			v = p + (q-p)*(2.0/3-t)*6
		default:
			v = p
		}
		return uint8(math.Round(v * 255))
	}
	return conv(h + 1.0/3), conv(h), conv(h - 1.0/3)
}
