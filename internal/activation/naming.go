package activation

import (
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/cdp-activation/internal/domain"
)

// DefaultAudienceNameTemplate names audiences CDP_<segment>_<unix seconds>.
const DefaultAudienceNameTemplate = "CDP_{{ segment }}_{{ unix }}"

var nameEngine = liquid.NewEngine()

// RenderAudienceName renders a Liquid audience name template. Available
// bindings: segment, platform, unix, date (YYYYMMDD).
func RenderAudienceName(tpl, segment string, platform domain.Platform, at time.Time) (string, error) {
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultAudienceNameTemplate
	}
	// liquid renders an unterminated tag as literal text.
	if open, ok := unclosedDelimiter(tpl); ok {
		return "", fmt.Errorf("render audience name: template %q has an unclosed %q", tpl, open)
	}
	out, err := nameEngine.ParseAndRenderString(tpl, map[string]any{
		"segment":  segment,
		"platform": string(platform),
		"unix":     at.Unix(),
		"date":     at.UTC().Format("20060102"),
	})
	if err != nil {
		return "", fmt.Errorf("render audience name: %w", err)
	}
	name := strings.TrimSpace(out)
	if name == "" {
		return "", fmt.Errorf("render audience name: template %q produced an empty name", tpl)
	}
	return name, nil
}

// unclosedDelimiter returns the first "{{" or "{%" with no matching close.
func unclosedDelimiter(tpl string) (string, bool) {
	for _, d := range [][2]string{{"{{", "}}"}, {"{%", "%}"}} {
		rest := tpl
		for {
			i := strings.Index(rest, d[0])
			if i < 0 {
				break
			}
			rest = rest[i+len(d[0]):]
			j := strings.Index(rest, d[1])
			if j < 0 {
				return d[0], true
			}
			rest = rest[j+len(d[1]):]
		}
	}
	return "", false
}
