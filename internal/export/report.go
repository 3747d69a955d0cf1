package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"
)

// ReportFile is one written export of a segment.
type ReportFile struct {
	Platform string
	Location string
}

// ReportEntry summarises one exported segment.
type ReportEntry struct {
	SegmentKey  string
	Name        string
	Description string
	Count       int
	Files       []ReportFile
}

const reportTemplate = `{{ rule }}
CDP EXPORT SUMMARY
Generated: {{ generated_at }}
{{ rule }}
{% for s in segments %}
{{ s.name }}
   Description: {{ s.description }}
   Customers: {{ s.count }}
   Files:
{% for f in s.files %}
      - {{ f.platform }}: {{ f.location }}
{% endfor %}
{% endfor %}
{{ rule }}
UPLOAD INSTRUCTIONS
{{ rule }}

Meta (Facebook/Instagram):
  1. Business Manager > Audiences > Create Audience > Custom Audience
  2. Choose Customer List
  3. Upload the CSV file
  4. Tick "Data is hashed"

Google Ads:
  1. Tools > Audience Manager > Customer Lists
  2. Click +
  3. Choose "Upload customer emails"
  4. Upload the CSV file

TikTok Ads:
  1. Assets > Audiences > Create Audience
  2. Choose Customer File
  3. Upload the CSV file
`

var reportEngine = liquid.NewEngine()

// RenderReport renders the plain-text export summary.
func RenderReport(generatedAt time.Time, entries []ReportEntry) (string, error) {
	segments := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		files := make([]map[string]any, 0, len(e.Files))
		for _, f := range e.Files {
			files = append(files, map[string]any{"platform": f.Platform, "location": f.Location})
		}
		segments = append(segments, map[string]any{
			"key":         e.SegmentKey,
			"name":        e.Name,
			"description": e.Description,
			"count":       e.Count,
			"files":       files,
		})
	}

	out, err := reportEngine.ParseAndRenderString(reportTemplate, map[string]any{
		"rule":         strings.Repeat("=", 70),
		"generated_at": generatedAt.Format("2006-01-02 15:04:05"),
		"segments":     segments,
	})
	if err != nil {
		return "", fmt.Errorf("rendering export report: %w", err)
	}
	return out, nil
}
