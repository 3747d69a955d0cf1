package export

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/segmentation"
)

// Exporter runs catalog segments and writes one file per platform.
type Exporter struct {
	engine    *segmentation.Engine
	catalog   *segmentation.Catalog
	formatter *Formatter
	sink      *Sink
	opts      Options
}

// NewExporter wires the pieces of an export run.
func NewExporter(engine *segmentation.Engine, catalog *segmentation.Catalog, formatter *Formatter, sink *Sink, opts Options) *Exporter {
	if formatter == nil {
		formatter = NewFormatter(nil)
	}
	return &Exporter{engine: engine, catalog: catalog, formatter: formatter, sink: sink, opts: opts}
}

// SegmentExport is the outcome of exporting one segment.
type SegmentExport struct {
	Segment segmentation.Definition    `json:"segment"`
	Count   int                        `json:"count"`
	Files   map[domain.Platform]string `json:"files"`
}

// ExportSegment writes key's members for each platform. An empty segment
// writes nothing and returns no files.
func (x *Exporter) ExportSegment(ctx context.Context, key string, platforms []domain.Platform) (*SegmentExport, error) {
	seg, err := x.catalog.Get(key)
	if err != nil {
		return nil, err
	}
	if len(platforms) == 0 {
		platforms = domain.Platforms()
	}

	res, err := x.engine.Run(ctx, seg)
	if err != nil {
		return nil, err
	}
	out := &SegmentExport{
		Segment: seg.Definition(),
		Count:   len(res.Customers),
		Files:   make(map[domain.Platform]string),
	}
	if len(res.Customers) == 0 {
		logger.Info("export: segment is empty, nothing written", "segment", key)
		return out, nil
	}

	for _, p := range platforms {
		t, err := x.formatter.Format(p, res.Customers, x.opts)
		if err != nil {
			return nil, err
		}
		loc, err := x.sink.WriteTable(ctx, t, key)
		if err != nil {
			return nil, fmt.Errorf("export %s to %s: %w", key, p, err)
		}
		if loc != "" {
			out.Files[p] = loc
		}
	}
	return out, nil
}

// ExportAll exports every catalog segment. A failing segment is logged and
// skipped so the rest still export.
func (x *Exporter) ExportAll(ctx context.Context, platforms []domain.Platform) ([]*SegmentExport, error) {
	var out []*SegmentExport
	for _, seg := range x.catalog.List() {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		exp, err := x.ExportSegment(ctx, seg.Key(), platforms)
		if err != nil {
			logger.Error("export: segment failed", "segment", seg.Key(), "error", err)
			continue
		}
		if len(exp.Files) > 0 {
			out = append(out, exp)
		}
	}
	return out, nil
}

// WriteReport renders a summary of exports and stores it next to the files.
func (x *Exporter) WriteReport(ctx context.Context, exports []*SegmentExport) (string, string, error) {
	entries := make([]ReportEntry, 0, len(exports))
	for _, e := range exports {
		entry := ReportEntry{
			SegmentKey:  e.Segment.Key,
			Name:        e.Segment.Name,
			Description: e.Segment.Description,
			Count:       e.Count,
		}
		for _, p := range domain.Platforms() {
			if loc, ok := e.Files[p]; ok {
				entry.Files = append(entry.Files, ReportFile{Platform: p.DisplayName(), Location: loc})
			}
		}
		entries = append(entries, entry)
	}

	report, err := RenderReport(time.Now(), entries)
	if err != nil {
		return "", "", err
	}
	loc, err := x.sink.WriteReport(ctx, report)
	if err != nil {
		return report, "", err
	}
	return report, loc, nil
}
