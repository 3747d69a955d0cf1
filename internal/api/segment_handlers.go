package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/export"
	"github.com/ignite/cdp-activation/internal/pkg/httputil"
	"github.com/ignite/cdp-activation/internal/segmentation"
)

const (
	defaultSampleSize = 10
	maxSampleSize     = 100
)

// segmentSummary is a catalog entry as listed by the API.
type segmentSummary struct {
	segmentation.Definition
	Kinds []segmentation.FieldKind `json:"kinds"`
}

// sampleCustomer is a member as shown in previews. Contact details are left
// out.
type sampleCustomer struct {
	CustomerID string      `json:"customer_id"`
	City       string      `json:"city"`
	Age        int         `json:"age"`
	Gender     string      `json:"gender"`
	Segment    domain.Tier `json:"segment"`
	HasApp     bool        `json:"has_app"`
}

// segmentResponse is a run result plus a page of members.
type segmentResponse struct {
	*segmentation.Result
	Sample     []sampleCustomer `json:"sample"`
	Pagination PageMeta         `json:"pagination"`
}

func newSegmentResponse(res *segmentation.Result, r *http.Request) segmentResponse {
	members, meta := Paginate(res.Customers, ParsePagination(r, defaultSampleSize, maxSampleSize))
	sample := make([]sampleCustomer, len(members))
	for i, c := range members {
		sample[i] = sampleCustomer{
			CustomerID: c.CustomerID,
			City:       c.City,
			Age:        c.Age,
			Gender:     c.Gender,
			Segment:    c.Segment,
			HasApp:     c.HasApp,
		}
	}
	return segmentResponse{Result: res, Sample: sample, Pagination: meta}
}

// ListSegments returns the segment catalog.
//
//	GET /api/segments
func (h *Handlers) ListSegments(w http.ResponseWriter, r *http.Request) {
	segs := h.catalog.List()
	out := make([]segmentSummary, 0, len(segs))
	for _, s := range segs {
		out = append(out, segmentSummary{Definition: s.Definition(), Kinds: s.Kinds()})
	}
	httputil.OK(w, map[string]any{"segments": out, "count": len(out)})
}

// ListOperators describes the condition vocabulary for segment builders.
//
//	GET /api/segments/operators
func (h *Handlers) ListOperators(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"operators": segmentation.GetOperatorMetadata(),
		"fields":    segmentation.Fields(),
	})
}

// GetSegment runs a catalog segment and returns its stats and a sample.
//
//	GET /api/segments/{key}?limit=10&page=1
func (h *Handlers) GetSegment(w http.ResponseWriter, r *http.Request) {
	seg, err := h.catalog.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.engine.Run(r.Context(), seg)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, newSegmentResponse(res, r))
}

// PreviewSegment runs an ad-hoc definition without registering it.
//
//	POST /api/segments/preview
func (h *Handlers) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var def segmentation.Definition
	if !httputil.Decode(w, r, &def) {
		return
	}
	if def.Key == "" {
		def.Key = "preview"
	}
	res, err := h.engine.RunDefinition(r.Context(), def)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, newSegmentResponse(res, r))
}

// ExplainCustomer reports each condition's outcome for one customer.
//
//	GET /api/segments/{key}/explain/{customerID}
func (h *Handlers) ExplainCustomer(w http.ResponseWriter, r *http.Request) {
	seg, err := h.catalog.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	results, member, err := h.engine.Explain(seg, chi.URLParam(r, "customerID"))
	if err != nil {
		writeError(w, err)
		return
	}

	type conditionOutcome struct {
		segmentation.Condition
		Matched bool `json:"matched"`
	}
	conds := seg.Definition().Conditions
	outcomes := make([]conditionOutcome, len(conds))
	for i, c := range conds {
		outcomes[i] = conditionOutcome{Condition: c, Matched: results[i]}
	}
	httputil.OK(w, map[string]any{
		"segment":     seg.Key(),
		"customer_id": chi.URLParam(r, "customerID"),
		"member":      member,
		"logic":       seg.Definition().Logic,
		"conditions":  outcomes,
	})
}

// ExportSegment streams a segment's platform CSV.
//
//	GET /api/segments/{key}/export/{platform}
func (h *Handlers) ExportSegment(w http.ResponseWriter, r *http.Request) {
	platform, err := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, err)
		return
	}
	seg, err := h.catalog.Get(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.engine.Run(r.Context(), seg)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(res.Customers) == 0 {
		httputil.ErrorCode(w, http.StatusNotFound, "empty_segment", fmt.Sprintf("segment %s has no members", seg.Key()))
		return
	}

	opts := h.exportOpts
	if opts == (export.Options{}) {
		opts = export.DefaultOptions()
	}
	table, err := h.formatter.Format(platform, res.Customers, opts)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := table.WriteCSV(&buf); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.CSV(w, export.FileName(platform, seg.Key(), res.EvaluatedAt), table.Len(), buf.Bytes())
}
