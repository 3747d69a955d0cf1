package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/cdp-activation/internal/activation"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/pkg/httputil"
)

// uploadRequest is the body of an upload call. Empty Platforms uploads to
// every configured platform.
type uploadRequest struct {
	Platforms []string `json:"platforms"`
	DryRun    bool     `json:"dry_run"`
}

// platformInfo describes one destination and whether it will make real
// calls.
type platformInfo struct {
	Platform   domain.Platform `json:"platform"`
	Name       string          `json:"name"`
	Configured bool            `json:"configured"`
	Simulated  bool            `json:"simulated"`
	BatchSize  int             `json:"batch_size"`
	DocsURL    string          `json:"docs_url"`
}

// UploadSegment runs a segment and uploads it to the requested platforms.
// Per-platform failures are reported in the results with a 200.
//
//	POST /api/segments/{key}/upload
func (h *Handlers) UploadSegment(w http.ResponseWriter, r *http.Request) {
	if h.activator == nil {
		httputil.ServiceUnavailable(w, "activation is not configured")
		return
	}

	var req uploadRequest
	if !httputil.DecodeOptional(w, r, &req) {
		return
	}

	platforms := make([]domain.Platform, 0, len(req.Platforms))
	for _, name := range req.Platforms {
		p, err := domain.ParsePlatform(name)
		if err != nil {
			writeError(w, err)
			return
		}
		platforms = append(platforms, p)
	}

	run, err := h.activator.Activate(r.Context(), activation.Request{
		SegmentKey: chi.URLParam(r, "key"),
		Platforms:  platforms,
		DryRun:     req.DryRun,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, run)
}

// UploadHistory lists recorded uploads of a segment, newest first.
//
//	GET /api/segments/{key}/history?limit=20
func (h *Handlers) UploadHistory(w http.ResponseWriter, r *http.Request) {
	if h.activator == nil {
		httputil.ServiceUnavailable(w, "activation is not configured")
		return
	}
	key := chi.URLParam(r, "key")
	if _, err := h.catalog.Get(key); err != nil {
		writeError(w, err)
		return
	}
	page := ParsePagination(r, 20, 100)
	entries, err := h.activator.History(r.Context(), key, page.Limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"segment": key, "uploads": entries})
}

// ListPlatforms reports credential status for every platform.
//
//	GET /api/platforms
func (h *Handlers) ListPlatforms(w http.ResponseWriter, r *http.Request) {
	out := make([]platformInfo, 0, len(domain.Platforms()))
	for _, p := range domain.Platforms() {
		ready, _ := h.cfg.PlatformReady(string(p))
		info := platformInfo{
			Platform:   p,
			Name:       p.DisplayName(),
			Configured: ready,
			Simulated:  !ready,
			DocsURL:    p.DocsURL(),
		}
		if h.activator != nil {
			if c, err := h.activator.Client(p); err == nil {
				info.BatchSize = c.BatchSize()
				info.Simulated = c.Simulated()
			}
		}
		out = append(out, info)
	}
	httputil.OK(w, map[string]any{"platforms": out, "dry_run": h.cfg.Activation.DryRun})
}

// GetAudienceStatus queries a remote audience.
//
//	GET /api/platforms/{platform}/audiences/{id}
func (h *Handlers) GetAudienceStatus(w http.ResponseWriter, r *http.Request) {
	if h.activator == nil {
		httputil.ServiceUnavailable(w, "activation is not configured")
		return
	}
	p, err := domain.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		writeError(w, err)
		return
	}
	id := strings.Trim(chi.URLParam(r, "*"), "/")
	if id == "" {
		httputil.BadRequest(w, "audience id is required")
		return
	}
	st, err := h.activator.Status(r.Context(), p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, st)
}
