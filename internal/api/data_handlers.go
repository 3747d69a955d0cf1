package api

import (
	"net/http"

	"github.com/ignite/cdp-activation/internal/pkg/httputil"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/records"
)

// DataStatus reports the loaded snapshot's sizes.
//
//	GET /api/data
func (h *Handlers) DataStatus(w http.ResponseWriter, r *http.Request) {
	store, err := h.holder.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"source": h.cfg.Data.Source,
		"counts": store.Counts(),
	})
}

// ReloadData loads a fresh snapshot and swaps it in. Runs in flight keep the
// snapshot they started with.
//
//	POST /api/data/reload
func (h *Handlers) ReloadData(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		httputil.ServiceUnavailable(w, "no data loader configured")
		return
	}
	store, err := records.Reload(r.Context(), h.holder, h.loader)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	counts := store.Counts()
	logger.Info("api: record store reloaded",
		"customers", counts.Customers, "transactions", counts.Transactions, "events", counts.Events)
	httputil.OK(w, map[string]any{"reloaded": true, "counts": counts})
}
