package api

import (
	"errors"
	"net/http"

	"github.com/ignite/cdp-activation/internal/activation"
	"github.com/ignite/cdp-activation/internal/config"
	"github.com/ignite/cdp-activation/internal/domain"
	"github.com/ignite/cdp-activation/internal/export"
	"github.com/ignite/cdp-activation/internal/pkg/httputil"
	"github.com/ignite/cdp-activation/internal/pkg/logger"
	"github.com/ignite/cdp-activation/internal/records"
	"github.com/ignite/cdp-activation/internal/segmentation"
)

// Deps are the services the handlers read from. Loader may be nil, in which
// case reloads are refused.
type Deps struct {
	Config        *config.Config
	Holder        *records.Holder
	Loader        records.Loader
	Engine        *segmentation.Engine
	Catalog       *segmentation.Catalog
	Formatter     *export.Formatter
	ExportOptions export.Options
	Activator     *activation.Activator
}

// Handlers contains all HTTP handlers
type Handlers struct {
	cfg        *config.Config
	holder     *records.Holder
	loader     records.Loader
	engine     *segmentation.Engine
	catalog    *segmentation.Catalog
	formatter  *export.Formatter
	exportOpts export.Options
	activator  *activation.Activator
}

// NewHandlers creates a new Handlers instance
func NewHandlers(d Deps) *Handlers {
	if d.Config == nil {
		d.Config = config.Default()
	}
	if d.Formatter == nil {
		d.Formatter = export.NewFormatter(nil)
	}
	return &Handlers{
		cfg:        d.Config,
		holder:     d.Holder,
		loader:     d.Loader,
		engine:     d.Engine,
		catalog:    d.Catalog,
		formatter:  d.Formatter,
		exportOpts: d.ExportOptions,
		activator:  d.Activator,
	}
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, segmentation.ErrUnknownSegment):
		httputil.ErrorCode(w, http.StatusNotFound, "unknown_segment", err.Error())
	case errors.Is(err, records.ErrNotFound):
		httputil.ErrorCode(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrUnknownPlatform):
		httputil.ErrorCode(w, http.StatusBadRequest, "unknown_platform", err.Error())
	case errors.Is(err, segmentation.ErrUnknownField),
		errors.Is(err, segmentation.ErrUnsupportedOperator),
		errors.Is(err, segmentation.ErrInvalidValue),
		errors.Is(err, segmentation.ErrInvalidLogic),
		errors.Is(err, segmentation.ErrNoConditions):
		httputil.ErrorCode(w, http.StatusBadRequest, "invalid_definition", err.Error())
	case errors.Is(err, records.ErrDataUnavailable):
		logger.Warn("api: record store not loaded")
		httputil.ErrorCode(w, http.StatusServiceUnavailable, "data_unavailable", "customer data is not loaded")
	default:
		httputil.InternalError(w, err)
	}
}
