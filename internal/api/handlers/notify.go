// Package handlers implements the HTTP handlers for the herald API: the
// dispatch endpoint and the ledger observability endpoints.
package handlers

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"herald/internal/core"
	"herald/internal/dispatch"
	"herald/internal/types"
)

// Dispatcher is the pipeline contract consumed by the notify handler,
// defined locally so tests can script outcomes.
type Dispatcher interface {
	Dispatch(ctx context.Context, in *dispatch.Inbound) (*dispatch.Receipt, error)
}

// NotifyHandler maps POST /v1/notify onto the dispatch pipeline.
type NotifyHandler struct {
	pipeline Dispatcher
	logger   *slog.Logger
}

// NewNotifyHandler creates the handler with its pipeline dependency.
func NewNotifyHandler(pipeline Dispatcher, logger *slog.Logger) *NotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotifyHandler{pipeline: pipeline, logger: logger}
}

// RegisterRoutes mounts the dispatch endpoint. The route carries no auth
// middleware: the pipeline resolves the secret itself so that auth, rate
// limiting, and persistence decisions stay in one place.
func (h *NotifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notify", h.HandleNotify)
}

// HandleNotify decodes the payload and runs it through the pipeline. A
// delivered message answers 201 with the ledger receipt; every rejection
// comes back as the pipeline's AppError.
func (h *NotifyHandler) HandleNotify(w http.ResponseWriter, r *http.Request) {
	var req types.NotifyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	receipt, err := h.pipeline.Dispatch(r.Context(), &dispatch.Inbound{
		Secret:     core.BearerSecret(r),
		SourceAddr: clientAddr(r),
		Request:    &req,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.Data(w, r, http.StatusCreated, receipt)
}

// clientAddr strips the port from RemoteAddr for the ledger's source
// column. Behind a proxy the RealIP middleware has already substituted
// the forwarded client address, which carries no port.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
