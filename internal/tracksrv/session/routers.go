package session

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpx"
)

// Handler exposes the session lifecycle, stats, and billing operations over
// HTTP.
type Handler struct {
	mgr  *Manager
	gate *BillingGate
	agg  *Aggregator
}

// NewHandler creates the HTTP handler set for the service.
func NewHandler(mgr *Manager, gate *BillingGate, agg *Aggregator) *Handler {
	return &Handler{
		mgr:  mgr,
		gate: gate,
		agg:  agg,
	}
}

type responseHandlerParam struct {
	method  string
	path    string
	handler httpx.RequestHandler
}

// SessionRouter mounts the session lifecycle endpoints.
func (h *Handler) SessionRouter() chi.Router {
	handlers := []responseHandlerParam{
		{
			method:  http.MethodPost,
			path:    "/",
			handler: h.startSession,
		},
		{
			method:  http.MethodGet,
			path:    "/",
			handler: h.listSessions,
		},
		{
			method:  http.MethodPost,
			path:    "/close-all",
			handler: h.closeAllSessions,
		},
		{
			method:  http.MethodGet,
			path:    "/active",
			handler: h.getActiveSession,
		},
		{
			method:  http.MethodGet,
			path:    "/{sessionID}",
			handler: h.getSession,
		},
		{
			method:  http.MethodPost,
			path:    "/{sessionID}/heartbeat",
			handler: h.heartbeatSession,
		},
		{
			method:  http.MethodPost,
			path:    "/{sessionID}/pause",
			handler: h.pauseSession,
		},
		{
			method:  http.MethodPost,
			path:    "/{sessionID}/resume",
			handler: h.resumeSession,
		},
		{
			method:  http.MethodPost,
			path:    "/{sessionID}/complete",
			handler: h.completeSession,
		},
		{
			method:  http.MethodPost,
			path:    "/{sessionID}/annotate",
			handler: h.annotateSession,
		},
	}
	return buildRouter(handlers)
}

// BillingRouter mounts the billing gate endpoints.
func (h *Handler) BillingRouter() chi.Router {
	handlers := []responseHandlerParam{
		{
			method:  http.MethodPost,
			path:    "/approve",
			handler: h.approveSession,
		},
		{
			method:  http.MethodPost,
			path:    "/invoice",
			handler: h.invoiceSessions,
		},
	}
	return buildRouter(handlers)
}

// StatsRouter mounts the stats endpoint.
func (h *Handler) StatsRouter() chi.Router {
	handlers := []responseHandlerParam{
		{
			method:  http.MethodGet,
			path:    "/",
			handler: h.getStats,
		},
	}
	return buildRouter(handlers)
}

func buildRouter(handlers []responseHandlerParam) chi.Router {
	r := chi.NewRouter()
	for _, handler := range handlers {
		r.Method(handler.method, handler.path, httpx.WrapHttpRsp(handler.handler))
	}
	return r
}
