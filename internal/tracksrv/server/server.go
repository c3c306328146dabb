// Package server assembles the tracksrv HTTP surface: middleware, session,
// billing and stats routers, and the system endpoints.
package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpx"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/logtrace"
	commonmiddleware "github.com/Lopezse/lopez-it-welt-sub001/internal/common/middleware"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/config"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/session"
)

const (
	ServerVersion = "0.3.0"
	ApiVersion    = "v1"
)

// TrackerServer is the assembled HTTP server for the tracking service.
type TrackerServer struct {
	Router  *chi.Mux
	store   db.SessionStore
	handler *session.Handler
}

// CreateNewServer builds a server over the given store and session components.
func CreateNewServer(store db.SessionStore, mgr *session.Manager, gate *session.BillingGate, agg *session.Aggregator) *TrackerServer {
	return &TrackerServer{
		Router:  chi.NewRouter(),
		store:   store,
		handler: session.NewHandler(mgr, gate, agg),
	}
}

// MountHandlers installs middleware and routes on the server's router.
func (s *TrackerServer) MountHandlers() {
	s.Router.Use(commonmiddleware.RequestLogger)
	s.Router.Use(commonmiddleware.PanicHandler)
	if config.Config().HandleCORS {
		s.Router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
			MaxAge:         300,
		}))
	}

	s.Router.Mount("/sessions", s.handler.SessionRouter())
	s.Router.Mount("/billing", s.handler.BillingRouter())
	s.Router.Mount("/stats", s.handler.StatsRouter())
	s.Router.Get("/version", s.getVersion)
	s.Router.Get("/ready", s.getReadiness)

	if logtrace.IsTraceEnabled() {
		walkFunc := func(method string, route string, handler http.Handler, middlewares ...func(http.Handler) http.Handler) error {
			fmt.Printf("%s %s\n", method, route)
			return nil
		}
		if err := chi.Walk(s.Router, walkFunc); err != nil {
			fmt.Printf("Logging err: %s\n", err.Error())
		}
	}
}

type GetVersionRsp struct {
	ServerVersion string `json:"serverVersion"`
	ApiVersion    string `json:"apiVersion"`
}

func (s *TrackerServer) getVersion(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("GetVersion")
	rsp := &GetVersionRsp{
		ServerVersion: "Tracking Server: " + ServerVersion,
		ApiVersion:    ApiVersion,
	}
	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, rsp)
}

func (s *TrackerServer) getReadiness(w http.ResponseWriter, r *http.Request) {
	log.Ctx(r.Context()).Debug().Msg("Readiness check")

	if err := s.store.Ping(r.Context()); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("store ping failed during readiness check")
		httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  "session store unreachable",
		})
		return
	}

	httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}
