package session

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/httpx"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/common/uuid"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db"
	"github.com/Lopezse/lopez-it-welt-sub001/internal/tracksrv/db/models"
)

func (h *Handler) startSession(r *http.Request) (*httpx.Response, error) {
	ctx := r.Context()

	req := &StartRequest{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}

	created, session, err := h.mgr.Start(ctx, req)
	if err != nil {
		return nil, err
	}

	statusCode := http.StatusOK
	location := ""
	if created {
		statusCode = http.StatusCreated
		location = "/sessions/" + session.SessionID.String()
	}
	return &httpx.Response{
		StatusCode: statusCode,
		Location:   location,
		Response: &StartResult{
			Created: created,
			Session: NewSessionInfo(session),
		},
	}, nil
}

func (h *Handler) heartbeatSession(r *http.Request) (*httpx.Response, error) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		return nil, err
	}
	if err := h.mgr.Heartbeat(r.Context(), sessionID); err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusNoContent,
	}, nil
}

func (h *Handler) pauseSession(r *http.Request) (*httpx.Response, error) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		return nil, err
	}
	session, serr := h.mgr.Pause(r.Context(), sessionID)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

func (h *Handler) resumeSession(r *http.Request) (*httpx.Response, error) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		return nil, err
	}
	session, serr := h.mgr.Resume(r.Context(), sessionID)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

func (h *Handler) completeSession(r *http.Request) (*httpx.Response, error) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		return nil, err
	}

	// The completion body is optional.
	req := &CompleteRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := httpx.GetRequestData(r, req); err != nil {
			return nil, err
		}
	}

	session, serr := h.mgr.Complete(r.Context(), sessionID, req)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

func (h *Handler) annotateSession(r *http.Request) (*httpx.Response, error) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		return nil, err
	}

	req := &AnnotateRequest{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}

	session, serr := h.mgr.Annotate(r.Context(), sessionID, req)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

type closeAllRequest struct {
	UserID string `json:"userId,omitempty"`
}

func (h *Handler) closeAllSessions(r *http.Request) (*httpx.Response, error) {
	req := &closeAllRequest{}
	if r.Body != nil && r.ContentLength != 0 {
		if err := httpx.GetRequestData(r, req); err != nil {
			return nil, err
		}
	}

	result, err := h.mgr.CloseAll(r.Context(), req.UserID)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   result,
	}, nil
}

func (h *Handler) getSession(r *http.Request) (*httpx.Response, error) {
	sessionID, err := pathSessionID(r)
	if err != nil {
		return nil, err
	}
	session, serr := h.mgr.Get(r.Context(), sessionID)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

func (h *Handler) getActiveSession(r *http.Request) (*httpx.Response, error) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		return nil, httpx.ErrInvalidRequest("user_id is required")
	}
	session, err := h.mgr.ActiveForUser(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

func (h *Handler) listSessions(r *http.Request) (*httpx.Response, error) {
	filter, err := filterFromQuery(r)
	if err != nil {
		return nil, err
	}
	sessions, serr := h.mgr.List(r.Context(), filter)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfoList(sessions),
	}, nil
}

func (h *Handler) getStats(r *http.Request) (*httpx.Response, error) {
	filter, err := filterFromQuery(r)
	if err != nil {
		return nil, err
	}
	stats, serr := h.agg.Compute(r.Context(), filter)
	if serr != nil {
		return nil, serr
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   stats,
	}, nil
}

type approveRequest struct {
	SessionID uuid.UUID `json:"sessionId"`
}

func (h *Handler) approveSession(r *http.Request) (*httpx.Response, error) {
	req := &approveRequest{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}
	if req.SessionID == uuid.Nil {
		return nil, httpx.ErrInvalidRequest("sessionId is required")
	}

	session, err := h.gate.Approve(r.Context(), req.SessionID)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfo(session),
	}, nil
}

type invoiceRequest struct {
	SessionIDs []uuid.UUID `json:"sessionIds"`
}

func (h *Handler) invoiceSessions(r *http.Request) (*httpx.Response, error) {
	req := &invoiceRequest{}
	if err := httpx.GetRequestData(r, req); err != nil {
		return nil, err
	}

	sessions, err := h.gate.MarkInvoiced(r.Context(), req.SessionIDs)
	if err != nil {
		return nil, err
	}
	return &httpx.Response{
		StatusCode: http.StatusOK,
		Response:   NewSessionInfoList(sessions),
	}, nil
}

func pathSessionID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "sessionID")
	sessionID, err := uuid.Parse(raw)
	if err != nil || sessionID == uuid.Nil {
		return uuid.Nil, httpx.ErrInvalidRequest("invalid session ID")
	}
	return sessionID, nil
}

func filterFromQuery(r *http.Request) (db.Filter, error) {
	q := r.URL.Query()
	filter := db.Filter{
		UserID:   q.Get("user_id"),
		Category: q.Get("category"),
	}

	if status := q.Get("status"); status != "" {
		if !models.IsValidSessionStatus(status) {
			return db.Filter{}, httpx.ErrInvalidRequest("unknown status: " + status)
		}
		filter.Statuses = []models.SessionStatus{models.SessionStatus(status)}
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			return db.Filter{}, httpx.ErrInvalidRequest("from must be RFC3339")
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			return db.Filter{}, httpx.ErrInvalidRequest("to must be RFC3339")
		}
		filter.To = t
	}
	return filter, nil
}
