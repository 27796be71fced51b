package transmit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/stream"
)

// DefaultRoutePrefix is the default path prefix of the HTTP boundary.
const DefaultRoutePrefix = "/__transmit"

const maxSubscriptionBody = 1 << 16

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

type subscriptionRequest struct {
	UID     string `json:"uid"`
	Channel string `json:"channel"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler returns the HTTP boundary of this instance:
//
//	GET  {prefix}/events?uid=...   opens an SSE stream
//	GET  {prefix}/ws?uid=...       opens a websocket stream
//	POST {prefix}/subscribe        {"uid":"...","channel":"..."}
//	POST {prefix}/unsubscribe      {"uid":"...","channel":"..."}
//
// Subscribe and unsubscribe respond 204 on success. Subscribe responds 403
// when authorization denies, 500 when it fails, and 404 for unknown uids.
// Middlewares wrap every route, first one outermost.
func (t *Transmit) Handler(mw ...Middleware) http.Handler {
	mux := http.NewServeMux()
	prefix := t.routePrefix

	mux.Handle("GET "+prefix+"/events", chain(http.HandlerFunc(t.serveSSE), mw))
	mux.Handle("GET "+prefix+"/ws", chain(http.HandlerFunc(t.serveWebSocket), mw))
	mux.Handle("POST "+prefix+"/subscribe", chain(http.HandlerFunc(t.serveSubscribe), mw))
	mux.Handle("POST "+prefix+"/unsubscribe", chain(http.HandlerFunc(t.serveUnsubscribe), mw))

	return mux
}

func chain(h http.Handler, mw []Middleware) http.Handler {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

func (t *Transmit) serveSSE(w http.ResponseWriter, r *http.Request) {
	s, err := stream.NewSSE(r.URL.Query().Get("uid"), w, t.streamOpts...)
	if err != nil {
		t.streamError(w, r, err)
		return
	}
	t.serveStream(w, r, s)
}

func (t *Transmit) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	s, err := stream.NewWebSocket(r.URL.Query().Get("uid"), w, r, t.streamOpts...)
	if err != nil {
		t.streamError(w, r, err)
		return
	}
	t.serveStream(w, r, s)
}

type servedStream interface {
	Stream
	Open(http.Header) error
	Serve(context.Context) error
}

// serveStream registers the stream, opens it and blocks until it closes.
// Registration happens before Open so that a duplicate uid can still be
// answered with a plain HTTP error.
func (t *Transmit) serveStream(w http.ResponseWriter, r *http.Request, s servedStream) {
	if err := t.Connect(s); err != nil {
		writeError(w, StatusCode(err))
		return
	}

	if err := s.Open(nil); err != nil {
		t.logger.WarnContext(r.Context(), "failed to open stream",
			logger.UID(s.UID()), logger.Error(err))
		_ = s.Close()
		return
	}

	if err := s.Serve(r.Context()); err != nil {
		t.logger.DebugContext(r.Context(), "stream ended with error",
			logger.UID(s.UID()), logger.Error(err))
	}
}

func (t *Transmit) streamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, stream.ErrEmptyUID) {
		writeError(w, http.StatusBadRequest)
		return
	}
	t.logger.ErrorContext(r.Context(), "failed to create stream", logger.Error(err))
	writeError(w, http.StatusInternalServerError)
}

func (t *Transmit) serveSubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubscription(w, r)
	if !ok {
		return
	}

	err := t.Subscribe(WithRequest(r.Context(), r), req.UID, req.Channel)
	if err != nil {
		writeError(w, StatusCode(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (t *Transmit) serveUnsubscribe(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSubscription(w, r)
	if !ok {
		return
	}

	if !t.Unsubscribe(req.UID, req.Channel) {
		writeError(w, http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeSubscription(w http.ResponseWriter, r *http.Request) (subscriptionRequest, bool) {
	var req subscriptionRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxSubscriptionBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return req, false
	}
	if req.UID == "" || req.Channel == "" {
		writeError(w, http.StatusBadRequest)
		return req, false
	}

	return req, true
}

func writeError(w http.ResponseWriter, status int) {
	text := http.StatusText(status)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    strings.ToUpper(strings.ReplaceAll(text, " ", "_")),
		Message: text,
	})
}
