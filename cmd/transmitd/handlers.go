package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/transmit/core/logger"
	"github.com/dmitrymomot/transmit/core/transmit"
)

type broadcastRequest struct {
	Channel string           `json:"channel"`
	Payload transmit.Payload `json:"payload"`
	Except  []string         `json:"except,omitempty"`
}

type statsResponse struct {
	ID      string         `json:"id"`
	Clients []string       `json:"clients"`
	Stats   transmit.Stats `json:"stats"`
}

// broadcastHandler publishes a payload. With "except" set the broadcast stays
// on this instance.
func broadcastHandler(t *transmit.Transmit, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req broadcastRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		var err error
		if len(req.Except) > 0 {
			err = t.BroadcastExcept(req.Channel, req.Payload, req.Except...)
		} else {
			err = t.Broadcast(r.Context(), req.Channel, req.Payload)
		}

		if err != nil {
			status := transmit.StatusCode(err)
			if errors.Is(err, transmit.ErrTransportSend) {
				status = http.StatusBadGateway
			}
			log.WarnContext(r.Context(), "broadcast failed", logger.Channel(req.Channel), logger.Error(err))
			http.Error(w, http.StatusText(status), status)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func statsHandler(t *transmit.Transmit) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(statsResponse{
			ID:      t.ID(),
			Clients: t.Clients(),
			Stats:   t.Stats(),
		})
	}
}

// ownChannel allows a subscription only when the authenticated user id in
// header matches the ":id" segment of the channel.
func ownChannel(header string) transmit.AuthorizeFunc {
	return func(_ context.Context, auth transmit.AuthContext) (bool, error) {
		if auth.Request == nil {
			return false, nil
		}
		user := auth.Request.Header.Get(header)
		return user != "" && user == auth.Params.Get("id"), nil
	}
}
