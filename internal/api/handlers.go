// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/roomwatch/internal/mirror"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/monitor"
	"github.com/tomtom215/roomwatch/internal/notifier"
	"github.com/tomtom215/roomwatch/internal/scheduler"
	"github.com/tomtom215/roomwatch/internal/store"
	"github.com/tomtom215/roomwatch/internal/websocket"
)

// Monitor is the orchestrator surface the API drives. *monitor.Orchestrator
// implements it.
type Monitor interface {
	Health() monitor.Health
	MirrorStatus() mirror.Status
	IsInUse(id mirror.ViewID) bool
	StartMonitoring(ctx context.Context, refs []string) monitor.StartResult
	StopMonitoring(ids ...mirror.ViewID) map[mirror.ViewID]error
	Reconnect(id mirror.ViewID, cmd models.ReconnectCommand) error
	TickOnce(ctx context.Context) scheduler.Result
	RestartScheduler()
	RoomStatuses(ctx context.Context, session string) ([]models.RoomStatusRecord, error)
	Notify(ctx context.Context, ref, msgType, content string) error
}

// Handler serves the ops API.
type Handler struct {
	monitor Monitor
	events  http.HandlerFunc
}

// NewHandler creates a Handler over m.
func NewHandler(m Monitor) *Handler {
	return &Handler{monitor: m}
}

// WithEventFeed serves the live event feed from hub at /api/v1/events.
func (h *Handler) WithEventFeed(hub *websocket.Hub, origins []string) *Handler {
	h.events = websocket.ServeWS(hub, origins)
	return h
}

// StartRequest names the sessions to monitor, by id or name.
type StartRequest struct {
	Sessions []string `json:"sessions" validate:"required,min=1,dive,required"`
}

// StopRequest lists view ids to stop; empty stops every context.
type StopRequest struct {
	ViewIDs []string `json:"view_ids" validate:"omitempty,dive,viewid"`
}

// ReconnectRequest is the reconnect trigger body.
type ReconnectRequest struct {
	RoomID       string `json:"roomId" validate:"required"`
	SessionID    string `json:"sessionId"`
	ChatroomName string `json:"chatroomName"`
}

// NotifyRequest sends a message to a session's normal webhook.
type NotifyRequest struct {
	Session string `json:"session" validate:"required"`
	MsgType string `json:"msg_type" validate:"omitempty,oneof=text markdown"`
	Content string `json:"content" validate:"required"`
}

// viewIDParam is validated with the same rule as request bodies.
type viewIDParam struct {
	ViewID string `json:"view_id" validate:"viewid"`
}

// StopResult reports the outcome per context; nil errors read "stopped".
type StopResult struct {
	Results map[mirror.ViewID]string `json:"results"`
}

// MirrorState is the single-context view.
type MirrorState struct {
	ViewID mirror.ViewID `json:"view_id"`
	InUse  bool          `json:"in_use"`
}

// Healthz reports liveness plus a component summary.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.monitor.Health())
}

// ListMirrors returns pool occupancy.
func (h *Handler) ListMirrors(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.monitor.MirrorStatus())
}

// GetMirror reports whether one context is live.
func (h *Handler) GetMirror(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewID(w, r)
	if !ok {
		return
	}
	respondOK(w, r, MirrorState{ViewID: id, InUse: h.monitor.IsInUse(id)})
}

// DeleteMirror stops one context.
func (h *Handler) DeleteMirror(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewID(w, r)
	if !ok {
		return
	}
	err := h.monitor.StopMonitoring(id)[id]
	switch {
	case errors.Is(err, mirror.ErrNotFound):
		respondError(w, r, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, codeInternal, "failed to stop mirror context", err)
	default:
		respondOK(w, r, StopResult{Results: map[mirror.ViewID]string{id: "stopped"}})
	}
}

// StartMonitoring creates a mirror context per session. Sessions that could
// not start are listed in the result; the request itself still succeeds.
func (h *Handler) StartMonitoring(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}
	respondOK(w, r, h.monitor.StartMonitoring(r.Context(), req.Sessions))
}

// StopMonitoring stops the listed contexts, or all of them.
func (h *Handler) StopMonitoring(w http.ResponseWriter, r *http.Request) {
	var req StopRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}
	ids := make([]mirror.ViewID, len(req.ViewIDs))
	for i, id := range req.ViewIDs {
		ids[i] = mirror.ViewID(id)
	}

	out := StopResult{Results: map[mirror.ViewID]string{}}
	for id, err := range h.monitor.StopMonitoring(ids...) {
		if err != nil {
			out.Results[id] = err.Error()
			continue
		}
		out.Results[id] = "stopped"
	}
	respondOK(w, r, out)
}

// Reconnect asks a live context to reset and re-join a room.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	id, ok := h.viewID(w, r)
	if !ok {
		return
	}
	var req ReconnectRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}

	err := h.monitor.Reconnect(id, models.ReconnectCommand{
		RoomID:       req.RoomID,
		SessionID:    req.SessionID,
		ChatroomName: req.ChatroomName,
	})
	switch {
	case errors.Is(err, mirror.ErrNotFound):
		respondError(w, r, http.StatusNotFound, codeNotFound, err.Error(), nil)
	case err != nil:
		respondError(w, r, http.StatusInternalServerError, codeInternal, "failed to send reconnect", err)
	default:
		respondJSON(w, r, http.StatusAccepted, &models.APIResponse{Status: "success", Data: MirrorState{ViewID: id, InUse: true}})
	}
}

// TickScheduler runs one scheduler tick and returns its result.
func (h *Handler) TickScheduler(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, h.monitor.TickOnce(r.Context()))
}

// RestartScheduler stops the scheduler; the gate restarts it while any
// context is live.
func (h *Handler) RestartScheduler(w http.ResponseWriter, r *http.Request) {
	h.monitor.RestartScheduler()
	respondJSON(w, r, http.StatusAccepted, &models.APIResponse{Status: "success"})
}

// StatusLog lists room status records, optionally for one session.
func (h *Handler) StatusLog(w http.ResponseWriter, r *http.Request) {
	records, err := h.monitor.RoomStatuses(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, codeInternal, "failed to read status log", err)
		return
	}
	if records == nil {
		records = []models.RoomStatusRecord{}
	}
	respondOK(w, r, records)
}

// Notify sends a message to a session's normal webhook.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if apiErr := decodeAndValidate(r, &req); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return
	}
	if req.MsgType == "" {
		req.MsgType = notifier.MsgTypeText
	}

	err := h.monitor.Notify(r.Context(), req.Session, req.MsgType, req.Content)
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, r, http.StatusNotFound, codeNotFound, "session not found", nil)
	case errors.Is(err, notifier.ErrNoWebhook), errors.Is(err, notifier.ErrInvalidWebhookURL):
		respondError(w, r, http.StatusUnprocessableEntity, codeValidation, err.Error(), nil)
	case err != nil:
		respondError(w, r, http.StatusBadGateway, codeInternal, "webhook delivery failed", err)
	default:
		respondOK(w, r, nil)
	}
}

func (h *Handler) viewID(w http.ResponseWriter, r *http.Request) (mirror.ViewID, bool) {
	p := viewIDParam{ViewID: chi.URLParam(r, "viewID")}
	if apiErr := validateRequest(&p); apiErr != nil {
		respondJSON(w, r, http.StatusBadRequest, &models.APIResponse{Status: "error", Error: apiErr})
		return "", false
	}
	return mirror.ViewID(p.ViewID), true
}
