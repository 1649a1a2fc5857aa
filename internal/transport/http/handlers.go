package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/esp32-home/iot-gateway/internal/models"
	"github.com/esp32-home/iot-gateway/internal/services"
)

type controlRequest struct {
	Device string `json:"device"`
	Action string `json:"action"`
}

type statusResponse struct {
	Devices   map[string]models.DeviceState `json:"devices"`
	Connected bool                          `json:"connected"`
}

// handleStatus reports the cached state of every device plus the link
// liveness verdict.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	response := statusResponse{
		Devices:   s.cache.Snapshot(),
		Connected: s.liveness.IsConnected(time.Now()),
	}
	writeJSON(w, http.StatusOK, response)
}

// handleControl submits one operator command to the dispatcher and
// maps its sentinel errors onto HTTP statuses.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var request controlRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body"})
		return
	}
	if request.Device == "" || request.Action == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing device or action"})
		return
	}

	err := s.dispatcher.Submit(request.Device, request.Action)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "OK",
			"device": request.Device,
			"action": request.Action,
		})
	case errors.Is(err, services.ErrInvalidCommand):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrDeviceUnreachable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrCommandPending):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, services.ErrPublishFailed):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// handleEvents relays the notification fan-out as an SSE stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := s.fanout.Subscribe()
	defer s.fanout.Unsubscribe(events)

	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	flusher.Flush()

	done := r.Context().Done()
	for {
		select {
		case event, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			_, _ = w.Write([]byte("event: " + event.Kind + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-done:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
