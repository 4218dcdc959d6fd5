package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/nerrad567/flora-core/internal/ingest"
)

// handleListDevices returns every record in registration order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.registry.List(),
	})
}

// handleIngest accepts one reading.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var p ingest.Payload
	if err := decodeJSON(r, &p); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if _, err := s.ingest.Ingest(r.Context(), p); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// commandRequest is the body of POST /api/command.
type commandRequest struct {
	DeviceID string          `json:"deviceId"`
	Command  json.RawMessage `json:"command"`
}

// handleCommand relays a command and reports its id.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ack, err := s.relay.Send(r.Context(), req.DeviceID, req.Command)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"commandId": ack.CommandID,
	})
}

// decodeJSON reads a single JSON object, keeping numbers as json.Number so
// sensor coercion sees exactly what the device sent.
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(v)
}
