package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/grow-controller/internal/actuator"
	"github.com/sweeney/grow-controller/internal/history"
	"github.com/sweeney/grow-controller/internal/schedule"
	"github.com/sweeney/grow-controller/internal/store"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// ErrorJSON is the body of every error response.
type ErrorJSON struct {
	Error string `json:"error"`
}

// RulesJSON is the body of GET /api/schedules.
type RulesJSON struct {
	Rules []schedule.Rule `json:"rules"`
}

// WaterRequest is the body of POST /api/pump/water.
type WaterRequest struct {
	Minutes *int `json:"minutes"`
}

// HistoryJSON is the body of GET /api/history.
type HistoryJSON struct {
	Events []EventJSON `json:"events"`
}

// EventJSON is one logged actuator command.
type EventJSON struct {
	ID            int64  `json:"id"`
	Timestamp     string `json:"timestamp"`
	Actuator      string `json:"actuator"`
	BrightnessPct *int   `json:"brightness_pct,omitempty"`
	On            *bool  `json:"on,omitempty"`
	Trigger       string `json:"trigger"`
	RuleID        string `json:"rule_id,omitempty"`
}

func toEventJSON(e history.Entry) EventJSON {
	out := EventJSON{
		ID:        e.ID,
		Timestamp: e.Time.UTC().Format(time.RFC3339),
		Actuator:  string(e.Actuator),
		Trigger:   string(e.Trigger),
		RuleID:    e.RuleID,
	}
	if e.Actuator == actuator.Light {
		pct := e.BrightnessPct
		out.BrightnessPct = &pct
	} else {
		on := e.On
		out.On = &on
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("write response")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorJSON{Error: msg})
}

// writeStoreError maps store and validation errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	var verr *schedule.ValidationError
	var perr *store.PersistenceError
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "Rule not found")
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &perr):
		log.Error().Err(err).Str("op", perr.Op).Msg("rule store write failed")
		writeError(w, http.StatusInternalServerError, "failed to save schedules")
	default:
		log.Error().Err(err).Msg("unexpected store error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeBody reads a JSON request body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
