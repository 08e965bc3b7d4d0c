package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/grow-controller/internal/clock"
	"github.com/sweeney/grow-controller/internal/history"
	"github.com/sweeney/grow-controller/internal/schedule"
)

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	rules := s.cfg.Store.List()
	if rules == nil {
		rules = []schedule.Rule{}
	}
	writeJSON(w, http.StatusOK, RulesJSON{Rules: rules})
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.cfg.Store.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var f schedule.Fields
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	rule, err := schedule.ValidateCreate(f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	rule, err = s.cfg.Store.Create(r.Context(), rule)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	log.Info().Str("rule_id", rule.ID).Str("kind", string(rule.Kind)).Msg("rule created")
	s.kick()
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.cfg.Store.Get(id); err != nil {
		writeStoreError(w, err)
		return
	}

	var f schedule.Fields
	if err := decodeBody(w, r, &f); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	rule, err := s.cfg.Store.Update(r.Context(), id, func(existing schedule.Rule) (schedule.Rule, error) {
		return schedule.ValidateUpdate(existing, f)
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	log.Info().Str("rule_id", id).Msg("rule updated")
	s.kick()
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.cfg.Store.Delete(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}

	log.Info().Str("rule_id", id).Msg("rule deleted")
	s.kick()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getOverrides(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Store.Overrides())
}

// pauseChange is one pause field of a PUT /api/schedules/overrides body.
type pauseChange struct {
	set   bool
	until *time.Time
}

func (c pauseChange) apply(dst **time.Time) {
	if c.set {
		*dst = c.until
	}
}

func parsePause(key string, raw json.RawMessage) (pauseChange, error) {
	if string(raw) == "null" {
		return pauseChange{set: true}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return pauseChange{}, fmt.Errorf("%s must be an RFC3339 timestamp or null", key)
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return pauseChange{}, fmt.Errorf("%s must be an RFC3339 timestamp or null", key)
	}
	return pauseChange{set: true, until: &t}, nil
}

func (s *Server) putOverrides(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	var light, pump pauseChange
	for key, raw := range body {
		var err error
		switch key {
		case "light_rules_paused_until":
			light, err = parsePause(key, raw)
		case "pump_rules_paused_until":
			pump, err = parsePause(key, raw)
		default:
			err = fmt.Errorf("unknown field %q", key)
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	o, err := s.cfg.Store.SetOverrides(r.Context(), func(o schedule.Overrides) schedule.Overrides {
		light.apply(&o.LightPausedUntil)
		pump.apply(&o.PumpPausedUntil)
		return o
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	log.Info().Interface("overrides", o).Msg("overrides updated")
	s.kick()
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) startWatering(w http.ResponseWriter, r *http.Request) {
	var req WaterRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Minutes == nil || *req.Minutes < schedule.MinDurationMinutes || *req.Minutes > schedule.MaxDurationMinutes {
		writeError(w, http.StatusBadRequest, "minutes must be 1-120")
		return
	}

	run := manualRun(s.cfg.Now(), *req.Minutes)
	o, err := s.cfg.Store.SetOverrides(r.Context(), func(o schedule.Overrides) schedule.Overrides {
		o.ManualPump = &run
		return o
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	log.Info().Int("minutes", *req.Minutes).Time("until", run.Until).Msg("manual watering started")
	s.kick()
	writeJSON(w, http.StatusOK, o)
}

// manualRun covers the tick minute containing now and ends on the first
// minute boundary at least minutes after now, so the pump starts on the next
// tick and never runs short.
func manualRun(now time.Time, minutes int) schedule.ManualRun {
	until := now.Add(time.Duration(minutes) * time.Minute)
	if end := clock.Truncate(until); end.Before(until) {
		until = end.Add(time.Minute)
	}
	return schedule.ManualRun{Since: clock.Truncate(now), Until: until}
}

func (s *Server) stopWatering(w http.ResponseWriter, r *http.Request) {
	o, err := s.cfg.Store.SetOverrides(r.Context(), func(o schedule.Overrides) schedule.Overrides {
		o.ManualPump = nil
		return o
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	log.Info().Msg("manual watering cancelled")
	s.kick()
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}

	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > history.MaxLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be 1-%d", history.MaxLimit))
			return
		}
		limit = n
	}

	entries, err := s.cfg.History.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("read history")
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}

	out := HistoryJSON{Events: make([]EventJSON, 0, len(entries))}
	for _, e := range entries {
		out.Events = append(out.Events, toEventJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}
