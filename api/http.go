// Copyright 2024 Edgectx, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/edgectx/continentd/projection"
	"github.com/edgectx/continentd/wire"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine *Engine
	log    zerolog.Logger
}

// NewServer builds the HTTP surface over an engine.
func NewServer(engine *Engine, log zerolog.Logger) *Server {
	return &Server{engine: engine, log: log}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.POST("/continent/:dataset_id", s.ingest)
	router.PUT("/continent/:dataset_id", s.ingest)
	router.GET("/continent/:dataset_id", s.snapshot)
	router.GET("/continent/:dataset_id/versions", s.versions)
	router.GET("/continent/:dataset_id/diff/:version", s.deltas)
	router.GET("/continent/:dataset_id/incremental/:from/:to", s.incremental)
	router.POST("/context/:user_id/:dataset_id", s.setContext)
	router.GET("/healthz", s.health)

	return s.withRequestID(router)
}

// withRequestID tags every request with an id, for log correlation across
// the api and worker processes.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		s.log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request")
		next.ServeHTTP(w, r)
	})
}

type ingestBody struct {
	Rows []wire.Row `json:"rows"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body ingestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, errors.Wrap(wire.ErrInvalidInput, err.Error()))
		return
	}
	ack, err := s.engine.StartIngest(r.Context(), ps.ByName("dataset_id"), body.Rows)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusAccepted, map[string]interface{}{
		"dataset_id":  ack.DatasetID,
		"version":     ack.Version,
		"checksum":    ack.Checksum,
		"n_rows":      ack.NumRows,
		"workflow_id": ack.WorkflowID,
	})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	version := r.URL.Query().Get("version")
	res, err := s.engine.GetSnapshot(r.Context(), ps.ByName("dataset_id"), version)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, map[string]interface{}{
		"dataset_id": ps.ByName("dataset_id"),
		"snapshot":   res.Snapshot,
		"source":     res.Source,
	})
}

func (s *Server) versions(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.fail(w, errors.Wrapf(wire.ErrInvalidInput, "malformed limit %q", raw))
			return
		}
		limit = n
	}
	infos, err := s.engine.ListVersions(r.Context(), ps.ByName("dataset_id"), limit)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, map[string]interface{}{
		"dataset_id": ps.ByName("dataset_id"),
		"versions":   infos,
		"count":      len(infos),
	})
}

func (s *Server) deltas(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	recs, err := s.engine.GetDeltas(r.Context(), ps.ByName("dataset_id"), ps.ByName("version"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, map[string]interface{}{
		"dataset_id": ps.ByName("dataset_id"),
		"version":    ps.ByName("version"),
		"deltas":     recs,
		"count":      len(recs),
	})
}

func (s *Server) incremental(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	recs, err := s.engine.GetIncremental(r.Context(), ps.ByName("dataset_id"), ps.ByName("from"), ps.ByName("to"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusOK, map[string]interface{}{
		"dataset_id": ps.ByName("dataset_id"),
		"from":       ps.ByName("from"),
		"to":         ps.ByName("to"),
		"deltas":     recs,
		"count":      len(recs),
	})
}

func (s *Server) setContext(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var pctx projection.Context
	if err := json.NewDecoder(r.Body).Decode(&pctx); err != nil {
		s.fail(w, errors.Wrap(wire.ErrInvalidInput, err.Error()))
		return
	}
	ack, err := s.engine.SetContext(r.Context(), ps.ByName("user_id"), ps.ByName("dataset_id"), pctx)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.reply(w, http.StatusAccepted, map[string]interface{}{
		"user_id":     ack.UserID,
		"dataset_id":  ack.DatasetID,
		"workflow_id": ack.WorkflowID,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.reply(w, http.StatusOK, map[string]interface{}{"status": "up"})
}

// reply writes the {ok: true, ...} envelope.
func (s *Server) reply(w http.ResponseWriter, code int, fields map[string]interface{}) {
	body := map[string]interface{}{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn().Err(err).Msg("response write failed")
	}
}

// fail maps the error taxonomy onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, wire.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, wire.ErrNotFound):
		code = http.StatusNotFound
	}
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    false,
		"error": err.Error(),
	})
}
