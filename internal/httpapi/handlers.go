package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cascad/grepzilla/internal/apperr"
	"github.com/cascad/grepzilla/internal/hotbuffer"
	"github.com/cascad/grepzilla/internal/search"
)

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := a.search.Handle(r.Context(), req)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindPatternTooWeak {
			writeError(w, http.StatusBadRequest, ae.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleIngest(w http.ResponseWriter, r *http.Request) {
	docs, err := decodeOneOrMany(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")

	res, err := a.ingest.Ingest(docs, idempotencyKey)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindBackpressure {
			var bp hotbuffer.Backpressure
			errors.As(ae.Underlying, &bp)
			writeJSON(w, http.StatusServiceUnavailable, struct {
				OK         bool  `json:"ok"`
				HotAdded   int   `json:"hot_added"`
				Idempotent bool  `json:"idempotent"`
				BacklogMs  int64 `json:"backlog_ms"`
			}{OK: false, HotAdded: 0, Idempotent: false, BacklogMs: bp.RetryAfterMs})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// decodeOneOrMany accepts either a JSON array of documents or a single
// document object, per spec.md §6's POST /ingest body shape.
func decodeOneOrMany(body io.Reader) ([]json.RawMessage, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err == nil {
		return arr, nil
	}

	var single json.RawMessage
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []json.RawMessage{single}, nil
}

func (a *api) handleManifest(w http.ResponseWriter, r *http.Request) {
	if a.manifest == nil {
		writeError(w, http.StatusNotFound, "no manifest configured")
		return
	}
	shardStr := chi.URLParam(r, "shard")
	shard, err := strconv.ParseUint(shardStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid shard: "+shardStr)
		return
	}

	u, err := a.manifest.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	gen, ok := u.PinGen[shard]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown shard")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Shard    uint64   `json:"shard"`
		Gen      uint64   `json:"gen"`
		Segments []string `json:"segments"`
	}{Shard: shard, Gen: gen, Segments: u.Segs[[2]uint64{shard, gen}]})
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{Status: "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}
