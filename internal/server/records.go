package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzhttp"
	"github.com/wolfeidau/caseguard/internal/auth"
	"github.com/wolfeidau/caseguard/internal/catalog"
	"github.com/wolfeidau/caseguard/internal/models"
	"github.com/wolfeidau/caseguard/internal/payload"
	"github.com/wolfeidau/caseguard/internal/store"
)

// DefaultMaxBodyBytes caps a write payload.
const DefaultMaxBodyBytes = 32 << 20

// Records serves the five record operations for every catalogued entity.
type Records struct {
	store        store.RecordStore
	catalog      *catalog.Catalog
	maxBodyBytes int64
}

func NewRecords(rs store.RecordStore, cat *catalog.Catalog, maxBodyBytes int64) *Records {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Records{store: rs, catalog: cat, maxBodyBytes: maxBodyBytes}
}

// Register adds the record routes to mux.
func (h *Records) Register(mux *http.ServeMux) {
	mux.Handle("GET /api/v1/{entity}", gzhttp.GzipHandler(http.HandlerFunc(h.list)))
	mux.HandleFunc("POST /api/v1/{entity}", h.create)
	mux.Handle("GET /api/v1/{entity}/{id}", gzhttp.GzipHandler(http.HandlerFunc(h.get)))
	mux.HandleFunc("PATCH /api/v1/{entity}/{id}", h.update)
	mux.HandleFunc("PUT /api/v1/{entity}/{id}", h.update)
	mux.HandleFunc("DELETE /api/v1/{entity}/{id}", h.delete)
	mux.HandleFunc("GET /api/v1/{entity}/{id}/content", h.content)
}

func (h *Records) list(w http.ResponseWriter, r *http.Request) {
	p, e, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rows, err := h.store.List(r.Context(), p, e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Records) get(w http.ResponseWriter, r *http.Request) {
	p, e, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := parseID(r)

	row, err := h.store.Get(r.Context(), p, e, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Records) create(w http.ResponseWriter, r *http.Request) {
	p, e, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := h.decodeFields(w, r, e)
	if err != nil {
		writeError(w, r, err)
		return
	}

	row, err := h.store.Create(r.Context(), p, e, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if id, ok := row[e.IDColumn]; ok {
		w.Header().Set("Location", fmt.Sprintf("/api/v1/%s/%v", e.Name, id))
	}
	writeJSON(w, http.StatusCreated, row)
}

func (h *Records) update(w http.ResponseWriter, r *http.Request) {
	p, e, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := parseID(r)
	fields, err := h.decodeFields(w, r, e)
	if err != nil {
		writeError(w, r, err)
		return
	}

	row, err := h.store.Update(r.Context(), p, e, id, fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

func (h *Records) delete(w http.ResponseWriter, r *http.Request) {
	p, e, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := parseID(r)

	if err := h.store.Delete(r.Context(), p, e, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// content streams the binary payload of one record.
func (h *Records) content(w http.ResponseWriter, r *http.Request) {
	p, e, err := h.resolve(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id := parseID(r)

	row, err := h.store.Get(r.Context(), p, e, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if e.Binary == nil {
		writeError(w, r, store.ErrNotFound)
		return
	}

	c, err := payload.ContentOf(e, row)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag := c.ETag()
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", c.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(c.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": c.Name}))
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(c.Data)
	}
}

func (h *Records) resolve(r *http.Request) (models.Principal, models.Entity, error) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return models.Principal{}, models.Entity{}, auth.ErrUnauthenticated
	}

	e, ok := h.catalog.Lookup(r.PathValue("entity"))
	if !ok {
		return models.Principal{}, models.Entity{}, fmt.Errorf("%w: unknown entity", store.ErrNotFound)
	}
	return p, e, nil
}

// parseID returns the path id, or 0 when it is not a positive base 10
// integer. The store still authorizes the request and reports 0 as not found.
func parseID(r *http.Request) int64 {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// decodeFields reads a JSON object payload. Numbers become int64 when
// integral and float64 otherwise. A string sent for the binary column is
// standard base64.
func (h *Records) decodeFields(w http.ResponseWriter, r *http.Request, e models.Entity) (store.Fields, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: payload exceeds %d bytes", store.ErrInvalidInput, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: unreadable body", store.ErrInvalidInput)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", store.ErrInvalidInput)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after JSON object", store.ErrInvalidInput)
	}

	fields := make(store.Fields, len(raw))
	for col, v := range raw {
		value, err := fieldValue(e, col, v)
		if err != nil {
			return nil, err
		}
		fields[col] = value
	}
	return fields, nil
}

func fieldValue(e models.Entity, col string, v any) (any, error) {
	switch t := v.(type) {
	case nil, bool:
		return t, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s is not a number", store.ErrInvalidInput, col)
		}
		return f, nil
	case string:
		if e.Binary != nil && col == e.Binary.Column {
			data, err := base64.StdEncoding.DecodeString(t)
			if err != nil {
				return nil, fmt.Errorf("%w: %s must be base64", store.ErrInvalidInput, col)
			}
			return data, nil
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s must be a scalar", store.ErrInvalidInput, col)
}
