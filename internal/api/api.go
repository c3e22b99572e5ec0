// Package api serves the HTTP surface the map frontend talks to:
// viewport facility queries, facility CRUD, org tree search and the
// facility type registry.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/umarovb/agromap-core/internal/core/model"
	"github.com/umarovb/agromap-core/internal/core/observability"
	"github.com/umarovb/agromap-core/internal/fetcher"
	"github.com/umarovb/agromap-core/internal/orgtree"
	"github.com/umarovb/agromap-core/internal/store"
	"github.com/umarovb/agromap-core/internal/typereg"
)

// FacilityStore is the write/read-by-id side of the facility data.
// Both the postgres store and the upstream API client satisfy it.
type FacilityStore interface {
	GetByID(ctx context.Context, id string) (model.Facility, error)
	Create(ctx context.Context, f model.Facility) (model.Facility, error)
	Update(ctx context.Context, f model.Facility) (model.Facility, error)
	Delete(ctx context.Context, id string) error
}

type Handler struct {
	src   fetcher.Source
	store FacilityStore
	orgs  []*orgtree.Node
	reg   *typereg.Registry
	log   zerolog.Logger
}

func NewHandler(src fetcher.Source, st FacilityStore, orgs []*orgtree.Node, reg *typereg.Registry, log zerolog.Logger) *Handler {
	return &Handler{src: src, store: st, orgs: orgs, reg: reg, log: log}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/facilities", h.handleQuery)
	r.Post("/api/facilities", h.handleCreate)
	r.Get("/api/facilities/{id}", h.handleGet)
	r.Patch("/api/facilities/{id}", h.handleUpdate)
	r.Delete("/api/facilities/{id}", h.handleDelete)
	r.Get("/api/orgs/tree", h.handleOrgTree)
	r.Get("/api/orgs/{id}/target", h.handleOrgTarget)
	r.Get("/api/types", h.handleTypes)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func instrumented(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

// handleQuery runs one synchronous viewport query: per-org fan-out,
// check-order merge, first-wins dedup. Incomplete inputs return an
// empty list without touching the source.
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/facilities", func(w http.ResponseWriter, r *http.Request) {
		orgIDs := splitCSV(r.URL.Query().Get("orgIds"))
		if len(orgIDs) == 0 {
			orgIDs = splitCSV(r.URL.Query().Get("orgId"))
		}
		types := splitCSV(r.URL.Query().Get("types"))
		rawBBox := strings.TrimSpace(r.URL.Query().Get("bbox"))

		var bb model.BBox
		if rawBBox != "" {
			var err error
			bb, err = model.ParseBBox(rawBBox)
			if err != nil {
				http.Error(w, "invalid bbox: "+err.Error(), http.StatusBadRequest)
				return
			}
		}

		if bb.IsZero() || len(orgIDs) == 0 || len(types) == 0 {
			observability.IncFetch(observability.FetchEmptyInput)
			writeJSON(w, http.StatusOK, []model.Facility{})
			return
		}

		merged := fetcher.FetchMerged(r.Context(), h.src, model.Query{BBox: bb, Types: types}, orgIDs, h.log)
		observability.IncFetch(observability.FetchPublished)
		writeJSON(w, http.StatusOK, pageSlice(merged, r.URL.Query().Get("page"), r.URL.Query().Get("pageSize")))
	})(w, r)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/facilities", func(w http.ResponseWriter, r *http.Request) {
		var f model.Facility
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if reasons := h.validateFacility(&f); len(reasons) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": reasons})
			return
		}
		f.Attributes = typereg.CoerceNumbers(f.Attributes)

		created, err := h.store.Create(r.Context(), f)
		if err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				http.Error(w, "facility already exists", http.StatusConflict)
				return
			}
			h.log.Error().Err(err).Str("org_id", f.OrgID).Msg("create facility failed")
			http.Error(w, "create failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	})(w, r)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/facilities/{id}", func(w http.ResponseWriter, r *http.Request) {
		f, err := h.store.GetByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "facility not found", http.StatusNotFound)
				return
			}
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, f)
	})(w, r)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/facilities/{id}", func(w http.ResponseWriter, r *http.Request) {
		var f model.Facility
		if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		f.ID = chi.URLParam(r, "id")
		if reasons := h.validateFacility(&f); len(reasons) > 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"errors": reasons})
			return
		}
		f.Attributes = typereg.CoerceNumbers(f.Attributes)

		updated, err := h.store.Update(r.Context(), f)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "facility not found", http.StatusNotFound)
				return
			}
			h.log.Error().Err(err).Str("facility_id", f.ID).Msg("update facility failed")
			http.Error(w, "update failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	})(w, r)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/facilities/{id}", func(w http.ResponseWriter, r *http.Request) {
		err := h.store.Delete(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "facility not found", http.StatusNotFound)
				return
			}
			http.Error(w, "delete failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})(w, r)
}

// handleOrgTree returns the org hierarchy pruned to a search query,
// plus the ids the frontend should auto-expand.
func (h *Handler) handleOrgTree(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/orgs/tree", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		roots, expand := orgtree.Search(h.orgs, q)
		expandIDs := make([]string, 0, len(expand))
		for id := range expand {
			expandIDs = append(expandIDs, id)
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"roots":  roots,
			"expand": expandIDs,
		})
	})(w, r)
}

func (h *Handler) handleOrgTarget(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/orgs/{id}/target", func(w http.ResponseWriter, r *http.Request) {
		n := orgtree.FindByID(h.orgs, chi.URLParam(r, "id"))
		if n == nil {
			http.Error(w, "org not found", http.StatusNotFound)
			return
		}
		target, ok := orgtree.NavigationTarget(n)
		if !ok {
			http.Error(w, "org has no position", http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, target)
	})(w, r)
}

func (h *Handler) handleTypes(w http.ResponseWriter, r *http.Request) {
	instrumented("/api/types", func(w http.ResponseWriter, _ *http.Request) {
		out := make(map[string]typereg.Schema)
		for _, typ := range h.reg.Types() {
			s, _ := h.reg.Schema(typ)
			out[typ] = s
		}
		writeJSON(w, http.StatusOK, out)
	})(w, r)
}

func (h *Handler) validateFacility(f *model.Facility) map[string]string {
	reasons := map[string]string{}
	if strings.TrimSpace(f.OrgID) == "" {
		reasons["orgId"] = "organization is required"
	}
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		reasons["name"] = "name is required"
	}
	if f.Status == "" {
		f.Status = model.StatusActive
	} else if !model.ValidStatus(f.Status) {
		reasons["status"] = "unknown status"
	}
	for k, v := range h.reg.Validate(f.Type, typereg.CoerceNumbers(f.Attributes)) {
		reasons[k] = v
	}
	return reasons
}

// pageSlice applies optional 1-based paging. Absent or invalid
// params return the whole list.
func pageSlice(fs []model.Facility, pageRaw, sizeRaw string) []model.Facility {
	size, err := strconv.Atoi(sizeRaw)
	if err != nil || size <= 0 {
		return fs
	}
	page, err := strconv.Atoi(pageRaw)
	if err != nil || page < 1 {
		page = 1
	}
	lo := (page - 1) * size
	if lo >= len(fs) {
		return []model.Facility{}
	}
	hi := min(lo+size, len(fs))
	return fs[lo:hi]
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
