package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Kalhara-JA/retail-os/internal/schema"
	"github.com/Kalhara-JA/retail-os/internal/store"
)

const (
	maxPublicLimit = 100
	maxAdminLimit  = 1000
)

// handleGetGlobal handles GET /api/v1/globals/{slug}
func (s *Server) handleGetGlobal(w http.ResponseWriter, r *http.Request) {
	global, ok := schema.ParseGlobal(chi.URLParam(r, "slug"))
	if !ok {
		sendError(w, http.StatusNotFound, "Unknown global")
		return
	}

	doc, err := s.deps.Store.FindGlobal(r.Context(), global)
	if err != nil {
		s.logger.Error("failed to read global", "global", global, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to read global")
		return
	}

	sendJSON(w, http.StatusOK, doc)
}

// handleFindPublic handles GET /api/v1/collections/{slug}
func (s *Server) handleFindPublic(w http.ResponseWriter, r *http.Request) {
	collection, ok := schema.ParseCollection(chi.URLParam(r, "slug"))
	if !ok {
		sendError(w, http.StatusNotFound, "Unknown collection")
		return
	}
	if !collection.Public() {
		sendError(w, http.StatusForbidden, "Collection requires admin access")
		return
	}
	s.find(w, r, collection, maxPublicLimit)
}

// handleFindAdmin handles GET /api/v1/admin/collections/{slug}
func (s *Server) handleFindAdmin(w http.ResponseWriter, r *http.Request) {
	collection, ok := schema.ParseCollection(chi.URLParam(r, "slug"))
	if !ok {
		sendError(w, http.StatusNotFound, "Unknown collection")
		return
	}
	s.find(w, r, collection, maxAdminLimit)
}

func (s *Server) find(w http.ResponseWriter, r *http.Request, collection schema.Collection, maxLimit int) {
	opts, err := parseFindOptions(r.URL.Query(), maxLimit)
	if err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.deps.Store.Find(r.Context(), collection, opts)
	if err != nil {
		s.logger.Error("failed to query collection", "collection", collection, "error", err)
		sendError(w, http.StatusInternalServerError, "Failed to query collection")
		return
	}

	sendJSON(w, http.StatusOK, result)
}

// parseFindOptions reads ?limit, ?page and where[field]=value filters
func parseFindOptions(q url.Values, maxLimit int) (store.FindOptions, error) {
	opts := store.FindOptions{}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return opts, errBadParam("limit")
		}
		if limit > maxLimit {
			limit = maxLimit
		}
		opts.Limit = limit
	}

	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return opts, errBadParam("page")
		}
		opts.Page = page
		opts.Pagination = true
	}

	for key, values := range q {
		if !strings.HasPrefix(key, "where[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		field := strings.TrimSuffix(strings.TrimPrefix(key, "where["), "]")
		if field == "" {
			return opts, errBadParam(key)
		}
		if opts.Where == nil {
			opts.Where = store.Where{}
		}
		opts.Where[field] = values[0]
	}

	return opts, nil
}

type errBadParam string

func (e errBadParam) Error() string {
	return "invalid query parameter: " + string(e)
}
