// Package httpapi wires the HTTP surface of the sales-ledger service.
// It keeps handlers thin, delegating reconciliation rules to the sync layer.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hmaung/salesync/internal/sync"
)

type ctxKey string

const ctxKeySync ctxKey = "validatedSync"
const ctxKeyListEntries ctxKey = "validatedListEntries"
const ctxKeyPostRule ctxKey = "validatedPostRule"
const ctxKeyPostSplit ctxKey = "validatedPostSplit"
const ctxKeyPostCategory ctxKey = "validatedPostCategory"

// validateSync parses POST /v1/sync and stores the validated request in the
// request context for the handler. From and to must be given together.
func (s *Server) validateSync() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req syncRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
				return
			}
			if req.RestaurantID == uuid.Nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "restaurant_id is required"})
				return
			}
			if (req.From == nil) != (req.To == nil) {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "from and to must be given together"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeySync, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateListEntries parses and validates query params for GET /v1/entries.
func (s *Server) validateListEntries() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			raw := q.Get("restaurant_id")
			if raw == "" {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "restaurant_id is required"})
				return
			}
			restaurantID, err := uuid.Parse(raw)
			if err != nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid restaurant_id"})
				return
			}
			query := listEntriesQuery{RestaurantID: restaurantID}
			var from, to *time.Time
			if raw := q.Get("from"); raw != "" {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid from"})
					return
				}
				tt := t.UTC()
				from = &tt
			}
			if raw := q.Get("to"); raw != "" {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid to"})
					return
				}
				tt := t.UTC()
				to = &tt
			}
			if from != nil && to != nil {
				wnd, err := sync.ExplicitWindow(*from, *to)
				if err != nil {
					toJSON(w, http.StatusBadRequest, errorResponse{Error: "to is before from"})
					return
				}
				query.Window = wnd
			} else {
				query.Window = sync.Window{From: from, To: to}
			}
			ctx := context.WithValue(r.Context(), ctxKeyListEntries, query)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostRule parses POST /v1/rules.
func (s *Server) validatePostRule() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postRuleRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
				return
			}
			if req.RestaurantID == uuid.Nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "restaurant_id is required"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostRule, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostCategory parses POST /v1/categories.
func (s *Server) validatePostCategory() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postCategoryRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
				return
			}
			if req.RestaurantID == uuid.Nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "restaurant_id is required"})
				return
			}
			if req.Label == "" && req.Code == "" {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "label is required"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostCategory, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostSplit parses POST /v1/entries/{id}/split.
func (s *Server) validatePostSplit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postSplitRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON: " + err.Error()})
				return
			}
			if req.RestaurantID == uuid.Nil {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "restaurant_id is required"})
				return
			}
			if len(req.Parts) == 0 {
				toJSON(w, http.StatusBadRequest, errorResponse{Error: "parts is required"})
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostSplit, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
