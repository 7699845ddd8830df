package httpapi

import (
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hmaung/salesync/internal/ledger"
)

// authorizeRestaurant checks the caller against the restaurant and writes the
// response itself on denial. System callers pass unconditionally.
func (s *Server) authorizeRestaurant(w http.ResponseWriter, r *http.Request, restaurantID uuid.UUID) bool {
	caller, ok := callerFrom(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	if caller.System {
		return true
	}
	ok, err := s.store.HasRestaurantAccess(r.Context(), caller.UserID, restaurantID)
	if err != nil {
		writeDomainErr(w, err)
		return false
	}
	if !ok {
		forbidden(w, "caller is not a member of this restaurant")
		return false
	}
	return true
}

func restaurantIDFromQuery(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("restaurant_id")
	if raw == "" {
		badRequest(w, "restaurant_id is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(w, "invalid restaurant_id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	query, _ := r.Context().Value(ctxKeyListEntries).(listEntriesQuery)
	if !s.authorizeRestaurant(w, r, query.RestaurantID) {
		return
	}
	entries, err := s.store.EntriesInWindow(r.Context(), query.RestaurantID, "", query.Window)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, listEntriesResponse{Items: toEntryResponses(entries)})
}

func (s *Server) orderEntries(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := restaurantIDFromQuery(w, r)
	if !ok {
		return
	}
	if !s.authorizeRestaurant(w, r, restaurantID) {
		return
	}
	externalOrderID := chi.URLParam(r, "external_id")
	entries, err := s.store.EntriesByOrder(r.Context(), restaurantID, externalOrderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, listEntriesResponse{Items: toEntryResponses(entries)})
}

func (s *Server) orderSummary(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := restaurantIDFromQuery(w, r)
	if !ok {
		return
	}
	if !s.authorizeRestaurant(w, r, restaurantID) {
		return
	}
	externalOrderID := chi.URLParam(r, "external_id")
	sum, err := s.store.OrderSummary(r.Context(), restaurantID, externalOrderID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, summaryResponse{
		ExternalOrderID: externalOrderID,
		GrossMinor:      sum.GrossMinor,
		OffsetsMinor:    sum.OffsetsMinor,
		TaxMinor:        sum.TaxMinor,
		TipMinor:        sum.TipMinor,
		NetMinor:        sum.NetMinor,
		TotalMinor:      sum.TotalMinor,
	})
}

func (s *Server) postSplit(w http.ResponseWriter, r *http.Request) {
	req, _ := r.Context().Value(ctxKeyPostSplit).(postSplitRequest)
	if !s.authorizeRestaurant(w, r, req.RestaurantID) {
		return
	}
	parentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	parts := make([]ledger.SplitPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		part := ledger.SplitPart{Name: p.Name, TotalMinor: p.TotalMinor}
		if p.Quantity != "" {
			qty, err := decimal.NewFromString(p.Quantity)
			if err != nil {
				badRequest(w, "invalid quantity")
				return
			}
			part.Quantity = qty
		}
		parts = append(parts, part)
	}
	children, err := s.store.CreateSplit(r.Context(), req.RestaurantID, parentID, parts, time.Now().UTC())
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, listEntriesResponse{Items: toEntryResponses(children)})
}
