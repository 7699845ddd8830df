package httpapi

import (
	"net/http"

	"github.com/hmaung/salesync/internal/rules"
)

func (s *Server) postRule(w http.ResponseWriter, r *http.Request) {
	req, _ := r.Context().Value(ctxKeyPostRule).(postRuleRequest)
	if !s.authorizeRestaurant(w, r, req.RestaurantID) {
		return
	}
	rule := rules.Rule{
		RestaurantID: req.RestaurantID,
		Priority:     req.Priority,
		Field:        rules.Field(req.Field),
		Pattern:      req.Pattern,
		CategoryID:   req.CategoryID,
		Active:       true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if err := rule.Validate(); err != nil {
		unprocessable(w, err.Error(), "validation_error")
		return
	}
	created, err := s.store.CreateRule(r.Context(), rule)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toRuleResponse(created))
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := restaurantIDFromQuery(w, r)
	if !ok {
		return
	}
	if !s.authorizeRestaurant(w, r, restaurantID) {
		return
	}
	list, err := s.store.RulesByRestaurant(r.Context(), restaurantID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	items := make([]ruleResponse, 0, len(list))
	for _, rule := range list {
		items = append(items, toRuleResponse(rule))
	}
	toJSON(w, http.StatusOK, struct {
		Items []ruleResponse `json:"items"`
	}{Items: items})
}

func (s *Server) postCategory(w http.ResponseWriter, r *http.Request) {
	req, _ := r.Context().Value(ctxKeyPostCategory).(postCategoryRequest)
	if !s.authorizeRestaurant(w, r, req.RestaurantID) {
		return
	}
	created, err := s.store.CreateCategory(r.Context(), req.RestaurantID, req.Code, req.Label)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, categoryResponse{ID: created.ID, Code: created.Code, Label: created.Label, Reserved: created.Reserved})
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	restaurantID, ok := restaurantIDFromQuery(w, r)
	if !ok {
		return
	}
	if !s.authorizeRestaurant(w, r, restaurantID) {
		return
	}
	cats, err := s.store.CategoriesByRestaurant(r.Context(), restaurantID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	items := make([]categoryResponse, 0, len(cats))
	for _, c := range cats {
		items = append(items, categoryResponse{ID: c.ID, Code: c.Code, Label: c.Label, Reserved: c.Reserved})
	}
	toJSON(w, http.StatusOK, struct {
		Items []categoryResponse `json:"items"`
	}{Items: items})
}
