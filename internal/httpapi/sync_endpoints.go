package httpapi

import (
	"net/http"
)

// postSync reconciles one restaurant: full history without a range, an
// explicit window with one.
func (s *Server) postSync(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	req, _ := r.Context().Value(ctxKeySync).(syncRequest)

	var res syncResponse
	if req.From != nil && req.To != nil {
		out, err := s.svc.SyncRange(r.Context(), caller, req.RestaurantID, *req.From, *req.To)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		res = toSyncResponse(out)
	} else {
		out, err := s.svc.Sync(r.Context(), caller, req.RestaurantID)
		if err != nil {
			writeDomainErr(w, err)
			return
		}
		res = toSyncResponse(out)
	}
	toJSON(w, http.StatusOK, res)
}

// postSyncAll is the scheduled fan-out entry point.
func (s *Server) postSyncAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFrom(r)
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	results, err := s.svc.SyncAll(r.Context(), caller)
	if err != nil && len(results) == 0 {
		writeDomainErr(w, err)
		return
	}
	items := make([]syncResponse, 0, len(results))
	for _, res := range results {
		items = append(items, toSyncResponse(res))
	}
	status := http.StatusOK
	if err != nil {
		// some restaurants failed, the rest synced
		status = http.StatusMultiStatus
	}
	toJSON(w, status, struct {
		Items []syncResponse `json:"items"`
	}{Items: items})
}
