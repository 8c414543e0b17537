package handlers

import (
	"net/http"
)

// State summarizes what the poll loop is currently watching.
func (a *API) State(w http.ResponseWriter, r *http.Request) {
	pending := a.Pending.Snapshot()

	res := &APIStateResponse{
		Status:      "ok",
		Pending:     len(pending),
		ByNamespace: map[string]int{},
		ByOrigin:    map[string]int{},
	}
	for _, p := range pending {
		res.ByNamespace[string(p.Namespace)]++
		res.ByOrigin[string(p.Origin)]++
	}
	responseJSON(w, res, http.StatusOK)
}
