package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/tolvera-hq/saborpos/internal/platform/problem"
	"github.com/tolvera-hq/saborpos/internal/tenantctx"
)

// writeProblem translates err into an RFC 7807 problem document and writes
// it with the matching HTTP status.
func writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	doc := problem.ToDocument(err, r.URL.Path, tenantctx.TraceID(r.Context()))
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(doc.Status)
	_ = json.NewEncoder(w).Encode(doc)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
