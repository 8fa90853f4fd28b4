package httpx

import (
	"io"
	"net/http"
)

const healthResponse = `{"status":"ok","service":"relay"}`

// healthHandler answers readiness/liveness probes. The response carries the
// service name so probes hitting the wrong port are easy to spot in logs.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}
