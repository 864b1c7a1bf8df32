package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/selimgur/librarium/service"
)

// Every success response carries {"success":true, ...payload}; every
// failure {"success":false,"message":...}. The frontend keys off the
// success flag, the status code is for machines.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("respond: encode: %v", err)
	}
}

func ok(w http.ResponseWriter, status int, payload map[string]any) {
	body := map[string]any{"success": true}
	for k, v := range payload {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

// failErr maps a service error to its HTTP status equivalent. Internal
// causes are logged, not leaked.
func failErr(w http.ResponseWriter, err error) {
	if service.KindOf(err) == service.KindInternal || service.KindOf(err) == service.KindDataIntegrity {
		log.Printf("request failed: %v", err)
	}
	fail(w, service.HTTPStatus(err), service.Message(err))
}
