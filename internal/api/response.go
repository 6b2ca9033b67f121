package api

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(data)
}

// writeError maps the error onto the HTTP taxonomy and sends it
func writeError(w http.ResponseWriter, err error) {
	status, payload := errorResponseFor(err)
	writeJSON(w, status, payload)
}

// decodeJSON reads the request body into dst, rejecting unknown garbage
func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	return decoder.Decode(dst)
}
