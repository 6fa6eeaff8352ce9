package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"roadguard/internal/api"
	"roadguard/internal/mutate"
)

// Version is set at build time
var Version = "dev"

// maxBody bounds JSON request bodies
const maxBody = 1 << 20

// JSONResponse sends a JSON response
func JSONResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("⚠️  Failed to encode JSON response: %v", err)
	}
}

// JSONCreated sends a 201 with a JSON body
func JSONCreated(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("⚠️  Failed to encode JSON response: %v", err)
	}
}

// JSONError sends a JSON error response
func JSONError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// Health returns server health status
func Health(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, map[string]string{
		"status":  "healthy",
		"version": Version,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		JSONError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// mutationError reports a failed mutation. The message always names the
// action ("Failed to delete alert").
func mutationError(w http.ResponseWriter, err error) {
	var mErr *mutate.Error
	if !errors.As(err, &mErr) {
		JSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	code := http.StatusBadGateway
	switch status := api.StatusOf(err); {
	case errors.Is(err, mutate.ErrNotConfirmed):
		code = http.StatusPreconditionRequired
	case status == http.StatusUnauthorized:
		code = http.StatusUnauthorized
	case status >= 400 && status < 500:
		code = status
	case status == 0 && mErr.Err != nil && !isTransport(mErr.Err):
		// Local validation or a rejected confirm token
		code = http.StatusBadRequest
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  mErr.Error(),
		"detail": mErr.Detail(),
		"action": string(mErr.Action),
	})
}

// isTransport reports whether err came from talking to the API rather
// than from checking the request
func isTransport(err error) bool {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}
