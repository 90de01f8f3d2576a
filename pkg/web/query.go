package web

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
)

// QueryInt parses an optional integer query parameter, falling back to def
// when the parameter is absent. Responds with 400 and returns false when the
// value is present but not a valid integer.
func QueryInt(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string, def int64) (int64, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def, true
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return 0, false
	}
	return intValue, true
}

// QueryIntPtr parses an optional integer query parameter, returning nil when
// the parameter is absent.
func QueryIntPtr(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string) (*int64, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, true
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return nil, false
	}
	return &intValue, true
}

// QueryFloatPtr parses an optional decimal query parameter, returning nil when
// the parameter is absent.
func QueryFloatPtr(r *http.Request, w http.ResponseWriter, logger *slog.Logger, key string) (*float64, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, true
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		RespondError(w, logger, http.StatusBadRequest, fmt.Sprintf("Invalid %s number: %s", key, value))
		return nil, false
	}
	return &floatValue, true
}

// QueryString returns an optional string query parameter as a pointer, nil
// when absent.
func QueryString(r *http.Request, key string) *string {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil
	}
	return &value
}
