package common

import (
	"cmp"
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the error payload returned by the API. Error is always a
// human readable string so clients can show it directly.
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Error: message, Code: code, Details: details})
}

// WriteError maps err onto an HTTP response. AppErrors keep their status and
// code; anything else becomes a generic 500 without leaking the cause.
func WriteError(w http.ResponseWriter, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		JSONError(w, http.StatusInternalServerError, CodeInternal, "internal error", nil)
		return
	}
	details := appErr.Details
	var syntaxErr *json.SyntaxError
	if details == nil && errors.As(appErr.Err, &syntaxErr) {
		details = map[string]any{"offset": syntaxErr.Offset}
	}
	JSONError(w,
		cmp.Or(appErr.HTTPStatus, http.StatusInternalServerError),
		cmp.Or(appErr.Code, CodeInternal),
		cmp.Or(appErr.Message, "internal error"),
		details)
}

// DecodeJSON reads a JSON request body into dst, rejecting unknown trailing data.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return NewAppError("INVALID_JSON", "invalid JSON body", http.StatusBadRequest, err)
	}
	if dec.More() {
		return NewAppError("INVALID_JSON", "invalid JSON body", http.StatusBadRequest, errors.New("unexpected trailing data"))
	}
	return nil
}
