package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/target/quiz-ui/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, map[string]string{"error": p.ErrCode, "message": p.Err.Error()})
}

// WriteAppError maps an application error onto an HTTP status and writes it.
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}
	WriteError(w, ErrorParams{Code: StatusFor(err), ErrCode: string(code), Err: err})
}

// StatusFor returns the HTTP status that best describes err.
func StatusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeInvalidCredentials, apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeSuperseded:
		return http.StatusConflict
	case apperrors.ErrCodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
