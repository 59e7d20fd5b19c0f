package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/gift-orders/internal/orders"
)

type errorBody struct {
	Code    orders.Code `json:"code"`
	Message string      `json:"message"`
	Detail  any         `json:"detail,omitempty"`
}

func statusFor(code orders.Code) int {
	switch code {
	case orders.CodeInvalidTransition, orders.CodeInsufficientStock:
		return http.StatusConflict
	case orders.CodePreconditionFailed:
		return http.StatusPreconditionFailed
	case orders.CodeValidation:
		return http.StatusBadRequest
	case orders.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := orders.CodeOf(err)
	body := errorBody{Code: code, Message: err.Error()}
	if short := orders.ShortItems(err); len(short) > 0 {
		body.Detail = map[string]any{"short_items": short}
	}
	if code == orders.CodeInternal || code == orders.CodePersistence {
		// internals stay in the logs
		body.Message = http.StatusText(statusFor(code))
	}
	writeJSON(w, statusFor(code), body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: orders.CodeValidation, Message: msg})
}

// decode reads one JSON object and rejects unknown fields.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid json: " + err.Error())
	}
	return nil
}
