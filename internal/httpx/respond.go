package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/orders"
	"github.com/ariefcatur/go-shop-checkout/internal/payments"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type dataBody struct {
	Data any `json:"data"`
}

type errorBody struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, v any) {
	writeJSON(w, code, dataBody{Data: v})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Code: "VALIDATION"})
}

func invalid(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		badRequest(w, err.Error())
		return
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request", Code: "VALIDATION", Details: details})
}

func statusOf(err error) int {
	switch orders.KindOf(err) {
	case orders.KindValidation, orders.KindSecurity:
		return http.StatusBadRequest
	case orders.KindNotFound:
		return http.StatusNotFound
	case orders.KindConflict:
		return http.StatusConflict
	case orders.KindExternal:
		if errors.Is(err, payments.ErrRejected) {
			return http.StatusBadGateway
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto the response. Messages of 5xx
// errors stay in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	body := errorBody{Error: err.Error(), Code: orders.CodeOf(err)}
	log := logging.FromContext(r.Context(), zap.NewNop())
	switch {
	case code == http.StatusBadGateway:
		log.Warn("payment_provider_rejected", zap.Error(err))
		body.Error = "payment provider rejected the request"
	case code == http.StatusServiceUnavailable:
		log.Warn("payment_provider_unavailable", zap.Error(err))
		body.Error = "payment provider unavailable, retry later"
	case code >= http.StatusInternalServerError:
		log.Error("request_failed", zap.String("code", body.Code), zap.Error(err))
		body.Error = http.StatusText(code)
	}
	writeJSON(w, code, body)
}
