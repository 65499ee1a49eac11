package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	"crowdsale/crypto"
	"crowdsale/native/crowdsale"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type decodeError struct{ err error }

func (e decodeError) Error() string { return e.err.Error() }
func (e decodeError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return decodeError{err: fmt.Errorf(format, args...)}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("request body required")
		}
		return decodeError{err: err}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var decodeErr decodeError
	switch {
	case errors.As(err, &decodeErr):
		return http.StatusBadRequest
	case errors.Is(err, crowdsale.ErrNotInitialized):
		return http.StatusNotFound
	}
	switch crowdsale.Kind(err) {
	case "authorization":
		return http.StatusForbidden
	case "precondition":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "route", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: crowdsale.Kind(err)})
}

func parseAccounts(raw []string) ([][20]byte, error) {
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		account, err := crypto.ParseAccount(entry)
		if err != nil {
			return nil, badRequest("account %q: %v", entry, err)
		}
		out = append(out, account)
	}
	return out, nil
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type effectJSON struct {
	Key      string `json:"key"`
	Kind     string `json:"kind"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Quantity string `json:"quantity"`
	Memo     string `json:"memo,omitempty"`
}

func renderEffects(effects []crowdsale.Effect) []effectJSON {
	out := make([]effectJSON, 0, len(effects))
	for _, effect := range effects {
		out = append(out, effectJSON{
			Key:      effect.Key,
			Kind:     string(effect.Kind),
			From:     renderAccount(effect.From),
			To:       renderAccount(effect.To),
			Quantity: effect.Quantity.String(),
			Memo:     effect.Memo,
		})
	}
	return out
}

func renderAccount(account [20]byte) string {
	if account == ([20]byte{}) {
		return ""
	}
	return crypto.FormatAccount(account)
}

func parseQuantity(field, raw string) (crowdsale.Quantity, error) {
	if strings.TrimSpace(raw) == "" {
		return crowdsale.Quantity{}, badRequest("%s required", field)
	}
	q, err := crowdsale.ParseQuantity(raw)
	if err != nil {
		return crowdsale.Quantity{}, badRequest("%s: %v", field, err)
	}
	return q, nil
}
