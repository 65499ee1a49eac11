package routes

import (
	"context"
	"errors"
	"net/http"

	"crowdsale/gateway/auth"
	"crowdsale/gateway/middleware"
	"crowdsale/native/crowdsale"
)

type settleFunc func(ctx context.Context, p crowdsale.Principal, investor [20]byte) ([]crowdsale.Effect, error)

// settle serves investor-signed withdraw and refund calls. The recovered
// signer is both the principal and the investor being settled.
func (h *handlers) settle(action string, call settleFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.verifier == nil {
			http.Error(w, "signature verification not configured", http.StatusUnauthorized)
			return
		}
		var req auth.SignedRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		p, err := h.verifier.Verify(r.Context(), action, req)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrMissingField) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}
		ctx := middleware.WithPrincipal(r.Context(), p)
		effects, err := call(ctx, p, p.Account)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, effectsResponse{Effects: renderEffects(effects)})
	}
}
