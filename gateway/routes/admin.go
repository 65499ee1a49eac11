package routes

import (
	"net/http"
	"strings"
	"time"

	"crowdsale/crypto"
	"crowdsale/gateway/middleware"
	"crowdsale/native/crowdsale"
)

type windowRequest struct {
	Start  int64 `json:"start"`
	Finish int64 `json:"finish"`
}

type timeRequest struct {
	Start  int64 `json:"start,omitempty"`
	Finish int64 `json:"finish,omitempty"`
	Time   int64 `json:"time,omitempty"`
}

type listRequest struct {
	Accounts []string `json:"accounts"`
}

type ratesRequest struct {
	BaseUSD         string `json:"baseUsd"`
	SecondaryUSD    string `json:"secondaryUsd"`
	SecondaryRaised string `json:"secondaryRaised"`
	UnitsPerUSD     string `json:"unitsPerUsd"`
	Window          string `json:"window"`
}

type depositRequest struct {
	Investor string `json:"investor"`
	Amount   string `json:"amount"`
}

type secondaryRequest struct {
	Amount string `json:"amount"`
}

type secondaryJSON struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
	Symbol  string `json:"symbol"`
}

type effectsResponse struct {
	Effects []effectJSON `json:"effects"`
}

func principal(r *http.Request) crowdsale.Principal {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return p
}

func (h *handlers) init(w http.ResponseWriter, r *http.Request) {
	var req windowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	effects, err := h.sale.Init(r.Context(), principal(r), req.Start, req.Finish)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, effectsResponse{Effects: renderEffects(effects)})
}

func (h *handlers) setStart(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sale.SetStart(r.Context(), principal(r), req.Start); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setFinish(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sale.SetFinish(r.Context(), principal(r), req.Finish); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) setTime(w http.ResponseWriter, r *http.Request) {
	var req timeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sale.SetTime(r.Context(), principal(r), req.Time); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) changeList(list crowdsale.ListKind, member bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req listRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		accounts, err := parseAccounts(req.Accounts)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.sale.ChangeList(r.Context(), principal(r), list, member, accounts); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handlers) setDaily(w http.ResponseWriter, r *http.Request) {
	var req ratesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	rates, window, err := req.parse()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sale.SetDaily(r.Context(), principal(r), rates, window); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req ratesRequest) parse() (crowdsale.Rates, time.Duration, error) {
	var (
		rates crowdsale.Rates
		err   error
	)
	if rates.BaseUSD, err = parseQuantity("baseUsd", req.BaseUSD); err != nil {
		return rates, 0, err
	}
	if rates.SecondaryUSD, err = parseQuantity("secondaryUsd", req.SecondaryUSD); err != nil {
		return rates, 0, err
	}
	if rates.SecondaryRaised, err = parseQuantity("secondaryRaised", req.SecondaryRaised); err != nil {
		return rates, 0, err
	}
	if rates.UnitsPerUSD, err = parseQuantity("unitsPerUsd", req.UnitsPerUSD); err != nil {
		return rates, 0, err
	}
	window, err := time.ParseDuration(strings.TrimSpace(req.Window))
	if err != nil {
		return rates, 0, badRequest("window: %v", err)
	}
	return rates, window, nil
}

func (h *handlers) finalize(w http.ResponseWriter, r *http.Request) {
	effects, err := h.sale.Finalize(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, effectsResponse{Effects: renderEffects(effects)})
}

func (h *handlers) notifyDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	investors, err := parseAccounts([]string{req.Investor})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	qty, err := parseQuantity("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dep, err := h.sale.OnDeposit(r.Context(), principal(r), investors[0], qty)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, depositJSON{
		ID:        dep.ID,
		Base:      amount(dep.Base),
		USD:       amount(dep.USD),
		Units:     amount(dep.Units),
		Timestamp: dep.Timestamp,
	})
}

// notifySecondary books secondary-currency receipts collected off-ledger into
// contract custody. The rate feed reads that balance as the secondary raise.
func (h *handlers) notifySecondary(w http.ResponseWriter, r *http.Request) {
	params := h.sale.Params()
	if principal(r).Account != params.Notifier {
		h.fail(w, r, crowdsale.ErrNotNotifier)
		return
	}
	var req secondaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	qty, err := parseQuantity("amount", req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if qty.Unit != params.SecondaryUnit {
		h.fail(w, r, badRequest("amount: expected %s", params.SecondaryUnit.Code))
		return
	}
	if qty.Sign() <= 0 {
		h.fail(w, r, crowdsale.ErrInvalidAmount)
		return
	}
	if err := h.custody.Credit(r.Context(), params.Contract, qty); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, secondaryJSON{
		Account: crypto.FormatAccount(params.Contract),
		Amount:  amount(qty.Amount),
		Symbol:  qty.Unit.Code,
	})
}
