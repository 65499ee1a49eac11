package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"crowdsale/crypto"
	"crowdsale/integrations/exports"
	"crowdsale/native/crowdsale"
)

type ratesJSON struct {
	BaseUSD         string `json:"baseUsd"`
	SecondaryUSD    string `json:"secondaryUsd"`
	SecondaryRaised string `json:"secondaryRaised"`
	UnitsPerUSD     string `json:"unitsPerUsd"`
}

type saleJSON struct {
	Phase          string    `json:"phase"`
	Now            int64     `json:"now"`
	Start          int64     `json:"start"`
	Finish         int64     `json:"finish"`
	Cap            string    `json:"cap"`
	TotalBase      string    `json:"totalBase"`
	TotalUSD       string    `json:"totalUsd"`
	SecondaryUSD   string    `json:"secondaryUsd"`
	Rates          ratesJSON `json:"rates"`
	ValidUntil     int64     `json:"validUntil"`
	Finished       bool      `json:"finished"`
	HardcapReached bool      `json:"hardcapReached"`
	Finalized      bool      `json:"finalized"`
	Settling       bool      `json:"settling"`
}

type depositJSON struct {
	ID        uint64 `json:"id"`
	Base      string `json:"base"`
	USD       string `json:"usd"`
	Units     string `json:"units"`
	Timestamp int64  `json:"timestamp"`
}

type quoteJSON struct {
	Eligible       bool   `json:"eligible"`
	Base           string `json:"base"`
	USD            string `json:"usd"`
	Refund         string `json:"refund"`
	Units          string `json:"units"`
	Oversubscribed bool   `json:"oversubscribed"`
}

type investorJSON struct {
	Investor    string        `json:"investor"`
	Whitelisted bool          `json:"whitelisted"`
	Greylisted  bool          `json:"greylisted"`
	Deposits    []depositJSON `json:"deposits"`
	Quote       quoteJSON     `json:"quote"`
}

func (h *handlers) getSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sale.Sale()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now, err := h.sale.Now()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saleJSON{
		Phase:        string(sale.Phase(now)),
		Now:          now,
		Start:        sale.Start,
		Finish:       sale.Finish,
		Cap:          amount(h.sale.Params().Cap),
		TotalBase:    amount(sale.TotalBase),
		TotalUSD:     amount(sale.TotalUSD),
		SecondaryUSD: amount(sale.SecondaryUSD),
		Rates: ratesJSON{
			BaseUSD:         sale.Rates.BaseUSD.String(),
			SecondaryUSD:    sale.Rates.SecondaryUSD.String(),
			SecondaryRaised: sale.Rates.SecondaryRaised.String(),
			UnitsPerUSD:     sale.Rates.UnitsPerUSD.String(),
		},
		ValidUntil:     sale.ValidUntil,
		Finished:       sale.Finished,
		HardcapReached: sale.HardcapReached,
		Finalized:      sale.Finalized,
		Settling:       sale.Settling,
	})
}

func (h *handlers) getInvestor(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		h.fail(w, r, badRequest("account: %v", err))
		return
	}
	white, err := h.sale.IsListed(crowdsale.ListWhite, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	grey, err := h.sale.IsListed(crowdsale.ListGrey, account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	deposits, err := h.sale.Deposits(account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quote, err := h.sale.Quote(account)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	resp := investorJSON{
		Investor:    crypto.FormatAccount(account),
		Whitelisted: white,
		Greylisted:  grey,
		Deposits:    make([]depositJSON, 0, len(deposits)),
		Quote: quoteJSON{
			Eligible:       quote.Eligible,
			Base:           amount(quote.Base),
			USD:            amount(quote.USD),
			Refund:         amount(quote.Refund),
			Units:          amount(quote.Units),
			Oversubscribed: quote.Oversubbed,
		},
	}
	for _, dep := range deposits {
		resp.Deposits = append(resp.Deposits, depositJSON{
			ID:        dep.ID,
			Base:      amount(dep.Base),
			USD:       amount(dep.USD),
			Units:     amount(dep.Units),
			Timestamp: dep.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// report streams the settlement preview of every investor as CSV (default)
// or newline-delimited JSON.
func (h *handlers) report(w http.ResponseWriter, r *http.Request) {
	quotes, err := h.sale.Quotes()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rows := exports.Rows(quotes, time.Now().UTC())
	switch format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format"))); format {
	case "", "csv":
		data, checksum, err := exports.SettlementCSV(rows)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("X-Checksum-SHA256", checksum)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "jsonl":
		data, err := exports.SettlementJSONL(rows)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	default:
		h.fail(w, r, badRequest("unsupported format %q", format))
	}
}
