package exports

import (
	"time"

	"crowdsale/crypto"
	"crowdsale/native/crowdsale"
)

// SettlementRow is one investor line of the settlement report. Amounts are
// minor units rendered as base-10 strings.
type SettlementRow struct {
	Investor    string
	Eligible    bool
	Deposits    int
	Base        string
	USD         string
	Refund      string
	Units       string
	Oversubbed  bool
	GeneratedAt time.Time
}

// Rows converts settlement previews into report rows.
func Rows(quotes []*crowdsale.Quote, generatedAt time.Time) []SettlementRow {
	if generatedAt.IsZero() {
		generatedAt = time.Now().UTC()
	}
	rows := make([]SettlementRow, 0, len(quotes))
	for _, quote := range quotes {
		if quote == nil {
			continue
		}
		rows = append(rows, SettlementRow{
			Investor:    crypto.FormatAccount(quote.Investor),
			Eligible:    quote.Eligible,
			Deposits:    quote.Deposits,
			Base:        amount(quote.Base),
			USD:         amount(quote.USD),
			Refund:      amount(quote.Refund),
			Units:       amount(quote.Units),
			Oversubbed:  quote.Oversubbed,
			GeneratedAt: generatedAt.UTC(),
		})
	}
	return rows
}
