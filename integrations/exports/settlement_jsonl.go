package exports

import (
	"bytes"
	"encoding/json"
	"time"
)

type settlementJSON struct {
	Investor       string `json:"investor"`
	Eligible       bool   `json:"eligible"`
	Deposits       int    `json:"deposits"`
	Base           string `json:"base"`
	USD            string `json:"usd"`
	Refund         string `json:"refund"`
	Units          string `json:"units"`
	Oversubscribed bool   `json:"oversubscribed"`
	GeneratedAt    string `json:"generatedAt"`
}

// SettlementJSONL renders rows as newline-delimited JSON records.
func SettlementJSONL(rows []SettlementRow) ([]byte, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	for _, row := range rows {
		record := settlementJSON{
			Investor:       row.Investor,
			Eligible:       row.Eligible,
			Deposits:       row.Deposits,
			Base:           row.Base,
			USD:            row.USD,
			Refund:         row.Refund,
			Units:          row.Units,
			Oversubscribed: row.Oversubbed,
			GeneratedAt:    row.GeneratedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := encoder.Encode(record); err != nil {
			return nil, err
		}
	}
	return buffer.Bytes(), nil
}
