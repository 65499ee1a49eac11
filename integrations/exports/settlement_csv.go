package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"time"
)

var settlementHeader = []string{"investor", "eligible", "deposits", "base", "usd", "refund", "units", "oversubscribed", "generated_at"}

// SettlementCSV builds a CSV export for the supplied rows and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func SettlementCSV(rows []SettlementRow) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(settlementHeader); err != nil {
		return nil, "", err
	}
	for _, row := range rows {
		record := []string{
			row.Investor,
			strconv.FormatBool(row.Eligible),
			fmt.Sprintf("%d", row.Deposits),
			row.Base,
			row.USD,
			row.Refund,
			row.Units,
			strconv.FormatBool(row.Oversubbed),
			row.GeneratedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func amount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
