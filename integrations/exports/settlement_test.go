package exports

import (
	"bytes"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"crowdsale/crypto"
	"crowdsale/native/crowdsale"
)

func sampleQuotes() []*crowdsale.Quote {
	return []*crowdsale.Quote{
		{
			Investor:   [20]byte{0xa1},
			Eligible:   true,
			Deposits:   2,
			Base:       big.NewInt(12_000_000),
			USD:        big.NewInt(600_000),
			Refund:     big.NewInt(2_000_000),
			Units:      big.NewInt(500_000_000),
			Oversubbed: true,
		},
		nil,
		{
			Investor: [20]byte{0xc0},
			Deposits: 1,
			Base:     big.NewInt(1_000_000),
			USD:      big.NewInt(50_000),
			Refund:   big.NewInt(1_000_000),
		},
	}
}

func TestSettlementCSV(t *testing.T) {
	rows := Rows(sampleQuotes(), time.Unix(1700, 0))
	if len(rows) != 2 {
		t.Fatalf("nil quotes must be skipped, got %d rows", len(rows))
	}
	data, checksum, err := SettlementCSV(rows)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || len(checksum) != 64 {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.HasPrefix(output, "investor,eligible,deposits,base,usd,refund,units,oversubscribed,generated_at\n") {
		t.Fatalf("missing header: %s", output)
	}
	alice := crypto.FormatAccount([20]byte{0xa1})
	if !strings.Contains(output, alice+",true,2,12000000,600000,2000000,500000000,true,") {
		t.Fatalf("missing alice row: %s", output)
	}
	if !strings.Contains(output, ",false,1,1000000,50000,1000000,0,false,") {
		t.Fatalf("ineligible row must show zero units: %s", output)
	}

	again, sum2, err := SettlementCSV(rows)
	if err != nil || sum2 != checksum || string(again) != output {
		t.Fatalf("export must be deterministic")
	}
}

func TestWriteSettlementParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.parquet")
	if err := WriteSettlementParquet(path, Rows(sampleQuotes(), time.Unix(1700, 0))); err != nil {
		t.Fatalf("parquet: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected non-empty parquet file")
	}
	head := make([]byte, 4)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.Read(head); err != nil || string(head) != "PAR1" {
		t.Fatalf("expected parquet magic, got %q err=%v", head, err)
	}
}

func TestSettlementJSONL(t *testing.T) {
	data, err := SettlementJSONL(Rows(sampleQuotes(), time.Unix(1700, 0)))
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if record["units"] != "500000000" || record["oversubscribed"] != true {
		t.Fatalf("unexpected record %v", record)
	}
	if record["generatedAt"] != "1970-01-01T00:28:20Z" {
		t.Fatalf("unexpected timestamp %v", record["generatedAt"])
	}
}
