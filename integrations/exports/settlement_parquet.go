package exports

import (
	"fmt"
	"os"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	Investor       string `parquet:"name=investor, type=BYTE_ARRAY, convertedtype=UTF8"`
	Eligible       bool   `parquet:"name=eligible, type=BOOLEAN"`
	Deposits       int32  `parquet:"name=deposits, type=INT32"`
	Base           string `parquet:"name=base, type=BYTE_ARRAY, convertedtype=UTF8"`
	USD            string `parquet:"name=usd, type=BYTE_ARRAY, convertedtype=UTF8"`
	Refund         string `parquet:"name=refund, type=BYTE_ARRAY, convertedtype=UTF8"`
	Units          string `parquet:"name=units, type=BYTE_ARRAY, convertedtype=UTF8"`
	Oversubscribed bool   `parquet:"name=oversubscribed, type=BOOLEAN"`
	GeneratedAt    string `parquet:"name=generated_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// WriteSettlementParquet writes rows to a snappy-compressed Parquet file at
// path.
func WriteSettlementParquet(path string, rows []SettlementRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("exports: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.RowGroupSize = 16 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &parquetRow{
			Investor:       row.Investor,
			Eligible:       row.Eligible,
			Deposits:       int32(row.Deposits),
			Base:           row.Base,
			USD:            row.USD,
			Refund:         row.Refund,
			Units:          row.Units,
			Oversubscribed: row.Oversubbed,
			GeneratedAt:    row.GeneratedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("exports: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("exports: close parquet file: %w", err)
	}
	return nil
}
