package merger

import (
	"bytes"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/FilippoBovo/betfair-data/logger"
)

// parquetRow is the schema of the merged output table.
type parquetRow struct {
	DateTime        int64    `parquet:"name=date_time, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	Selection       string   `parquet:"name=selection, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price           float64  `parquet:"name=price, type=DOUBLE"`
	BackSize        *float64 `parquet:"name=back_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	LaySize         *float64 `parquet:"name=lay_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	TradedSize      *float64 `parquet:"name=traded_size, type=DOUBLE, repetitiontype=OPTIONAL"`
	SelectionStatus *string  `parquet:"name=selection_status, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	MarketStatus    *string  `parquet:"name=market_status, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	InPlay          *bool    `parquet:"name=inplay, type=BOOLEAN, repetitiontype=OPTIONAL"`
}

// memoryFileWriter implements ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

// WriteParquet writes the merged table to a Parquet file.
func WriteParquet(rows []MergedRow, path string, compression string) error {
	log := logger.GetLogger().WithComponent("merger").WithFields(logger.Fields{
		"path":        path,
		"rows":        len(rows),
		"compression": compression,
	})
	log.Info("writing merged parquet file")

	fw := newMemoryFileWriter()

	pw, err := pqwriter.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "lzo":
		pw.CompressionType = parquet.CompressionCodec_LZO
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, row := range rows {
		record := parquetRow{
			DateTime:  row.DateTime.UTC().UnixMicro(),
			Selection: row.Selection,
			Price:     row.Price.InexactFloat64(),
		}
		if row.BackSize != nil {
			v := row.BackSize.InexactFloat64()
			record.BackSize = &v
		}
		if row.LaySize != nil {
			v := row.LaySize.InexactFloat64()
			record.LaySize = &v
		}
		if row.TradedSize != nil {
			v := row.TradedSize.InexactFloat64()
			record.TradedSize = &v
		}
		if row.SelectionStatus != nil {
			v := string(*row.SelectionStatus)
			record.SelectionStatus = &v
		}
		if row.MarketStatus != nil {
			v := string(*row.MarketStatus)
			record.MarketStatus = &v
		}
		if row.InPlay != nil {
			v := *row.InPlay
			record.InPlay = &v
		}

		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	if err := os.WriteFile(path, fw.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}

	log.WithFields(logger.Fields{"file_size": len(fw.Bytes())}).Info("merged parquet file written")
	return nil
}
