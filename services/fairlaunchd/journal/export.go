package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type exportRow struct {
	ID         string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq        int64  `parquet:"name=seq, type=INT64"`
	Sale       string `parquet:"name=sale, type=BYTE_ARRAY, convertedtype=UTF8"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Timestamp  int64  `parquet:"name=timestamp, type=INT64"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportParquet writes every event matching q (Limit is ignored) to a
// snappy-compressed parquet file at path and returns the number of rows.
func (j *Journal) ExportParquet(ctx context.Context, path string, q Query) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(file), new(exportRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	abort := func(err error) (int, error) {
		pw.WriteStop()
		file.Close()
		return 0, err
	}
	written := 0
	page := Query{Sale: q.Sale, Type: q.Type, AfterSeq: q.AfterSeq, Limit: DefaultLimit}
	for {
		entries, err := j.List(ctx, page)
		if err != nil {
			return abort(err)
		}
		for _, entry := range entries {
			attrs, err := json.Marshal(entry.Event.Attributes)
			if err != nil {
				return abort(fmt.Errorf("journal: encode attributes: %w", err))
			}
			row := &exportRow{
				ID:         entry.ID,
				Seq:        int64(entry.Seq),
				Sale:       entry.Event.Sale,
				Type:       entry.Event.Type,
				Timestamp:  entry.Event.Timestamp,
				Attributes: string(attrs),
			}
			if err := pw.Write(row); err != nil {
				return abort(fmt.Errorf("journal: parquet write: %w", err))
			}
			written++
			page.AfterSeq = entry.Seq
		}
		if len(entries) < DefaultLimit {
			break
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("journal: close parquet file: %w", err)
	}
	j.logger.Info("journal exported", "rows", written, "sale", q.Sale)
	return written, nil
}
