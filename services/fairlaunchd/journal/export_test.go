package journal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"fairlaunch/core/types"
	"fairlaunch/native/fairlaunch"
)

func TestExportParquetPagesThroughJournal(t *testing.T) {
	j, _ := setupTestJournal(t)
	ctx := context.Background()

	total := DefaultLimit + 5
	for i := 0; i < total; i++ {
		sale := "LAUNCH"
		if i%2 == 1 {
			sale = "OTHER1"
		}
		_, err := j.Append(ctx, &types.Event{Type: fairlaunch.EventTypeBidAccepted, Sale: sale, Timestamp: int64(1000 + i),
			Attributes: map[string]string{"index": "1"}})
		require.NoError(t, err)
	}

	path := filepath.Join(t.TempDir(), "journal.parquet")
	n, err := j.ExportParquet(ctx, path, Query{})
	require.NoError(t, err)
	require.Equal(t, total, n)

	fr, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(exportRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(total), pr.GetNumRows())

	rows := make([]exportRow, 2)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(1), rows[0].Seq)
	require.Equal(t, "LAUNCH", rows[0].Sale)
	require.Equal(t, `{"index":"1"}`, rows[0].Attributes)

	filtered := filepath.Join(t.TempDir(), "other.parquet")
	n, err = j.ExportParquet(ctx, filtered, Query{Sale: "OTHER1"})
	require.NoError(t, err)
	require.Equal(t, total/2, n)
}
