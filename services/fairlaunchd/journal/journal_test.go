package journal

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fairlaunch/core/types"
	"fairlaunch/native/fairlaunch"
)

func setupTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	j, err := New(db, nil)
	require.NoError(t, err)
	return j, dsn
}

func TestJournalAppendAndList(t *testing.T) {
	j, _ := setupTestJournal(t)
	ctx := context.Background()

	j.Emit(fairlaunch.WrapEvent(&types.Event{Type: fairlaunch.EventTypeSaleCreated, Sale: "LAUNCH", Timestamp: 1000}))
	j.Emit(fairlaunch.WrapEvent(&types.Event{Type: fairlaunch.EventTypeBidAccepted, Sale: "LAUNCH", Timestamp: 1001,
		Attributes: map[string]string{"amount": "150"}}))
	j.Emit(fairlaunch.WrapEvent(&types.Event{Type: fairlaunch.EventTypeSaleCreated, Sale: "OTHER1", Timestamp: 1002}))

	all, err := j.List(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(1), all[0].Seq)
	require.Equal(t, uint64(3), all[2].Seq)

	launch, err := j.List(ctx, Query{Sale: "LAUNCH"})
	require.NoError(t, err)
	require.Len(t, launch, 2)
	require.Equal(t, "150", launch[1].Event.Attributes["amount"])

	bids, err := j.List(ctx, Query{Type: fairlaunch.EventTypeBidAccepted})
	require.NoError(t, err)
	require.Len(t, bids, 1)

	page, err := j.List(ctx, Query{AfterSeq: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, uint64(2), page[0].Seq)
}

func TestJournalResumesSequence(t *testing.T) {
	j, dsn := setupTestJournal(t)
	ctx := context.Background()
	_, err := j.Append(ctx, &types.Event{Type: "a", Sale: "LAUNCH"})
	require.NoError(t, err)

	db, err := Open("sqlite", dsn)
	require.NoError(t, err)
	reopened, err := New(db, nil)
	require.NoError(t, err)
	seq, err := reopened.Append(ctx, &types.Event{Type: "b", Sale: "LAUNCH"})
	require.NoError(t, err)
	require.Equal(t, uint64(2), seq)
}

func TestJournalRejects(t *testing.T) {
	j, _ := setupTestJournal(t)
	_, err := j.Append(context.Background(), nil)
	require.Error(t, err)
	_, err = Open("mysql", "x")
	require.Error(t, err)
	_, err = New(nil, nil)
	require.Error(t, err)
}
