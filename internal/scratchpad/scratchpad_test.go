package scratchpad

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type note struct {
	Title string `json:"title"`
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	pad := store.Pad("inv-1")

	_, ok, err := pad.ReadSection(ctx, PatternAnalysis)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Save(ctx, pad, ProblemDescription, note{Title: "checkout down"}))
	got, ok, err := Load[note](ctx, pad, ProblemDescription)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "checkout down", got.Title)

	_, ok, err = store.Pad("inv-2").ReadSection(ctx, ProblemDescription)
	require.NoError(t, err)
	assert.False(t, ok, "pads must be isolated per investigation")
}

func TestMemoryStoreCopiesPayload(t *testing.T) {
	ctx := context.Background()
	pad := NewMemoryStore().Pad("inv")
	payload := json.RawMessage(`{"title":"a"}`)
	require.NoError(t, pad.WriteSection(ctx, ProblemDescription, payload))
	payload[10] = 'b'

	stored, ok, err := pad.ReadSection(ctx, ProblemDescription)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"title":"a"}`, string(stored))
}

func TestMemoryStoreRejectsUnknownSection(t *testing.T) {
	err := NewMemoryStore().Pad("inv").WriteSection(context.Background(), Section("NOTES"), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestMemoryStoreDeleteSection(t *testing.T) {
	ctx := context.Background()
	pad := NewMemoryStore().Pad("inv")
	require.NoError(t, pad.DeleteSection(ctx, CodeInspection), "deleting from an unknown pad")

	require.NoError(t, Save(ctx, pad, CodeInspection, note{Title: "stale"}))
	require.NoError(t, Save(ctx, pad, ProblemDescription, note{Title: "keep"}))
	require.NoError(t, pad.DeleteSection(ctx, CodeInspection))

	_, ok, err := pad.ReadSection(ctx, CodeInspection)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = pad.ReadSection(ctx, ProblemDescription)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStoreEvictsLeastRecentlyWritten(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(2)
	require.NoError(t, Save(ctx, store.Pad("a"), ProblemDescription, note{Title: "a"}))
	require.NoError(t, Save(ctx, store.Pad("b"), ProblemDescription, note{Title: "b"}))
	require.NoError(t, Save(ctx, store.Pad("a"), DataCollected, note{Title: "a again"}))
	require.NoError(t, Save(ctx, store.Pad("c"), ProblemDescription, note{Title: "c"}))

	assert.Equal(t, 2, store.Len())
	_, ok, err := store.Pad("b").ReadSection(ctx, ProblemDescription)
	require.NoError(t, err)
	assert.False(t, ok, "b was written least recently")
	_, ok, err = store.Pad("a").ReadSection(ctx, DataCollected)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadReportsDecodeErrors(t *testing.T) {
	ctx := context.Background()
	pad := NewMemoryStore().Pad("inv")
	require.NoError(t, pad.WriteSection(ctx, ProblemDescription, json.RawMessage(`[1,2]`)))

	_, ok, err := Load[note](ctx, pad, ProblemDescription)
	assert.False(t, ok)
	assert.ErrorContains(t, err, "decode PROBLEM_DESCRIPTION")
}

type fakeRow struct {
	payload []byte
	err     error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*[]byte)) = r.payload
	return nil
}

type fakeQuerier struct {
	rows    map[string][]byte
	execs   []string
	execErr error
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	switch len(args) {
	case 3:
		f.rows[args[0].(string)+"/"+args[1].(string)] = args[2].([]byte)
	case 2:
		delete(f.rows, args[0].(string)+"/"+args[1].(string))
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	payload, ok := f.rows[args[0].(string)+"/"+args[1].(string)]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{payload: payload}
}

func TestPostgresStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	db := &fakeQuerier{rows: map[string][]byte{}}
	store := newPostgresStore(db, zaptest.NewLogger(t))
	require.NoError(t, store.EnsureSchema(ctx))

	pad := store.Pad("inv-9")
	_, ok, err := pad.ReadSection(ctx, FinalDiagnosis)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Save(ctx, pad, FinalDiagnosis, note{Title: "done"}))
	got, ok, err := Load[note](ctx, pad, FinalDiagnosis)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", got.Title)
	assert.Len(t, db.execs, 2)

	require.NoError(t, pad.DeleteSection(ctx, FinalDiagnosis))
	_, ok, err = pad.ReadSection(ctx, FinalDiagnosis)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, db.execs[2], "DELETE FROM investigation_sections")
}

func TestPostgresStoreWrapsErrors(t *testing.T) {
	boom := errors.New("connection reset")
	store := newPostgresStore(&fakeQuerier{rows: map[string][]byte{}, execErr: boom}, nil)

	err := store.Pad("inv").WriteSection(context.Background(), DataCollected, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "DATA_COLLECTED")
}
