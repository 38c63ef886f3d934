package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/huelink/internal/db"
	"github.com/dokzlo13/huelink/internal/hue"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return New(database.DB)
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		now := current
		current = current.Add(time.Second)
		return now
	}
}

var _ hue.CommitRecorder = (*Ledger)(nil)

func TestLedger_RecordAndRecent(t *testing.T) {
	l := newTestLedger(t)
	l.now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ctx := context.Background()

	require.NoError(t, l.RecordCommit(ctx, hue.CommitRecord{
		Bridge: "10.0.0.2", LightID: 1, LightName: "Lamp",
		Changes: hue.State{"on": true}, Success: true,
	}))
	require.NoError(t, l.RecordCommit(ctx, hue.CommitRecord{
		Bridge: "10.0.0.2", LightID: 2, LightName: "Desk",
		Changes: hue.State{"bri": float64(254), "on": true},
		Errors: []*hue.BridgeError{{
			Type: hue.ErrorTypeDeviceIsOff, Address: "/lights/2/state/bri", Description: "Device is set to off.",
		}},
	}))

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	newest := entries[0]
	assert.Equal(t, 2, newest.LightID)
	assert.Equal(t, "Desk", newest.LightName)
	assert.Equal(t, "10.0.0.2", newest.Bridge)
	assert.False(t, newest.Success)
	assert.Equal(t, map[string]any{"bri": float64(254), "on": true}, newest.Changes)
	require.Len(t, newest.Errors, 1)
	assert.Equal(t, hue.ErrorTypeDeviceIsOff, newest.Errors[0].Type)
	assert.Equal(t, "/lights/2/state/bri", newest.Errors[0].Address)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC), newest.Timestamp)
	assert.NotEmpty(t, newest.ID)

	oldest := entries[1]
	assert.Equal(t, 1, oldest.LightID)
	assert.True(t, oldest.Success)
	assert.Empty(t, oldest.Errors)
	assert.NotEqual(t, newest.ID, oldest.ID)

	limited, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, newest.ID, limited[0].ID)
}

func TestLedger_ForLight(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, rec := range []hue.CommitRecord{
		{Bridge: "a", LightID: 1, Changes: hue.State{"on": true}, Success: true},
		{Bridge: "a", LightID: 2, Changes: hue.State{"on": true}, Success: true},
		{Bridge: "b", LightID: 1, Changes: hue.State{"on": false}, Success: true},
		{Bridge: "a", LightID: 1, Changes: hue.State{"on": false}, Success: true},
	} {
		require.NoError(t, l.RecordCommit(ctx, rec))
	}

	entries, err := l.ForLight(ctx, "a", 1, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, false, entries[0].Changes["on"])
	assert.Equal(t, true, entries[1].Changes["on"])

	none, err := l.ForLight(ctx, "a", 9, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLedger_DeleteOlderThan(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	l.now = func() time.Time { return start }
	require.NoError(t, l.RecordCommit(ctx, hue.CommitRecord{Bridge: "a", LightID: 1, Changes: hue.State{"on": true}}))
	l.now = func() time.Time { return start.Add(48 * time.Hour) }
	require.NoError(t, l.RecordCommit(ctx, hue.CommitRecord{Bridge: "a", LightID: 1, Changes: hue.State{"on": false}}))

	deleted, err := l.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	entries, err := l.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, false, entries[0].Changes["on"])
}

func TestLedger_NilChanges(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	require.NoError(t, l.RecordCommit(ctx, hue.CommitRecord{Bridge: "a", LightID: 3}))
	entries, err := l.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Changes)
}
