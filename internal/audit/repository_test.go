package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/nvdisplay-core/internal/display"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/database"
	"github.com/nerrad567/nvdisplay-core/migrations"
)

func openRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true, BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(context.Background(), migrations.FS))
	return NewSQLiteRepository(db.DB)
}

func TestRepository_CreateAndList(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	for i := range 5 {
		v := int64(i * 100)
		require.NoError(t, repo.Create(ctx, &Entry{
			Action:    ActionSet,
			DisplayID: fmt.Sprintf("0:%d", i%2),
			Attribute: "vibrance",
			Value:     &v,
			Outcome:   OutcomeOK,
			Source:    SourceCLI,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, defaultLimit, res.Limit)
	require.Len(t, res.Entries, 5)
	assert.Equal(t, int64(400), *res.Entries[0].Value, "newest first")
	assert.True(t, res.Entries[0].CreatedAt.Equal(base.Add(4*time.Second)))
	assert.Regexp(t, `^aud-[0-9a-f]{8}$`, res.Entries[0].ID)

	res, err = repo.List(ctx, Filter{DisplayID: "0:1"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)

	res, err = repo.List(ctx, Filter{Since: base.Add(3 * time.Second), Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Entries, 1)

	res, err = repo.List(ctx, Filter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Equal(t, maxLimit, res.Limit)
	assert.Equal(t, 0, res.Offset)
}

func TestRepository_SubsecondOrdering(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	base := time.Date(2026, 10, 17, 12, 0, 5, 0, time.UTC)

	for _, off := range []time.Duration{0, 100 * time.Millisecond, 120 * time.Millisecond} {
		require.NoError(t, repo.Create(ctx, &Entry{
			Action: ActionHotplug, Outcome: OutcomeOK, Source: SourceSystem, CreatedAt: base.Add(off),
		}))
	}

	res, err := repo.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Entries, 3)
	assert.True(t, res.Entries[0].CreatedAt.Equal(base.Add(120*time.Millisecond)))
	assert.True(t, res.Entries[2].CreatedAt.Equal(base))
}

func TestRepository_CreateRequiresFields(t *testing.T) {
	repo := openRepo(t)
	assert.Error(t, repo.Create(context.Background(), &Entry{Action: ActionSet}))
}

func TestRecorder_RecordSet(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	rec := NewRecorder(repo)
	id := display.ID{Connector: 1}

	prev := display.IntValue(display.KindVibrance, 0)
	require.NoError(t, rec.RecordSet(ctx, SetAttempt{
		Display:  id,
		Kind:     display.KindVibrance,
		Value:    display.IntValue(display.KindVibrance, 512),
		Previous: &prev,
		Backend:  "nvkms",
		Source:   SourceAPI,
		Actor:    "dashboard",
	}))

	rejected := &display.InvalidValueError{
		Display: id, Kind: display.KindVibrance, Value: 2000, Range: display.NewRange(-1024, 1023, 0),
	}
	require.NoError(t, rec.RecordSet(ctx, SetAttempt{
		Display: id,
		Kind:    display.KindVibrance,
		Value:   display.IntValue(display.KindVibrance, 2000),
		Err:     fmt.Errorf("setting vibrance: %w", rejected),
	}))

	res, err := repo.List(ctx, Filter{Outcome: OutcomeRejected})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	e := res.Entries[0]
	assert.Equal(t, "invalid_attribute_value", e.ErrorCode)
	assert.Equal(t, "-1024..=1023", e.Details["legal"])
	assert.Equal(t, SourceSystem, e.Source)
	assert.Nil(t, e.Previous)

	res, err = repo.List(ctx, Filter{Outcome: OutcomeOK})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	e = res.Entries[0]
	assert.Equal(t, "0:1", e.DisplayID)
	assert.Equal(t, int64(512), *e.Value)
	assert.Equal(t, int64(0), *e.Previous)
	assert.Equal(t, "dashboard", e.Actor)
}

func TestRecorder_Events(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	rec := NewRecorder(repo)

	require.NoError(t, rec.RecordFallback(ctx, "nvkms", "nvidia-settings", display.ErrPermissionDenied))
	require.NoError(t, rec.RecordHotplug(ctx, "unavailable", 0, "device_absent"))

	res, err := repo.List(ctx, Filter{Action: ActionFallback})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "permission_denied", res.Entries[0].ErrorCode)
	assert.Equal(t, "nvidia-settings", res.Entries[0].Backend)

	res, err = repo.List(ctx, Filter{Action: ActionHotplug})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "device_absent", res.Entries[0].Details["reason"])
}

func TestRecorder_Disabled(t *testing.T) {
	var nilRec *Recorder
	assert.False(t, nilRec.Enabled())
	assert.NoError(t, nilRec.RecordHotplug(context.Background(), "available", 1, ""))

	rec := NewRecorder(nil)
	assert.False(t, rec.Enabled())
	assert.NoError(t, rec.RecordSet(context.Background(), SetAttempt{Err: display.ErrProtocol}))
}
