package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relctl/internal/release"
	"relctl/internal/release/recordstoretest"
	"relctl/internal/store/sqlite"
)

func TestRecordStore(t *testing.T) {
	recordstoretest.Run(t, func(t *testing.T) release.RecordStore {
		db := sqlite.OpenTestDB(t)
		return &sqlite.RecordStore{DB: db}
	})
}

func TestRecordStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relctl.db")
	ctx := context.Background()

	db, err := sqlite.Open(path)
	require.NoError(t, err)
	store := &sqlite.RecordStore{DB: db}

	rec := release.Record{
		ID:          "r1",
		Namespace:   "shop-staging",
		Environment: release.Environment{Kind: release.EnvStaging},
		Spec:        release.Spec{App: "shop", DependencyOrder: []string{"backend"}},
		State:       release.StateSucceeded,
		Outcome:     release.OutcomeSucceeded,
		StartedAt:   time.Now().UTC(),
		FinishedAt:  time.Now().UTC(),
	}
	pending := rec
	pending.State, pending.Outcome, pending.FinishedAt = release.StatePending, "", time.Time{}
	_, err = store.Begin(ctx, pending)
	require.NoError(t, err)
	require.NoError(t, store.Promote(ctx, rec))
	require.NoError(t, db.Close())

	db, err = sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()
	store = &sqlite.RecordStore{DB: db}

	cur, err := store.Current(ctx, "shop-staging")
	require.NoError(t, err)
	assert.Equal(t, "r1", cur.ID)
	assert.Equal(t, []string{"backend"}, cur.Spec.DependencyOrder)
	assert.Equal(t, release.OutcomeSucceeded, cur.Outcome)
}
