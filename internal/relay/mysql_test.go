package relay

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/sheetsync/internal/core/sequencer"
)

func TestMySQLSnapshots(t *testing.T) {
	dsn := os.Getenv("SHEETSYNC_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("skip: SHEETSYNC_TEST_MYSQL_DSN is not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	defer db.Close()
	if err = db.Ping(); err != nil {
		t.Skipf("skip: mysql not available: %v", err)
	}

	ctx := context.Background()
	store := NewMySQLSnapshots(db)
	require.NoError(t, store.Migrate(ctx))
	doc := uuid.NewString()

	_, found, err := store.LoadSnapshot(ctx, doc)
	require.NoError(t, err)
	assert.False(t, found)

	first := sequencer.Snapshot{RevisionID: "s1", Data: []byte(`{"v":1}`)}
	require.NoError(t, store.SaveSnapshot(ctx, doc, first))
	require.NoError(t, store.SaveSnapshot(ctx, doc, first))
	require.NoError(t, store.SaveSnapshot(ctx, doc, sequencer.Snapshot{RevisionID: "s2", Data: []byte(`{"v":2}`)}))

	latest, found, err := store.LoadSnapshot(ctx, doc)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "s2", latest.RevisionID)
	assert.JSONEq(t, `{"v":2}`, string(latest.Data))
}
