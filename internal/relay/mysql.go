package relay

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/zeusync/sheetsync/internal/core/sequencer"
)

const mysqlDuplicateEntry = 1062

// SnapshotSchema creates the table used by MySQLSnapshots.
const SnapshotSchema = `CREATE TABLE IF NOT EXISTS document_snapshots (
	id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
	document_id VARCHAR(191) NOT NULL,
	revision_id VARCHAR(191) NOT NULL,
	data        LONGBLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY document_revision (document_id, revision_id)
)`

// MySQLSnapshots stores every snapshot of a document. The latest one wins.
type MySQLSnapshots struct {
	db *sql.DB
}

var _ SnapshotStore = (*MySQLSnapshots)(nil)

func NewMySQLSnapshots(db *sql.DB) *MySQLSnapshots {
	return &MySQLSnapshots{db: db}
}

// Migrate creates the snapshot table when missing.
func (s *MySQLSnapshots) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, SnapshotSchema)
	return err
}

// SaveSnapshot is idempotent: saving the same revision twice is a no-op.
func (s *MySQLSnapshots) SaveSnapshot(ctx context.Context, documentID string, snapshot sequencer.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO document_snapshots (document_id, revision_id, data)
		VALUES (?, ?, ?)`,
		documentID,
		snapshot.RevisionID,
		[]byte(snapshot.Data),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry {
			return nil
		}
		return err
	}
	return nil
}

func (s *MySQLSnapshots) LoadSnapshot(ctx context.Context, documentID string) (sequencer.Snapshot, bool, error) {
	var snapshot sequencer.Snapshot
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT revision_id, data FROM document_snapshots
		WHERE document_id = ? ORDER BY id DESC LIMIT 1`,
		documentID,
	).Scan(&snapshot.RevisionID, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return sequencer.Snapshot{}, false, nil
	}
	if err != nil {
		return sequencer.Snapshot{}, false, err
	}
	snapshot.Data = data
	return snapshot, true, nil
}
