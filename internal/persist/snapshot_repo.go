package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/enginecore/internal/scene"
	"github.com/tidwall/gjson"
)

var (
	// ErrNoSnapshot is returned by Load when no snapshot exists for a key.
	ErrNoSnapshot = errors.New("persist: no snapshot")
	// ErrRecordVersion is returned for records written by an incompatible build.
	ErrRecordVersion = errors.New("persist: unsupported record version")
)

// SnapshotInfo describes a stored snapshot without its record.
type SnapshotInfo struct {
	Key       string
	Version   int
	NodeCount int
	SavedAt   time.Time
}

type SnapshotRepo struct {
	db      *DB
	history int // history rows kept per key; 0 keeps none
}

func NewSnapshotRepo(db *DB, history int) *SnapshotRepo {
	return &SnapshotRepo{db: db, history: history}
}

// Save upserts the record under key and appends it to the key's history,
// trimming history to the configured depth. All in one transaction.
func (r *SnapshotRepo) Save(ctx context.Context, key string, rec scene.SceneRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO scene_snapshots (key, version, node_count, record, saved_at)
			 VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (key) DO UPDATE
			 SET version = EXCLUDED.version, node_count = EXCLUDED.node_count,
			     record = EXCLUDED.record, saved_at = EXCLUDED.saved_at`,
			key, rec.Version, len(rec.Nodes), raw,
		); err != nil {
			return fmt.Errorf("snapshot upsert %s: %w", key, err)
		}
		if r.history <= 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO scene_snapshot_history (key, record) VALUES ($1, $2)`,
			key, raw,
		); err != nil {
			return fmt.Errorf("snapshot history %s: %w", key, err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM scene_snapshot_history
			 WHERE key = $1 AND id NOT IN (
			     SELECT id FROM scene_snapshot_history WHERE key = $1
			     ORDER BY saved_at DESC, id DESC LIMIT $2)`,
			key, r.history,
		); err != nil {
			return fmt.Errorf("snapshot trim %s: %w", key, err)
		}
		return nil
	})
}

// Load returns the latest record stored under key.
func (r *SnapshotRepo) Load(ctx context.Context, key string) (scene.SceneRecord, error) {
	var raw []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT record FROM scene_snapshots WHERE key = $1`, key,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return scene.SceneRecord{}, fmt.Errorf("load snapshot %s: %w", key, ErrNoSnapshot)
	}
	if err != nil {
		return scene.SceneRecord{}, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return decodeRecord(raw)
}

// History returns up to limit past records for key, newest first.
func (r *SnapshotRepo) History(ctx context.Context, key string, limit int) ([]scene.SceneRecord, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT record FROM scene_snapshot_history WHERE key = $1
		 ORDER BY saved_at DESC, id DESC LIMIT $2`, key, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot history %s: %w", key, err)
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("snapshot history %s: %w", key, err)
	}
	out := make([]scene.SceneRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// List describes every stored snapshot, most recent first.
func (r *SnapshotRepo) List(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT key, version, node_count, saved_at FROM scene_snapshots ORDER BY saved_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var s SnapshotInfo
		if err := rows.Scan(&s.Key, &s.Version, &s.NodeCount, &s.SavedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Delete removes a snapshot and its history.
func (r *SnapshotRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM scene_snapshot_history WHERE key = $1`, key)
	if err == nil {
		_, err = r.db.Pool.Exec(ctx, `DELETE FROM scene_snapshots WHERE key = $1`, key)
	}
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// decodeRecord checks the version field before decoding the whole record.
func decodeRecord(raw []byte) (scene.SceneRecord, error) {
	if v := gjson.GetBytes(raw, "version"); !v.Exists() || v.Int() != scene.RecordVersion {
		return scene.SceneRecord{}, fmt.Errorf("decode snapshot: %w: %s", ErrRecordVersion, v.Raw)
	}
	var rec scene.SceneRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return scene.SceneRecord{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return rec, nil
}
