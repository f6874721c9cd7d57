package db

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/lmb-freiburg/irocs/internal/monitoring"
	"github.com/lmb-freiburg/irocs/internal/shell"
)

// ErrModelNotFound is returned when no model has the requested ID.
var ErrModelNotFound = errors.New("model not found")

// ModelRecord describes a stored model. The fitted transform itself lives in
// the snapshot blob and is only decoded by LoadModel.
type ModelRecord struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	SourcePath       string  `json:"source_path,omitempty"`
	PointCount       int     `json:"point_count"`
	CreatedUnixNanos int64   `json:"created_unix_nanos"`
	ControlPoints    int     `json:"control_points"`
	TailCount        int     `json:"tail_count"`
	TotalLength      float64 `json:"total_length"`
	Generation       uint64  `json:"generation"`
	ParamsJSON       string  `json:"params_json"`
}

// Created returns the creation time of the record.
func (r *ModelRecord) Created() time.Time {
	return time.Unix(0, r.CreatedUnixNanos)
}

// encodeSnapshot serialises a snapshot as gzip-compressed gob.
func encodeSnapshot(s shell.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(zw).Encode(s); err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(blob []byte) (shell.Snapshot, error) {
	var s shell.Snapshot
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return s, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	defer zr.Close()
	if err := gob.NewDecoder(io.LimitReader(zr, 256<<20)).Decode(&s); err != nil {
		return s, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// SaveModel stores a fitted transform. The ID, creation time and the
// summary columns of rec are filled in from the transform.
func (db *DB) SaveModel(ctx context.Context, rec *ModelRecord, t *shell.Transform) error {
	snap, err := t.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot model: %w", err)
	}
	blob, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	rec.ID = uuid.NewString()
	rec.CreatedUnixNanos = db.now().UnixNano()
	rec.ControlPoints = t.Len()
	rec.TailCount = t.TailCount()
	rec.TotalLength = t.TotalLength()
	rec.Generation = t.Generation()
	if rec.ParamsJSON == "" {
		rec.ParamsJSON = "{}"
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO shell_models (
			model_id, name, source_path, point_count, created_unix_nanos,
			control_points, tail_count, total_length, generation,
			params_json, snapshot_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.SourcePath, rec.PointCount, rec.CreatedUnixNanos,
		rec.ControlPoints, rec.TailCount, rec.TotalLength, int64(rec.Generation),
		rec.ParamsJSON, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert model: %w", err)
	}

	monitoring.Logf("[db] saved model %s (%s): %d control points, %d bytes", rec.ID, rec.Name, rec.ControlPoints, len(blob))
	return nil
}

const modelColumns = `model_id, name, source_path, point_count, created_unix_nanos,
	control_points, tail_count, total_length, generation, params_json`

type scanner interface {
	Scan(dest ...any) error
}

func scanModel(row scanner, extra ...any) (*ModelRecord, error) {
	var (
		rec        ModelRecord
		generation int64
	)
	dest := []any{
		&rec.ID, &rec.Name, &rec.SourcePath, &rec.PointCount, &rec.CreatedUnixNanos,
		&rec.ControlPoints, &rec.TailCount, &rec.TotalLength, &generation, &rec.ParamsJSON,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	rec.Generation = uint64(generation)
	return &rec, nil
}

// LoadModel reconstructs a stored transform. Frames are recomputed from
// the stored positions.
func (db *DB) LoadModel(ctx context.Context, id string) (*shell.Transform, *ModelRecord, error) {
	var blob []byte
	row := db.QueryRowContext(ctx, `SELECT `+modelColumns+`, snapshot_blob FROM shell_models WHERE model_id = ?`, id)
	rec, err := scanModel(row, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query model %s: %w", id, err)
	}

	snap, err := decodeSnapshot(blob)
	if err != nil {
		return nil, nil, fmt.Errorf("model %s: %w", id, err)
	}
	t, err := shell.FromSnapshot(snap)
	if err != nil {
		return nil, nil, fmt.Errorf("model %s: %w", id, err)
	}
	return t, rec, nil
}

// ListModels returns up to limit records, newest first. A limit of zero or
// less returns every record.
func (db *DB) ListModels(ctx context.Context, limit int) ([]ModelRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `SELECT `+modelColumns+` FROM shell_models
		ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var models []ModelRecord
	for rows.Next() {
		rec, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		models = append(models, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return models, nil
}

// DeleteModel removes a stored model.
func (db *DB) DeleteModel(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM shell_models WHERE model_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete model %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	monitoring.Logf("[db] deleted model %s", id)
	return nil
}
