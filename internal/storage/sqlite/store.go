package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/capability-pipeline/internal/geometry"
	"github.com/banshee-data/capability-pipeline/internal/inference"
	"github.com/banshee-data/capability-pipeline/internal/inference/tracking"
	"github.com/banshee-data/capability-pipeline/internal/monitoring"
)

var logf = monitoring.Component("Store")

// Store persists results and pruned tracks. It implements
// pipeline.PersistenceSink.
type Store struct {
	db *sql.DB
}

// StoredResult is one persisted Result row.
type StoredResult struct {
	ResultID    string        `json:"result_id"`
	RequestID   string        `json:"request_id"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	ObjectCount int           `json:"object_count"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// StoredTrack is one persisted expired track.
type StoredTrack struct {
	TrackID   string            `json:"track_id"`
	SessionID string            `json:"session_id"`
	Label     string            `json:"label"`
	Hits      int               `json:"hits"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
	Last      geometry.Point    `json:"last"`
	History   []tracking.Sample `json:"history"`
	PrunedAt  time.Time         `json:"pruned_at"`
}

// Open opens (creating if needed) the database at path. Pragmas are passed
// in the DSN so every pooled connection gets them. Call MigrateUp before use.
func Open(path string) (*Store, error) {
	pragmas := []string{
		"journal_mode(WAL)",
		"busy_timeout(5000)",
		"synchronous(NORMAL)",
		"temp_store(MEMORY)",
		"foreign_keys(1)",
	}
	dsn := path + "?_pragma=" + strings.Join(pragmas, "&_pragma=")

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenAndMigrate opens path and brings the schema up to date.
func OpenAndMigrate(path string) (*Store, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := s.MigrateUp(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordResult stores res and its detections in one transaction.
func (s *Store) RecordResult(res inference.Result) error {
	resultID := uuid.New().String()
	var errText interface{}
	if res.Err != nil {
		errText = res.Err.Error()
	}
	recordedAt := res.Timestamp
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`
			INSERT INTO inference_results (
				result_id, request_id, success, error, duration_ns, object_count, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			resultID, res.RequestID, res.Success, errText,
			res.Duration.Nanoseconds(), len(res.Objects), recordedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}

		stmt, err := tx.Prepare(`
			INSERT INTO inference_detections (
				result_id, ordinal, label, confidence,
				box_x, box_y, box_width, box_height,
				tracking_id, tracking_state
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare detection insert: %w", err)
		}
		defer stmt.Close()

		for i, obj := range res.Objects {
			box := obj.BoundingBox
			if _, err := stmt.Exec(
				resultID, i, obj.Label, obj.Confidence,
				box.X, box.Y, box.Width, box.Height,
				nullString(obj.TrackingID), nullString(string(obj.TrackingState)),
			); err != nil {
				return fmt.Errorf("insert detection %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// RecordPrunedTracks stores tracks removed by the tracker. A track already
// stored is replaced.
func (s *Store) RecordPrunedTracks(tracks []tracking.Track) error {
	if len(tracks) == 0 {
		return nil
	}
	prunedAt := time.Now().UnixNano()

	return retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer tx.Rollback()

		for _, tr := range tracks {
			history, err := json.Marshal(tr.History)
			if err != nil {
				return fmt.Errorf("marshal history for %s: %w", tr.ID, err)
			}
			pos := tr.Position()
			if _, err := tx.Exec(`
				INSERT OR REPLACE INTO pruned_tracks (
					track_id, session_id, label, hits, first_seen, last_seen,
					last_x, last_y, history_json, pruned_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				tr.ID, tr.SessionID, tr.Label, tr.Hits,
				tr.FirstSeen.UnixNano(), tr.LastSeen.UnixNano(),
				pos.X, pos.Y, string(history), prunedAt,
			); err != nil {
				return fmt.Errorf("insert track %s: %w", tr.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logf("stored %d pruned tracks", len(tracks))
		return nil
	})
}

// ListResults returns the most recent results, newest first. limit <= 0
// returns all rows.
func (s *Store) ListResults(limit int) ([]StoredResult, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT result_id, request_id, success, error, duration_ns, object_count, recorded_at
		FROM inference_results
		ORDER BY recorded_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []StoredResult
	for rows.Next() {
		var (
			r          StoredResult
			errText    sql.NullString
			durationNs int64
			recordedNs int64
		)
		if err := rows.Scan(&r.ResultID, &r.RequestID, &r.Success, &errText, &durationNs, &r.ObjectCount, &recordedNs); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Error = errText.String
		r.Duration = time.Duration(durationNs)
		r.RecordedAt = time.Unix(0, recordedNs)
		out = append(out, r)
	}
	return out, rows.Err()
}

// DetectionsFor returns the stored detections of every result recorded for
// requestID, oldest result first and in original order within a result.
func (s *Store) DetectionsFor(requestID string) ([]inference.DetectedObject, error) {
	rows, err := s.db.Query(`
		SELECT d.label, d.confidence, d.box_x, d.box_y, d.box_width, d.box_height,
		       d.tracking_id, d.tracking_state
		FROM inference_detections d
		JOIN inference_results r ON r.result_id = d.result_id
		WHERE r.request_id = ?
		ORDER BY r.recorded_at, r.rowid, d.ordinal`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var out []inference.DetectedObject
	for rows.Next() {
		var (
			obj           inference.DetectedObject
			trackingID    sql.NullString
			trackingState sql.NullString
		)
		box := &obj.BoundingBox
		if err := rows.Scan(&obj.Label, &obj.Confidence, &box.X, &box.Y, &box.Width, &box.Height, &trackingID, &trackingState); err != nil {
			return nil, fmt.Errorf("scan detection: %w", err)
		}
		obj.TrackingID = trackingID.String
		obj.TrackingState = inference.TrackingState(trackingState.String)
		out = append(out, obj)
	}
	return out, rows.Err()
}

// PrunedTracks returns stored tracks for sessionID ordered by last sighting.
func (s *Store) PrunedTracks(sessionID string) ([]StoredTrack, error) {
	rows, err := s.db.Query(`
		SELECT track_id, session_id, label, hits, first_seen, last_seen,
		       last_x, last_y, history_json, pruned_at
		FROM pruned_tracks
		WHERE session_id = ?
		ORDER BY last_seen, track_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query pruned tracks: %w", err)
	}
	defer rows.Close()

	var out []StoredTrack
	for rows.Next() {
		var (
			t                         StoredTrack
			firstNs, lastNs, prunedNs int64
			history                   string
		)
		if err := rows.Scan(&t.TrackID, &t.SessionID, &t.Label, &t.Hits, &firstNs, &lastNs,
			&t.Last.X, &t.Last.Y, &history, &prunedNs); err != nil {
			return nil, fmt.Errorf("scan track: %w", err)
		}
		if err := json.Unmarshal([]byte(history), &t.History); err != nil {
			return nil, fmt.Errorf("decode history for %s: %w", t.TrackID, err)
		}
		t.FirstSeen = time.Unix(0, firstNs)
		t.LastSeen = time.Unix(0, lastNs)
		t.PrunedAt = time.Unix(0, prunedNs)
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
