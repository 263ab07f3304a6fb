package store

import (
	"context"
	"fmt"
	"time"

	"github.com/andresmejia3/facecache/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store records scan sessions and the per-frame verdicts they produced.
// Signatures are never persisted; the identity cache lives only in memory.
type Store struct {
	conn *pgx.Conn
}

// Session summarises one scan of a video.
type Session struct {
	ID         uuid.UUID
	VideoID    string
	Path       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Frames     int
	Faces      int
	NewFaces   int
	CacheSize  int
}

// SessionStats are the totals written when a session finishes.
type SessionStats struct {
	Frames    int
	Faces     int
	NewFaces  int
	CacheSize int
}

// FaceEvent is one recorded verdict.
type FaceEvent struct {
	FrameIndex int
	Face       types.DetectedFace
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS video_metadata (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			indexed_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS scan_sessions (
			id UUID PRIMARY KEY,
			video_id TEXT NOT NULL REFERENCES video_metadata(id) ON DELETE CASCADE,
			started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ,
			frames INT NOT NULL DEFAULT 0,
			faces INT NOT NULL DEFAULT 0,
			new_faces INT NOT NULL DEFAULT 0,
			cache_size INT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS face_events (
			id BIGSERIAL PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES scan_sessions(id) ON DELETE CASCADE,
			frame_index INT NOT NULL,
			x1 INT NOT NULL,
			y1 INT NOT NULL,
			x2 INT NOT NULL,
			y2 INT NOT NULL,
			is_new BOOLEAN NOT NULL
		);
		CREATE INDEX IF NOT EXISTS face_events_session_frame_idx ON face_events (session_id, frame_index);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// EnsureVideoMetadata registers the video in the database. If it exists, it updates the timestamp.
func (s *Store) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO video_metadata (id, path, indexed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET indexed_at = NOW(), path = EXCLUDED.path
	`, videoID, path)
	return err
}

// StartSession opens a new scan session for a registered video.
func (s *Store) StartSession(ctx context.Context, videoID string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.conn.Exec(ctx, "INSERT INTO scan_sessions (id, video_id) VALUES ($1, $2)", id, videoID)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// InsertFaces records the verdicts of one frame. Empty slices are a no-op.
func (s *Store) InsertFaces(ctx context.Context, sessionID uuid.UUID, frameIndex int, faces []types.DetectedFace) error {
	if len(faces) == 0 {
		return nil
	}
	rows := make([][]any, len(faces))
	for i, f := range faces {
		rows[i] = []any{sessionID, frameIndex, f.Box.X1, f.Box.Y1, f.Box.X2, f.Box.Y2, f.IsNew}
	}
	_, err := s.conn.CopyFrom(ctx,
		pgx.Identifier{"face_events"},
		[]string{"session_id", "frame_index", "x1", "y1", "x2", "y2", "is_new"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// FinishSession stamps the end time and totals of a session.
func (s *Store) FinishSession(ctx context.Context, sessionID uuid.UUID, stats SessionStats) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE scan_sessions
		SET finished_at = NOW(), frames = $2, faces = $3, new_faces = $4, cache_size = $5
		WHERE id = $1
	`, sessionID, stats.Frames, stats.Faces, stats.NewFaces, stats.CacheSize)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// ListSessions returns every session, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT s.id, s.video_id, v.path, s.started_at, s.finished_at, s.frames, s.faces, s.new_faces, s.cache_size
		FROM scan_sessions s
		JOIN video_metadata v ON v.id = s.video_id
		ORDER BY s.started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.VideoID, &ss.Path, &ss.StartedAt, &ss.FinishedAt, &ss.Frames, &ss.Faces, &ss.NewFaces, &ss.CacheSize); err != nil {
			return nil, err
		}
		sessions = append(sessions, ss)
	}
	return sessions, rows.Err()
}

// SessionFaces returns the recorded verdicts of a session in frame order.
func (s *Store) SessionFaces(ctx context.Context, sessionID uuid.UUID) ([]FaceEvent, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT frame_index, x1, y1, x2, y2, is_new
		FROM face_events
		WHERE session_id = $1
		ORDER BY frame_index, id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []FaceEvent
	for rows.Next() {
		var e FaceEvent
		b := &e.Face.Box
		if err := rows.Scan(&e.FrameIndex, &b.X1, &b.Y1, &b.X2, &b.Y2, &e.Face.IsNew); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS face_events CASCADE;
		DROP TABLE IF EXISTS scan_sessions CASCADE;
		DROP TABLE IF EXISTS video_metadata CASCADE;
	`)
	return err
}
