package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/andresmejia3/facecache/internal/types"
	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestStoreIntegration runs a full integration test against a real Postgres container.
// It requires Docker to be running.
func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	// We wrap this in a function to recover from panics inside testcontainers (e.g. socket not found)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		_, err = testcontainers.NewDockerClientWithOpts(ctx)
		return
	}()
	if err != nil {
		t.Fatalf("Docker not available, cannot run integration test: %v", err)
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("facecache_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("Failed to terminate container: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	// Initialize Store (runs migrations)
	s, err := New(ctx, connStr)
	if err != nil {
		t.Fatalf("Failed to connect to store: %v", err)
	}
	defer s.Close(ctx)

	// --- Test Scenarios ---

	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/video.mp4"); err != nil {
		t.Fatalf("EnsureVideoMetadata failed: %v", err)
	}
	// Re-registering is idempotent
	if err := s.EnsureVideoMetadata(ctx, "vid_123", "/tmp/moved.mp4"); err != nil {
		t.Fatalf("EnsureVideoMetadata (again) failed: %v", err)
	}

	sessionID, err := s.StartSession(ctx, "vid_123")
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if sessionID == uuid.Nil {
		t.Fatal("Expected a session ID")
	}

	frame10 := []types.DetectedFace{
		{IsNew: true, Box: types.Box{X1: 10, Y1: 10, X2: 60, Y2: 60}},
		{IsNew: true, Box: types.Box{X1: 100, Y1: 100, X2: 150, Y2: 150}},
	}
	frame20 := []types.DetectedFace{
		{IsNew: false, Box: types.Box{X1: 12, Y1: 11, X2: 62, Y2: 61}},
	}
	if err := s.InsertFaces(ctx, sessionID, 20, frame20); err != nil {
		t.Fatalf("InsertFaces failed: %v", err)
	}
	if err := s.InsertFaces(ctx, sessionID, 10, frame10); err != nil {
		t.Fatalf("InsertFaces failed: %v", err)
	}
	if err := s.InsertFaces(ctx, sessionID, 30, nil); err != nil {
		t.Fatalf("InsertFaces with no faces failed: %v", err)
	}

	events, err := s.SessionFaces(ctx, sessionID)
	if err != nil {
		t.Fatalf("SessionFaces failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	if events[0].FrameIndex != 10 || events[0].Face != frame10[0] {
		t.Errorf("Expected first event from frame 10, got %+v", events[0])
	}
	if events[2].FrameIndex != 20 || events[2].Face.IsNew {
		t.Errorf("Expected known face in frame 20, got %+v", events[2])
	}

	stats := SessionStats{Frames: 3, Faces: 3, NewFaces: 2, CacheSize: 2}
	if err := s.FinishSession(ctx, sessionID, stats); err != nil {
		t.Fatalf("FinishSession failed: %v", err)
	}
	if err := s.FinishSession(ctx, uuid.New(), stats); err == nil {
		t.Error("Expected error finishing an unknown session")
	}

	sessions, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(sessions))
	}
	got := sessions[0]
	if got.ID != sessionID || got.Path != "/tmp/moved.mp4" || got.FinishedAt == nil {
		t.Errorf("Unexpected session: %+v", got)
	}
	if got.NewFaces != 2 || got.CacheSize != 2 || got.Faces != 3 {
		t.Errorf("Unexpected session totals: %+v", got)
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if _, err := s.ListSessions(ctx); err == nil {
		t.Error("Expected ListSessions to fail after tables were dropped")
	}
}

type noopLogger struct{}

func (n noopLogger) Printf(format string, v ...interface{}) {}
