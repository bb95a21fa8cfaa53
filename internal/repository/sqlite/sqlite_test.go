package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/model"
	"github.com/sakif/fragments/internal/repository"
)

// newTestDB opens a private in-memory database closed with the test.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestFragment(t *testing.T, db *DB, title, tech string) *model.Fragment {
	t.Helper()
	f := &model.Fragment{Title: title, Code: "ctx.fillRect(0, 0, 1, 1)", Technology: tech, PasswordHash: "hash"}
	if err := db.Create(context.Background(), f); err != nil {
		t.Fatalf("failed to create test fragment: %v", err)
	}
	return f
}

func TestCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	original := createTestFragment(t, db, "Tide", "canvas")

	if original.ID == "" || original.CreatedAt.IsZero() {
		t.Fatalf("Create() did not fill ID and timestamps: %+v", original)
	}

	got, err := db.GetByID(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Title != "Tide" || got.Technology != "canvas" || got.PasswordHash != "hash" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.ResonanceCount != 0 || got.WhisperCount != 0 {
		t.Errorf("new fragment has counts %d/%d", got.ResonanceCount, got.WhisperCount)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := db.GetByID(context.Background(), "missing")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	db := newTestDB(t)
	for i := range 5 {
		tech := "canvas"
		if i%2 == 1 {
			tech = "three"
		}
		createTestFragment(t, db, fmt.Sprintf("f%d", i), tech)
	}

	tests := []struct {
		name   string
		opts   repository.ListOptions
		titles []string
	}{
		{"newest first", repository.ListOptions{}, []string{"f4", "f3", "f2", "f1", "f0"}},
		{"paged", repository.ListOptions{Limit: 2, Offset: 1}, []string{"f3", "f2"}},
		{"by technology", repository.ListOptions{Technology: "three"}, []string{"f3", "f1"}},
		{"negative offset", repository.ListOptions{Limit: 1, Offset: -3}, []string{"f4"}},
		{"past the end", repository.ListOptions{Offset: 10}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.List(context.Background(), tt.opts)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			var titles []string
			for _, f := range got {
				titles = append(titles, f.Title)
			}
			if fmt.Sprint(titles) != fmt.Sprint(tt.titles) {
				t.Errorf("List() titles = %v, want %v", titles, tt.titles)
			}
		})
	}
}

func TestSetThumbnail(t *testing.T) {
	db := newTestDB(t)
	f := createTestFragment(t, db, "Tide", "canvas")

	if err := db.SetThumbnail(context.Background(), f.ID, "/thumbnails/x.png"); err != nil {
		t.Fatalf("SetThumbnail() error = %v", err)
	}
	got, _ := db.GetByID(context.Background(), f.ID)
	if got.ThumbnailURL != "/thumbnails/x.png" {
		t.Errorf("ThumbnailURL = %q", got.ThumbnailURL)
	}

	if err := db.SetThumbnail(context.Background(), "missing", "x"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetThumbnail(missing) error = %v, want ErrNotFound", err)
	}
}

func TestResonance(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := createTestFragment(t, db, "Tide", "canvas")

	if n, err := db.Resonate(ctx, f.ID, "visitor-a"); err != nil || n != 1 {
		t.Fatalf("Resonate(a) = %d, %v", n, err)
	}
	if n, err := db.Resonate(ctx, f.ID, "visitor-b"); err != nil || n != 2 {
		t.Fatalf("Resonate(b) = %d, %v", n, err)
	}
	if _, err := db.Resonate(ctx, f.ID, "visitor-a"); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("repeated Resonate() error = %v, want ErrConflict", err)
	}
	if n, err := db.Unresonate(ctx, f.ID, "visitor-a"); err != nil || n != 1 {
		t.Fatalf("Unresonate(a) = %d, %v", n, err)
	}
	if _, err := db.Unresonate(ctx, f.ID, "visitor-a"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("repeated Unresonate() error = %v, want ErrNotFound", err)
	}
	if _, err := db.Resonate(ctx, "missing", "visitor-a"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Resonate(missing) error = %v, want ErrNotFound", err)
	}

	got, _ := db.GetByID(ctx, f.ID)
	if got.ResonanceCount != 1 {
		t.Errorf("ResonanceCount = %d, want 1", got.ResonanceCount)
	}
}

func TestWhispers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := createTestFragment(t, db, "Tide", "canvas")

	for _, content := range []string{"first", "second", "third"} {
		w := &model.Whisper{FragmentID: f.ID, Author: "ana", Content: content}
		if err := db.CreateWhisper(ctx, w); err != nil {
			t.Fatalf("CreateWhisper() error = %v", err)
		}
	}

	got, err := db.ListWhispers(ctx, f.ID, repository.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListWhispers() error = %v", err)
	}
	if len(got) != 2 || got[0].Content != "first" || got[1].Content != "second" {
		t.Errorf("ListWhispers() = %+v", got)
	}

	stored, _ := db.GetByID(ctx, f.ID)
	if stored.WhisperCount != 3 {
		t.Errorf("WhisperCount = %d, want 3", stored.WhisperCount)
	}

	err = db.CreateWhisper(ctx, &model.Whisper{FragmentID: "missing", Content: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CreateWhisper(missing) error = %v, want ErrNotFound", err)
	}
}

func TestDelete_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	f := createTestFragment(t, db, "Tide", "canvas")
	if _, err := db.Resonate(ctx, f.ID, "visitor-a"); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateWhisper(ctx, &model.Whisper{FragmentID: f.ID, Content: "hi"}); err != nil {
		t.Fatal(err)
	}

	if err := db.Delete(ctx, f.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := db.Delete(ctx, f.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM resonances`).Scan(&n); err != nil || n != 0 {
		t.Errorf("resonances left = %d, %v", n, err)
	}
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM whispers`).Scan(&n); err != nil || n != 0 {
		t.Errorf("whispers left = %d, %v", n, err)
	}
}
