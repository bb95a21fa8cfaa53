// Package service holds the gallery's business rules.
//
// LAYERS:
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, enforces rules, orchestrates
//	Repository (DB) → reads and writes rows
//
// Services take repository interfaces, never *sqlite.DB, so tests inject
// in-memory fakes and the CLI reuses the same rules without HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/fragments/internal/apperror"
	"github.com/sakif/fragments/internal/auth"
	"github.com/sakif/fragments/internal/classifier"
	"github.com/sakif/fragments/internal/executor"
	"github.com/sakif/fragments/internal/executor/harness"
	"github.com/sakif/fragments/internal/model"
	"github.com/sakif/fragments/internal/repository"
	"github.com/sakif/fragments/internal/storage"
)

const (
	MaxTitleLength   = 100
	MaxAuthorLength  = 50
	MaxCodeLength    = 100000 // ~100KB
	MaxWhisperLength = 500
	MaxVisitorLength = 64
	DefaultListLimit = 20
	MaxListLimit     = 100
	AnonymousAuthor  = "anonymous"
)

// ThumbnailSpec sizes the snapshot taken when a fragment is created.
type ThumbnailSpec struct {
	Width  int
	Height int
	Settle time.Duration
}

// FragmentDeps are the collaborators of a FragmentService. Renderer and
// Thumbnails may be nil, in which case no thumbnails are captured.
type FragmentDeps struct {
	Fragments  repository.FragmentRepository
	Resonances repository.ResonanceRepository
	Whispers   repository.WhisperRepository
	Hasher     *auth.Hasher
	Renderer   Renderer
	Thumbnails storage.ThumbnailStore
	Thumbnail  ThumbnailSpec
}

// FragmentService runs the gallery: submissions, deletion by password,
// resonances and whispers.
type FragmentService struct {
	fragments  repository.FragmentRepository
	resonances repository.ResonanceRepository
	whispers   repository.WhisperRepository
	hasher     *auth.Hasher
	renderer   Renderer
	thumbs     storage.ThumbnailStore
	thumb      ThumbnailSpec
	logger     *slog.Logger
}

func NewFragmentService(deps FragmentDeps, logger *slog.Logger) *FragmentService {
	if deps.Hasher == nil {
		deps.Hasher = auth.NewHasher(auth.DefaultCost)
	}
	return &FragmentService{
		fragments:  deps.Fragments,
		resonances: deps.Resonances,
		whispers:   deps.Whispers,
		hasher:     deps.Hasher,
		renderer:   deps.Renderer,
		thumbs:     deps.Thumbnails,
		thumb:      deps.Thumbnail,
		logger:     logger,
	}
}

// CreateInput is a submission as the gallery receives it.
type CreateInput struct {
	Title    string
	Author   string
	Code     string
	Password string
}

// Create validates and stores a fragment, then captures its thumbnail.
//
// Code the engine would refuse outright (a critical risk) is rejected here,
// so the gallery never stores a fragment no visitor could run. The stored
// technology is the classifier's verdict, not something the client claims.
// Thumbnail capture is best effort: a failure is logged and the fragment is
// still created.
func (s *FragmentService) Create(ctx context.Context, in CreateInput) (*model.Fragment, error) {
	title := strings.TrimSpace(in.Title)
	author := strings.TrimSpace(in.Author)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	if author == "" {
		author = AnonymousAuthor
	}
	if utf8.RuneCountInString(author) > MaxAuthorLength {
		return nil, apperror.ValidationFailed("author",
			fmt.Sprintf("author must be %d characters or less", MaxAuthorLength))
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, apperror.ValidationFailed("code", "code is required")
	}
	if len(in.Code) > MaxCodeLength {
		return nil, apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d bytes or less", MaxCodeLength))
	}

	analysis := classifier.Analyze(in.Code)
	if refusal := harness.Refusal(analysis, executor.SandboxNormal); refusal != nil {
		return nil, apperror.ValidationFailed("code", refusal.Message)
	}

	hash, err := s.hasher.Hash(in.Password)
	if errors.Is(err, auth.ErrPasswordLength) {
		return nil, apperror.ValidationFailed("password", err.Error())
	}
	if err != nil {
		return nil, err
	}

	f := &model.Fragment{
		Title:        title,
		Author:       author,
		Code:         in.Code,
		Technology:   string(analysis.Technology),
		PasswordHash: hash,
	}
	if err := s.fragments.Create(ctx, f); err != nil {
		s.logger.Error("failed to create fragment",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating fragment: %w", err)
	}

	s.logger.Info("fragment created",
		slog.String("id", f.ID),
		slog.String("technology", f.Technology),
		slog.Float64("confidence", analysis.Confidence),
	)

	if url, err := s.captureThumbnail(ctx, f); err != nil {
		s.logger.Warn("thumbnail capture failed", slog.String("id", f.ID), slog.String("error", err.Error()))
	} else if url != "" {
		f.ThumbnailURL = url
	}
	return f, nil
}

func (s *FragmentService) captureThumbnail(ctx context.Context, f *model.Fragment) (string, error) {
	if s.renderer == nil || s.thumbs == nil {
		return "", nil
	}
	r, err := s.renderer.Render(ctx, RenderRequest{
		Code:    f.Code,
		Width:   s.thumb.Width,
		Height:  s.thumb.Height,
		Settle:  s.thumb.Settle,
		Options: executor.DefaultOptions(),
	})
	if err != nil {
		return "", err
	}
	if !r.Result.Success {
		s.logger.Info("fragment failed while capturing thumbnail",
			slog.String("id", f.ID),
			slog.String("category", string(r.Result.Error.Category)),
			slog.String("error", r.Result.Error.Message),
		)
	}
	url, err := s.thumbs.Put(ctx, f.ID, r.PNG)
	if err != nil {
		return "", err
	}
	if err := s.fragments.SetThumbnail(ctx, f.ID, url); err != nil {
		return "", err
	}
	return url, nil
}

// GetByID returns apperror.ErrNotFound for an unknown ID.
func (s *FragmentService) GetByID(ctx context.Context, id string) (*model.Fragment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "fragment ID is required")
	}
	return s.fragments.GetByID(ctx, id)
}

// List returns a page of fragments, newest first. Bad paging values are
// clamped rather than rejected.
func (s *FragmentService) List(ctx context.Context, limit, offset int, technology string) ([]model.Fragment, error) {
	opts := pageOptions(limit, offset)
	if technology = strings.TrimSpace(technology); technology != "" {
		tech := executor.ParseTechnology(technology)
		if tech == executor.Unknown && technology != string(executor.Unknown) {
			return nil, apperror.ValidationFailed("technology", fmt.Sprintf("unknown technology %q", technology))
		}
		opts.Technology = string(tech)
	}

	fragments, err := s.fragments.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list fragments", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing fragments: %w", err)
	}
	return fragments, nil
}

// Delete removes a fragment when password matches the one it was created
// with. A wrong password is apperror.ErrForbidden.
func (s *FragmentService) Delete(ctx context.Context, id, password string) error {
	f, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.hasher.Verify(f.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrMismatch) {
			s.logger.Warn("fragment deletion refused", slog.String("id", f.ID))
			return apperror.Forbidden("wrong password for this fragment")
		}
		return err
	}
	if err := s.fragments.Delete(ctx, f.ID); err != nil {
		return err
	}
	if s.thumbs != nil {
		if err := s.thumbs.Delete(ctx, f.ID); err != nil {
			s.logger.Warn("failed to delete thumbnail", slog.String("id", f.ID), slog.String("error", err.Error()))
		}
	}

	s.logger.Info("fragment deleted", slog.String("id", f.ID))
	return nil
}

// Resonate records visitorID's like and returns the new count. A repeated
// like is apperror.ErrConflict.
func (s *FragmentService) Resonate(ctx context.Context, fragmentID, visitorID string) (int, error) {
	fragmentID, visitorID, err := resonanceArgs(fragmentID, visitorID)
	if err != nil {
		return 0, err
	}
	return s.resonances.Resonate(ctx, fragmentID, visitorID)
}

// Unresonate withdraws the like and returns the new count.
func (s *FragmentService) Unresonate(ctx context.Context, fragmentID, visitorID string) (int, error) {
	fragmentID, visitorID, err := resonanceArgs(fragmentID, visitorID)
	if err != nil {
		return 0, err
	}
	return s.resonances.Unresonate(ctx, fragmentID, visitorID)
}

func resonanceArgs(fragmentID, visitorID string) (string, string, error) {
	fragmentID = strings.TrimSpace(fragmentID)
	visitorID = strings.TrimSpace(visitorID)
	if fragmentID == "" {
		return "", "", apperror.ValidationFailed("id", "fragment ID is required")
	}
	if visitorID == "" {
		return "", "", apperror.ValidationFailed("visitorId", "visitor ID is required")
	}
	if len(visitorID) > MaxVisitorLength {
		return "", "", apperror.ValidationFailed("visitorId",
			fmt.Sprintf("visitor ID must be %d bytes or less", MaxVisitorLength))
	}
	return fragmentID, visitorID, nil
}

// Whisper leaves a comment on a fragment.
func (s *FragmentService) Whisper(ctx context.Context, fragmentID, author, content string) (*model.Whisper, error) {
	fragmentID = strings.TrimSpace(fragmentID)
	author = strings.TrimSpace(author)
	content = strings.TrimSpace(content)
	if fragmentID == "" {
		return nil, apperror.ValidationFailed("id", "fragment ID is required")
	}
	if content == "" {
		return nil, apperror.ValidationFailed("content", "a whisper cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxWhisperLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("a whisper must be %d characters or less", MaxWhisperLength))
	}
	if author == "" {
		author = AnonymousAuthor
	}
	if utf8.RuneCountInString(author) > MaxAuthorLength {
		return nil, apperror.ValidationFailed("author",
			fmt.Sprintf("author must be %d characters or less", MaxAuthorLength))
	}

	w := &model.Whisper{FragmentID: fragmentID, Author: author, Content: content}
	if err := s.whispers.CreateWhisper(ctx, w); err != nil {
		return nil, err
	}
	s.logger.Info("whisper left", slog.String("fragment", fragmentID), slog.String("id", w.ID))
	return w, nil
}

// ListWhispers returns a fragment's whispers, oldest first.
func (s *FragmentService) ListWhispers(ctx context.Context, fragmentID string, limit, offset int) ([]model.Whisper, error) {
	if _, err := s.GetByID(ctx, fragmentID); err != nil {
		return nil, err
	}
	return s.whispers.ListWhispers(ctx, strings.TrimSpace(fragmentID), pageOptions(limit, offset))
}

func pageOptions(limit, offset int) repository.ListOptions {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return repository.ListOptions{Limit: limit, Offset: offset}
}
