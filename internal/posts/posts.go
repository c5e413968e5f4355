// Package posts publishes live-update stories and reviews. Both require a
// check-in at the cafe on the same day.
package posts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
)

const (
	// StoryUploadCategory is the storage prefix the backend signs story
	// uploads under.
	StoryUploadCategory = "live_update"
	MaxReviewLength     = 1000
)

var (
	ErrCheckInRequired = errors.New("check in to this cafe first")
	ErrInvalidStory    = errors.New("invalid story")
	ErrInvalidReview   = errors.New("invalid review")
)

// CheckIns reports today's check-ins.
type CheckIns interface {
	IsCheckedIn(cafeID string) bool
}

type API interface {
	PresignUpload(ctx context.Context, req apiclient.PresignRequest) (*apiclient.PresignedUpload, error)
	UploadObject(ctx context.Context, uploadURL, contentType string, body io.Reader) error
	CreateStoryDirect(ctx context.Context, story apiclient.StoryDirect) error
	CreateStory(ctx context.Context, upload apiclient.StoryUpload) error
	CreateReview(ctx context.Context, req apiclient.ReviewRequest) error
	ListUserStories(ctx context.Context, userSub string) ([]apiclient.Story, error)
}

type Story struct {
	CafeID       string
	Vibe         string
	VisitPurpose string
	Filename     string
	ContentType  string
	Body         io.Reader
}

type Service struct {
	api      API
	users    authz.Provider
	checkins CheckIns
	logger   zerolog.Logger
}

func NewService(api API, users authz.Provider, checkins CheckIns) *Service {
	return &Service{
		api:      api,
		users:    users,
		checkins: checkins,
		logger:   log.With().Str("component", "posts").Logger(),
	}
}

func (s *Service) authorize(ctx context.Context, cafeID string) (*authz.User, error) {
	user, err := authz.RequireUser(ctx, s.users)
	if err != nil {
		return nil, err
	}
	if !s.checkins.IsCheckedIn(cafeID) {
		return nil, ErrCheckInRequired
	}
	return user, nil
}

// PostStory uploads the photo straight to storage through a presigned URL
// and then records the story. Backends without presigned uploads get the
// photo as a multipart form instead.
func (s *Service) PostStory(ctx context.Context, story Story) error {
	if strings.TrimSpace(story.CafeID) == "" || story.Body == nil || strings.TrimSpace(story.Filename) == "" {
		return fmt.Errorf("%w: cafe, file name and photo are required", ErrInvalidStory)
	}
	user, err := s.authorize(ctx, story.CafeID)
	if err != nil {
		return err
	}
	contentType := story.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(story.Filename)))
	}
	if !strings.HasPrefix(contentType, "image/") {
		return fmt.Errorf("%w: %q is not an image", ErrInvalidStory, story.Filename)
	}

	logger := s.logger.With().Str("user_sub", user.Sub).Str("cafe_id", story.CafeID).Logger()
	upload, err := s.api.PresignUpload(ctx, apiclient.PresignRequest{
		Filename: filepath.Base(story.Filename),
		FileType: contentType,
		Category: StoryUploadCategory,
	})
	if errors.Is(err, apiclient.ErrNotFound) {
		logger.Info().Msg("Presigned uploads unavailable; posting story as multipart")
		err = s.api.CreateStory(ctx, apiclient.StoryUpload{
			CafeID: story.CafeID,
			UserID: user.Sub,
			Photo:  apiclient.File{Name: filepath.Base(story.Filename), ContentType: contentType, Body: story.Body},
		})
		if err != nil {
			return fmt.Errorf("post story: %w", err)
		}
		return nil
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to presign story upload")
		return fmt.Errorf("presign story upload: %w", err)
	}

	if err := s.api.UploadObject(ctx, upload.UploadURL, contentType, story.Body); err != nil {
		logger.Error().Err(err).Msg("Failed to upload story photo")
		return fmt.Errorf("upload story photo: %w", err)
	}
	if err := s.api.CreateStoryDirect(ctx, apiclient.StoryDirect{
		CafeID:       story.CafeID,
		UserSub:      user.Sub,
		Vibe:         strings.TrimSpace(story.Vibe),
		VisitPurpose: strings.TrimSpace(story.VisitPurpose),
		ImageURL:     upload.FileURL,
	}); err != nil {
		logger.Error().Err(err).Msg("Photo uploaded but story was not recorded")
		return fmt.Errorf("record story: %w", err)
	}
	logger.Info().Msg("Story posted")
	return nil
}

// PostReview rates a cafe from 1 to 5 with optional text.
func (s *Service) PostReview(ctx context.Context, cafeID string, rating int, text string) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidReview)
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) > MaxReviewLength {
		return fmt.Errorf("%w: review is longer than %d characters", ErrInvalidReview, MaxReviewLength)
	}
	user, err := s.authorize(ctx, cafeID)
	if err != nil {
		return err
	}
	if err := s.api.CreateReview(ctx, apiclient.ReviewRequest{
		CafeID:     cafeID,
		UserSub:    user.Sub,
		Rating:     rating,
		ReviewText: text,
	}); err != nil {
		s.logger.Warn().Err(err).Str("user_sub", user.Sub).Str("cafe_id", cafeID).Msg("Review rejected")
		return fmt.Errorf("post review: %w", err)
	}
	return nil
}

// MyStories lists the signed-in user's active stories.
func (s *Service) MyStories(ctx context.Context) ([]apiclient.Story, error) {
	user, err := authz.RequireUser(ctx, s.users)
	if err != nil {
		return nil, err
	}
	stories, err := s.api.ListUserStories(ctx, user.Sub)
	if err != nil {
		return nil, fmt.Errorf("list stories: %w", err)
	}
	return stories, nil
}
