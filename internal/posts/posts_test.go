package posts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/testutil"
)

var signedIn = authz.Static{User: &authz.User{Sub: "u1"}}

type checkedIn map[string]bool

func (c checkedIn) IsCheckedIn(cafeID string) bool { return c[cafeID] }

func TestPostStoryPresigned(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})
	svc := NewService(client, signedIn, checkedIn{cafeID: true})

	err := svc.PostStory(ctx, Story{
		CafeID:       cafeID,
		Vibe:         "cozy",
		VisitPurpose: "work",
		Filename:     "latte.JPG",
		Body:         strings.NewReader("jpeg bytes"),
	})
	if err != nil {
		t.Fatalf("PostStory() error = %v", err)
	}

	var presign apiclient.PresignRequest
	if err := stub.RequestsTo(http.MethodPost, "/upload/presigned-url")[0].JSON(&presign); err != nil {
		t.Fatalf("decode presign: %v", err)
	}
	if presign.Category != StoryUploadCategory || presign.FileType != "image/jpeg" {
		t.Errorf("presign = %+v", presign)
	}

	stories, err := svc.MyStories(ctx)
	if err != nil {
		t.Fatalf("MyStories() error = %v", err)
	}
	if len(stories) != 1 || stories[0].Vibe != "cozy" || stories[0].CafeName != "Kava" {
		t.Fatalf("MyStories() = %+v", stories)
	}
	key := strings.TrimPrefix(stories[0].ImageURL, "https://cdn.cafespot.test/")
	if body, ok := stub.Object(key); !ok || string(body) != "jpeg bytes" {
		t.Errorf("uploaded object = %q, %v", body, ok)
	}
}

func TestPostStoryFallsBackToMultipart(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})
	svc := NewService(client, signedIn, checkedIn{cafeID: true})

	stub.FailNext(http.MethodPost, "/upload/presigned-url", http.StatusNotFound, "Not Found")
	err := svc.PostStory(context.Background(), Story{CafeID: cafeID, Filename: "a.png", Body: strings.NewReader("png")})
	if err != nil {
		t.Fatalf("PostStory() error = %v", err)
	}
	if got := len(stub.RequestsTo(http.MethodPost, "/liveUpdates")); got != 1 {
		t.Errorf("multipart story posts = %d, want 1", got)
	}
}

func TestPostStoryGuards(t *testing.T) {
	_, client := testutil.NewStubBackend(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		svc     *Service
		story   Story
		wantErr error
	}{
		{
			name:    "not checked in",
			svc:     NewService(client, signedIn, checkedIn{}),
			story:   Story{CafeID: "c1", Filename: "a.jpg", Body: strings.NewReader("x")},
			wantErr: ErrCheckInRequired,
		},
		{
			name:    "signed out",
			svc:     NewService(client, authz.Static{}, checkedIn{"c1": true}),
			story:   Story{CafeID: "c1", Filename: "a.jpg", Body: strings.NewReader("x")},
			wantErr: authz.ErrUnauthenticated,
		},
		{
			name:    "no photo",
			svc:     NewService(client, signedIn, checkedIn{"c1": true}),
			story:   Story{CafeID: "c1", Filename: "a.jpg"},
			wantErr: ErrInvalidStory,
		},
		{
			name:    "not an image",
			svc:     NewService(client, signedIn, checkedIn{"c1": true}),
			story:   Story{CafeID: "c1", Filename: "notes.txt", Body: strings.NewReader("x")},
			wantErr: ErrInvalidStory,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.svc.PostStory(ctx, tt.story); !errors.Is(err, tt.wantErr) {
				t.Errorf("PostStory() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPostReview(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	cafeID := stub.PutCafe(map[string]any{"name": "Kava"})
	svc := NewService(client, signedIn, checkedIn{cafeID: true})

	for _, rating := range []int{0, 6} {
		if err := svc.PostReview(ctx, cafeID, rating, "ok"); !errors.Is(err, ErrInvalidReview) {
			t.Errorf("PostReview(rating %d) error = %v, want ErrInvalidReview", rating, err)
		}
	}
	if err := svc.PostReview(ctx, cafeID, 4, strings.Repeat("a", MaxReviewLength+1)); !errors.Is(err, ErrInvalidReview) {
		t.Errorf("PostReview(long) error = %v, want ErrInvalidReview", err)
	}
	if err := svc.PostReview(ctx, "other", 4, "ok"); !errors.Is(err, ErrCheckInRequired) {
		t.Errorf("PostReview(other cafe) error = %v, want ErrCheckInRequired", err)
	}

	if err := svc.PostReview(ctx, cafeID, 4, "  Great flat white  "); err != nil {
		t.Fatalf("PostReview() error = %v", err)
	}
	reviews, err := client.ListCafeReviews(ctx, cafeID)
	if err != nil {
		t.Fatalf("ListCafeReviews() error = %v", err)
	}
	if len(reviews) != 1 || reviews[0].ReviewText != "Great flat white" || reviews[0].Rating != 4 {
		t.Errorf("reviews = %+v", reviews)
	}
	if cafe, _ := stub.Cafe(cafeID); cafe["avg_rating"] != float64(4) {
		t.Errorf("avg_rating = %v, want 4", cafe["avg_rating"])
	}
}
