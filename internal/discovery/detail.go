package discovery

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/codr1/cafespot/internal/apiclient"
)

type DetailAPI interface {
	GetCafe(ctx context.Context, cafeID string) (*apiclient.Cafe, error)
	ListCafeReviews(ctx context.Context, cafeID string) ([]apiclient.Review, error)
	ListCafeStories(ctx context.Context, cafeID string) ([]apiclient.Story, error)
}

// Detail is everything the cafe screen shows.
type Detail struct {
	Cafe    apiclient.Cafe
	Card    Card
	Reviews []apiclient.Review
	Stories []apiclient.Story
}

// LoadDetail fetches the cafe, its reviews and its active stories in
// parallel. Any failure fails the whole load.
func LoadDetail(ctx context.Context, api DetailAPI, cafeID string, origin *Point) (*Detail, error) {
	var (
		cafe    *apiclient.Cafe
		reviews []apiclient.Review
		stories []apiclient.Story
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cafe, err = api.GetCafe(gctx, cafeID)
		return err
	})
	g.Go(func() error {
		var err error
		reviews, err = api.ListCafeReviews(gctx, cafeID)
		return err
	})
	g.Go(func() error {
		var err error
		stories, err = api.ListCafeStories(gctx, cafeID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load cafe %s: %w", cafeID, err)
	}

	cafe.ActiveStories = stories
	cafe.HasActiveStories = len(stories) > 0
	return &Detail{
		Cafe:    *cafe,
		Card:    CardOf(cafe, origin),
		Reviews: reviews,
		Stories: stories,
	}, nil
}
