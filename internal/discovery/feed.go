// Package discovery builds the guest-facing cafe feed: distance, live
// occupancy and story badges, with filters and periodic refresh.
package discovery

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/request"
)

// FallbackImage is shown for cafes without photos.
const FallbackImage = "https://cdn.cafespot.test/static/cafe-placeholder.jpg"

type Level string

const (
	Low      Level = "Low"
	Moderate Level = "Moderate"
	High     Level = "High"
)

// LevelOf buckets an occupancy percentage.
func LevelOf(occupancy int) Level {
	switch {
	case occupancy > 70:
		return High
	case occupancy > 30:
		return Moderate
	default:
		return Low
	}
}

type Point struct {
	Lat float64
	Lng float64
}

type Card struct {
	ID             string
	Name           string
	Address        string
	City           string
	Location       Point
	Rating         *float64
	DistanceKm     *float64
	Occupancy      Level
	OccupancyLevel int
	Seats          int
	Amenities      []string
	Image          string
	HasStory       bool
	Stories        []apiclient.Story
}

// Filter narrows the feed. Zero values disable each criterion.
type Filter struct {
	RadiusKm  float64
	MinRating float64
	Occupancy []Level
	Amenities []string
}

func (f Filter) match(c Card) bool {
	if f.RadiusKm > 0 && c.DistanceKm != nil && *c.DistanceKm > f.RadiusKm {
		return false
	}
	if f.MinRating > 0 && (c.Rating == nil || *c.Rating < f.MinRating) {
		return false
	}
	if len(f.Occupancy) > 0 && !slices.Contains(f.Occupancy, c.Occupancy) {
		return false
	}
	for _, want := range f.Amenities {
		if !slices.ContainsFunc(c.Amenities, func(have string) bool { return strings.EqualFold(have, want) }) {
			return false
		}
	}
	return true
}

type API interface {
	ListCafes(ctx context.Context) ([]apiclient.Cafe, error)
}

// Feed holds the last cafe list and derives cards from it. Safe for
// concurrent use.
type Feed struct {
	api    API
	group  singleflight.Group
	seq    request.Sequence
	logger zerolog.Logger

	mu     sync.Mutex
	cafes  []apiclient.Cafe
	origin *Point
	filter Filter
}

func NewFeed(api API) *Feed {
	return &Feed{api: api, logger: log.With().Str("component", "discovery").Logger()}
}

// Refresh reloads the cafe list. Concurrent calls share one request; a
// response superseded by a later refresh is dropped.
func (f *Feed) Refresh(ctx context.Context) error {
	token := f.seq.Next()
	v, err, shared := f.group.Do("cafes", func() (any, error) {
		return f.api.ListCafes(ctx)
	})
	if err != nil {
		f.logger.Warn().Err(err).Msg("Feed refresh failed")
		return fmt.Errorf("refresh feed: %w", err)
	}
	if f.seq.Stale(token, "discovery") {
		return nil
	}
	cafes := v.([]apiclient.Cafe)

	f.mu.Lock()
	f.cafes = cafes
	f.mu.Unlock()
	f.logger.Debug().Int("cafes", len(cafes)).Bool("shared", shared).Msg("Feed refreshed")
	return nil
}

// SetOrigin sets the point distances are measured from.
func (f *Feed) SetOrigin(p Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.origin = &p
}

func (f *Feed) SetFilter(filter Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter = filter
}

// Cards returns the filtered feed, nearest first when an origin is known
// and in server order otherwise.
func (f *Feed) Cards() []Card {
	f.mu.Lock()
	cafes := f.cafes
	origin := f.origin
	filter := f.filter
	f.mu.Unlock()

	cards := make([]Card, 0, len(cafes))
	for i := range cafes {
		card := CardOf(&cafes[i], origin)
		if filter.match(card) {
			cards = append(cards, card)
		}
	}
	if origin != nil {
		sort.SliceStable(cards, func(i, j int) bool {
			return *cards[i].DistanceKm < *cards[j].DistanceKm
		})
	}
	return cards
}

// CardOf maps a cafe record; origin may be nil.
func CardOf(cafe *apiclient.Cafe, origin *Point) Card {
	loc := Point{Lat: cafe.Latitude, Lng: cafe.Longitude}
	card := Card{
		ID:             cafe.ID,
		Name:           cafe.Name,
		Address:        cafe.Address,
		City:           cafe.City,
		Location:       loc,
		Rating:         cafe.AvgRating,
		Occupancy:      LevelOf(cafe.OccupancyLevel),
		OccupancyLevel: cafe.OccupancyLevel,
		Seats:          seatsOf(cafe.Layout()),
		Amenities:      cafe.Amenities,
		Image:          FallbackImage,
		HasStory:       cafe.HasActiveStories || len(cafe.ActiveStories) > 0,
		Stories:        cafe.ActiveStories,
	}
	if len(cafe.CafePhotos) > 0 && cafe.CafePhotos[0] != "" {
		card.Image = cafe.CafePhotos[0]
	}
	if origin != nil {
		d := DistanceKm(*origin, loc)
		card.DistanceKm = &d
	}
	return card
}

func seatsOf(layout apiclient.TableLayout) int {
	if len(layout.Entries) > 0 {
		seats := 0
		for _, e := range layout.Entries {
			seats += e.Size
		}
		return seats
	}
	if layout.Counts != nil {
		return layout.Counts.Two*2 + layout.Counts.Four*4
	}
	return 0
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between two points.
func DistanceKm(a, b Point) float64 {
	lat1, lat2 := radians(a.Lat), radians(b.Lat)
	dLat := lat2 - lat1
	dLng := radians(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
