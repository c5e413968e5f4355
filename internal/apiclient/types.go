package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type WorkingHoursDay struct {
	Open   *string `json:"open,omitempty"`
	Close  *string `json:"close,omitempty"`
	Closed bool    `json:"closed"`
}

// Cafe is the cafe record as returned by the cafes endpoints.
type Cafe struct {
	ID                  string                     `json:"id"`
	CognitoSub          string                     `json:"cognito_sub,omitempty"`
	Name                string                     `json:"name"`
	Description         string                     `json:"description,omitempty"`
	PhoneNumber         string                     `json:"phone_number,omitempty"`
	Address             string                     `json:"address"`
	City                string                     `json:"city"`
	Latitude            float64                    `json:"latitude"`
	Longitude           float64                    `json:"longitude"`
	WebsiteLink         string                     `json:"website_link,omitempty"`
	MenuLink            string                     `json:"menu_link,omitempty"`
	InstagramURL        string                     `json:"instagram_url,omitempty"`
	CafePhotos          []string                   `json:"cafe_photos"`
	MenuPhotos          []string                   `json:"menu_photos"`
	Amenities           []string                   `json:"amenities"`
	WorkingHours        map[string]WorkingHoursDay `json:"working_hours,omitempty"`
	TwoTables           *int                       `json:"two_tables"`
	FourTables          *int                       `json:"four_tables"`
	TableConfig         TableConfig                `json:"table_config"`
	AvgRating           *float64                   `json:"avg_rating"`
	OccupancyLevel      int                        `json:"occupancy_level"`
	OnboardingCompleted bool                       `json:"onboarding_completed"`
	HasActiveStories    bool                       `json:"has_active_stories"`
	ActiveStories       []Story                    `json:"active_stories"`
}

// CafeUpdate is a partial PATCH body; nil fields are not sent.
type CafeUpdate struct {
	Name                *string                    `json:"name,omitempty"`
	Description         *string                    `json:"description,omitempty"`
	PhoneNumber         *string                    `json:"phone_number,omitempty"`
	Address             *string                    `json:"address,omitempty"`
	City                *string                    `json:"city,omitempty"`
	WebsiteLink         *string                    `json:"website_link,omitempty"`
	MenuLink            *string                    `json:"menu_link,omitempty"`
	InstagramURL        *string                    `json:"instagram_url,omitempty"`
	Amenities           []string                   `json:"amenities,omitempty"`
	WorkingHours        map[string]WorkingHoursDay `json:"working_hours,omitempty"`
	TwoTables           *int                       `json:"two_tables,omitempty"`
	FourTables          *int                       `json:"four_tables,omitempty"`
	TableConfig         *[]TableEntry              `json:"table_config,omitempty"`
	OnboardingCompleted *bool                      `json:"onboarding_completed,omitempty"`
}

// OccupancySnapshot is the body of POST /occupancy/.
type OccupancySnapshot struct {
	CafeID             string       `json:"cafe_id"`
	TwoTables          int          `json:"two_tables"`
	FourTables         int          `json:"four_tables"`
	TwoTableSeats      int          `json:"two_table_seats"`
	FourTableSeats     int          `json:"four_table_seats"`
	TwoTablesOccupied  int          `json:"two_tables_occupied"`
	FourTablesOccupied int          `json:"four_tables_occupied"`
	TwoSeatsOccupied   int          `json:"two_seats_occupied"`
	FourSeatsOccupied  int          `json:"four_seats_occupied"`
	TableConfig        []TableEntry `json:"table_config"`
}

type OccupancyPoint struct {
	CreatedAt      Timestamp `json:"created_at"`
	OccupancyLevel int       `json:"occupancy_level"`
}

type Reservation struct {
	ID                 string    `json:"id"`
	CafeID             string    `json:"cafe_id"`
	UserSub            string    `json:"user_sub"`
	ReservationDate    Timestamp `json:"reservation_date"`
	ReservationTime    string    `json:"reservation_time"`
	PartySize          int       `json:"party_size"`
	SpecialRequest     *string   `json:"special_request"`
	CancellationReason *string   `json:"cancellation_reason"`
	Status             string    `json:"status"`
	CreatedAt          Timestamp `json:"created_at"`
	CafeName           string    `json:"cafe_name,omitempty"`
	UserName           string    `json:"user_name,omitempty"`
}

type ReservationRequest struct {
	CafeID          string    `json:"cafe_id"`
	UserSub         string    `json:"user_sub"`
	ReservationDate Timestamp `json:"reservation_date"`
	ReservationTime string    `json:"reservation_time"`
	PartySize       int       `json:"party_size"`
	SpecialRequest  *string   `json:"special_request"`
}

type ReservationStatusUpdate struct {
	Status             string `json:"status"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
}

// Story is a live update: a time-boxed photo post.
type Story struct {
	ID           string    `json:"id"`
	CafeID       string    `json:"cafe_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ImageURL     string    `json:"image_url"`
	Vibe         string    `json:"vibe,omitempty"`
	VisitPurpose string    `json:"visit_purpose,omitempty"`
	CreatedAt    Timestamp `json:"created_at"`
	ExpiresAt    Timestamp `json:"expires_at"`
	CafeName     string    `json:"cafe_name,omitempty"`
}

type StoryDirect struct {
	CafeID       string `json:"cafe_id"`
	UserSub      string `json:"user_sub"`
	Vibe         string `json:"vibe,omitempty"`
	VisitPurpose string `json:"visit_purpose,omitempty"`
	ImageURL     string `json:"image_url"`
}

// File is one part of a multipart upload.
type File struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type StoryUpload struct {
	CafeID string
	UserID string
	Photo  File
}

// CafeForm is the multipart onboarding submission.
type CafeForm struct {
	Fields     map[string]string
	CafePhotos []File
	MenuPhotos []File
}

type PresignRequest struct {
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	Category string `json:"category"`
}

type PresignedUpload struct {
	UploadURL string `json:"upload_url"`
	FileURL   string `json:"file_url"`
}

type Review struct {
	ID         string    `json:"id"`
	CafeID     string    `json:"cafe_id"`
	UserSub    string    `json:"user_sub"`
	Rating     int       `json:"rating"`
	ReviewText string    `json:"review_text"`
	CreatedAt  Timestamp `json:"created_at"`
	Username   string    `json:"username,omitempty"`
}

type ReviewRequest struct {
	CafeID     string `json:"cafe_id"`
	UserSub    string `json:"user_sub"`
	Rating     int    `json:"rating"`
	ReviewText string `json:"review_text"`
}

type Preferences struct {
	WorkFriendly       *bool    `json:"work_friendly"`
	NoisePreference    *string  `json:"noise_preference"`
	VibePreferences    []string `json:"vibe_preferences"`
	VisitPurpose       []string `json:"visit_purpose"`
	DietaryPreferences []string `json:"dietary_preferences"`
	Amenities          []string `json:"amenities"`
	PushNotifications  *bool    `json:"push_notifications,omitempty"`
}

// User is the profile record, including the denormalised saved-cafe list.
type User struct {
	ID                string      `json:"id"`
	CognitoSub        string      `json:"cognito_sub"`
	Email             string      `json:"email"`
	Username          string      `json:"username"`
	Preferences       Preferences `json:"preferences"`
	SavedCafes        []SavedCafe `json:"saved_cafes"`
	TotalReviews      int         `json:"total_reviews"`
	TotalCheckins     int         `json:"total_checkins"`
	PushNotifications *bool       `json:"push_notifications"`
}

type NewUser struct {
	CognitoSub string `json:"cognito_sub"`
	Email      string `json:"email"`
	Username   string `json:"username"`
}

// SavedCafe is the snapshot stored in a user's favourites. Older records
// hold bare cafe ids, which decode into an entry with only ID set.
type SavedCafe struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
	Image   string `json:"image,omitempty"`
}

func (s *SavedCafe) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return err
		}
		*s = SavedCafe{ID: id}
		return nil
	}

	var raw struct {
		ID       string `json:"id"`
		CafeID   string `json:"cafe_id"`
		Name     string `json:"name"`
		Address  string `json:"address"`
		Image    string `json:"image"`
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("decode saved cafe: %w", err)
	}
	*s = SavedCafe{ID: raw.ID, Name: raw.Name, Address: raw.Address, Image: raw.Image}
	if s.ID == "" {
		s.ID = raw.CafeID
	}
	if s.Image == "" {
		s.Image = raw.ImageURL
	}
	return nil
}

type CheckInRequest struct {
	UserSub string `json:"user_sub"`
	CafeID  string `json:"cafe_id"`
}
