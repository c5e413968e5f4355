package stubapi

import (
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/codr1/cafespot/internal/apiclient"
)

const cdnBase = "https://cdn.cafespot.test/"

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	s.route(mux, "GET /cafes/{$}", s.handleListCafes)
	s.route(mux, "POST /cafes", s.handleCreateCafe)
	s.route(mux, "GET /cafes/owner/{userId}", s.handleOwnerCafe)
	s.route(mux, "GET /cafes/{cafeId}", s.handleGetCafe)
	s.route(mux, "PATCH /cafes/{cafeId}", s.handleUpdateCafe)
	s.route(mux, "DELETE /cafes/{cafeId}", s.handleDeleteCafe)

	s.route(mux, "POST /occupancy/{$}", s.handleSyncOccupancy)
	s.route(mux, "GET /occupancy/history/{cafeId}", s.handleOccupancyHistory)

	s.route(mux, "GET /reservations/cafe/{cafeId}", s.handleCafeReservations)
	s.route(mux, "GET /reservations/user/{userSub}", s.handleUserReservations)
	s.route(mux, "POST /reservations/{$}", s.handleCreateReservation)
	s.route(mux, "PATCH /reservations/{id}", s.handleUpdateReservation)

	s.route(mux, "GET /liveUpdates/cafe/{cafeId}", s.handleCafeStories)
	s.route(mux, "GET /liveUpdates/user/{userSub}", s.handleUserStories)
	s.route(mux, "POST /liveUpdates", s.handleCreateStory)
	s.route(mux, "POST /liveUpdates/direct", s.handleCreateStoryDirect)
	s.route(mux, "POST /upload/presigned-url", s.handlePresign)
	s.route(mux, "PUT /objects/{key...}", s.handlePutObject)

	s.route(mux, "GET /reviews/cafe/{cafeId}", s.handleCafeReviews)
	s.route(mux, "POST /reviews/{$}", s.handleCreateReview)

	s.route(mux, "POST /users/{$}", s.handleCreateUser)
	s.route(mux, "GET /users/{sub}", s.handleGetUser)
	s.route(mux, "PATCH /users/{sub}", s.handleUpdateUser)
	s.route(mux, "DELETE /users/{sub}", s.handleDeleteUser)
	s.route(mux, "POST /users/{sub}/saved_cafes/{cafeId}", s.handleSaveCafe)
	s.route(mux, "DELETE /users/{sub}/saved_cafes/{cafeId}", s.handleUnsaveCafe)

	s.route(mux, "GET /checkins/today", s.handleTodayCheckIns)
	s.route(mux, "POST /checkins/{$}", s.handleCreateCheckIn)
}

// cafeViewLocked renders a stored cafe with its active stories attached.
func (s *Server) cafeViewLocked(cafe map[string]any) map[string]any {
	out := cloneMap(cafe)
	id, _ := cafe["id"].(string)
	active := s.activeStoriesLocked(func(st apiclient.Story) bool { return st.CafeID == id })
	out["active_stories"] = active
	out["has_active_stories"] = len(active) > 0
	return out
}

func (s *Server) handleListCafes(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.cafeOrder))
	for _, id := range s.cafeOrder {
		out = append(out, s.cafeViewLocked(s.cafes[id]))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetCafe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cafe, ok := s.cafes[r.PathValue("cafeId")]
	var view map[string]any
	if ok {
		view = s.cafeViewLocked(cafe)
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleOwnerCafe(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("userId")
	s.mu.Lock()
	var view map[string]any
	for _, id := range s.cafeOrder {
		if sub, _ := s.cafes[id]["cognito_sub"].(string); sub == owner {
			view = s.cafeViewLocked(s.cafes[id])
			break
		}
	}
	s.mu.Unlock()
	if view == nil {
		writeDetail(w, http.StatusNotFound, "Cafe not found for this owner")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleUpdateCafe(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	s.mu.Lock()
	cafe, ok := s.cafes[r.PathValue("cafeId")]
	var view map[string]any
	if ok {
		for k, v := range patch {
			if k == "id" {
				continue
			}
			cafe[k] = v
		}
		view = s.cafeViewLocked(cafe)
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleDeleteCafe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("cafeId")
	s.mu.Lock()
	_, ok := s.cafes[id]
	if ok {
		delete(s.cafes, id)
		for i, existing := range s.cafeOrder {
			if existing == id {
				s.cafeOrder = append(s.cafeOrder[:i], s.cafeOrder[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cafe deleted"})
}

var numericCafeFields = map[string]bool{
	"latitude":    true,
	"longitude":   true,
	"two_tables":  true,
	"four_tables": true,
}

func (s *Server) handleCreateCafe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "Expected multipart form data")
		return
	}
	form := r.MultipartForm
	if strings.TrimSpace(firstValue(form, "name")) == "" {
		writeValidation(w, "name", "Field required")
		return
	}

	id := uuid.NewString()
	cafe := map[string]any{
		"id":                   id,
		"onboarding_completed": true,
		"occupancy_level":      0,
		"amenities":            []any{},
		"table_config":         nil,
	}
	for key, values := range form.Value {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		if numericCafeFields[key] {
			n, err := strconv.ParseFloat(value, 64)
			if err != nil {
				writeValidation(w, key, "Input should be a valid number")
				return
			}
			cafe[key] = n
			continue
		}
		if key == "amenities" {
			cafe[key] = splitList(value)
			continue
		}
		cafe[key] = value
	}
	cafe["cafe_photos"] = photoURLs(id, "cafe", form.File["cafe_photos"])
	cafe["menu_photos"] = photoURLs(id, "menu", form.File["menu_photos"])
	cafe = cloneMap(cafe)

	s.mu.Lock()
	s.cafes[id] = cafe
	s.cafeOrder = append(s.cafeOrder, id)
	view := s.cafeViewLocked(cafe)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleSyncOccupancy(w http.ResponseWriter, r *http.Request) {
	var snap apiclient.OccupancySnapshot
	if err := decodeJSON(r, &snap); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	capacity := snap.TwoTableSeats + snap.FourTableSeats
	occupied := snap.TwoSeatsOccupied + snap.FourSeatsOccupied
	level := 0
	if capacity > 0 {
		level = int(math.Round(100 * float64(occupied) / float64(capacity)))
	}

	s.mu.Lock()
	cafe, ok := s.cafes[snap.CafeID]
	if ok {
		cafe["occupancy_level"] = level
		s.snapshots = append(s.snapshots, snap)
		s.history[snap.CafeID] = append(s.history[snap.CafeID], apiclient.OccupancyPoint{
			CreatedAt:      apiclient.Timestamp{Time: s.now().UTC()},
			OccupancyLevel: level,
		})
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cafe_id": snap.CafeID, "occupancy_level": level})
}

func (s *Server) handleOccupancyHistory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	points := append([]apiclient.OccupancyPoint{}, s.history[r.PathValue("cafeId")]...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) reservationsWhere(match func(apiclient.Reservation) bool) []apiclient.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []apiclient.Reservation{}
	for _, res := range s.reservations {
		if !match(res) {
			continue
		}
		if name, ok := s.cafes[res.CafeID]["name"].(string); ok && res.CafeName == "" {
			res.CafeName = name
		}
		if name, ok := s.users[res.UserSub]["username"].(string); ok && res.UserName == "" {
			res.UserName = name
		}
		out = append(out, res)
	}
	return out
}

func (s *Server) handleCafeReservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("cafeId")
	writeJSON(w, http.StatusOK, s.reservationsWhere(func(res apiclient.Reservation) bool {
		return res.CafeID == id
	}))
}

func (s *Server) handleUserReservations(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("userSub")
	writeJSON(w, http.StatusOK, s.reservationsWhere(func(res apiclient.Reservation) bool {
		return res.UserSub == sub
	}))
}

func (s *Server) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	var req apiclient.ReservationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	switch {
	case req.PartySize < 1 || req.PartySize > 10:
		writeValidation(w, "party_size", "Party size must be between 1 and 10")
		return
	case strings.TrimSpace(req.ReservationTime) == "":
		writeValidation(w, "reservation_time", "Field required")
		return
	case req.ReservationDate.IsZero():
		writeValidation(w, "reservation_date", "Field required")
		return
	}

	s.mu.Lock()
	_, ok := s.cafes[req.CafeID]
	res := apiclient.Reservation{
		ID:              uuid.NewString(),
		CafeID:          req.CafeID,
		UserSub:         req.UserSub,
		ReservationDate: req.ReservationDate,
		ReservationTime: req.ReservationTime,
		PartySize:       req.PartySize,
		SpecialRequest:  req.SpecialRequest,
		Status:          "pending",
		CreatedAt:       apiclient.Timestamp{Time: s.now().UTC()},
	}
	if ok {
		s.reservations = append(s.reservations, res)
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

var reservationStatuses = map[string]bool{
	"pending":   true,
	"confirmed": true,
	"cancelled": true,
	"completed": true,
}

func (s *Server) handleUpdateReservation(w http.ResponseWriter, r *http.Request) {
	var update apiclient.ReservationStatusUpdate
	if err := decodeJSON(r, &update); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if !reservationStatuses[update.Status] {
		writeValidation(w, "status", fmt.Sprintf("Unknown status %q", update.Status))
		return
	}

	id := r.PathValue("id")
	s.mu.Lock()
	var updated *apiclient.Reservation
	for i := range s.reservations {
		if s.reservations[i].ID != id {
			continue
		}
		s.reservations[i].Status = update.Status
		if update.CancellationReason != "" {
			reason := update.CancellationReason
			s.reservations[i].CancellationReason = &reason
		}
		res := s.reservations[i]
		updated = &res
		break
	}
	s.mu.Unlock()
	if updated == nil {
		writeDetail(w, http.StatusNotFound, "Reservation not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) activeStoriesLocked(match func(apiclient.Story) bool) []apiclient.Story {
	now := s.now()
	out := []apiclient.Story{}
	for _, st := range s.stories {
		if !match(st) || !st.ExpiresAt.After(now) {
			continue
		}
		if name, ok := s.cafes[st.CafeID]["name"].(string); ok {
			st.CafeName = name
		}
		out = append(out, st)
	}
	return out
}

func (s *Server) handleCafeStories(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("cafeId")
	s.mu.Lock()
	out := s.activeStoriesLocked(func(st apiclient.Story) bool { return st.CafeID == id })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleUserStories(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("userSub")
	s.mu.Lock()
	out := s.activeStoriesLocked(func(st apiclient.Story) bool { return st.UserID == sub })
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) addStory(st apiclient.Story) (apiclient.Story, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cafes[st.CafeID]; !ok {
		return st, false
	}
	now := s.now().UTC()
	st.ID = uuid.NewString()
	st.CreatedAt = apiclient.Timestamp{Time: now}
	st.ExpiresAt = apiclient.Timestamp{Time: now.Add(StoryLifetime)}
	s.stories = append(s.stories, st)
	return st, true
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "Expected multipart form data")
		return
	}
	photos := r.MultipartForm.File["photo"]
	if len(photos) == 0 {
		writeValidation(w, "photo", "Field required")
		return
	}
	cafeID := firstValue(r.MultipartForm, "cafe_id")
	st, ok := s.addStory(apiclient.Story{
		CafeID:   cafeID,
		UserID:   firstValue(r.MultipartForm, "user_id"),
		ImageURL: photoURLs(cafeID, "stories", photos)[0],
	})
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleCreateStoryDirect(w http.ResponseWriter, r *http.Request) {
	var req apiclient.StoryDirect
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.ImageURL == "" {
		writeValidation(w, "image_url", "Field required")
		return
	}
	st, ok := s.addStory(apiclient.Story{
		CafeID:       req.CafeID,
		UserID:       req.UserSub,
		ImageURL:     req.ImageURL,
		Vibe:         req.Vibe,
		VisitPurpose: req.VisitPurpose,
	})
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// handlePresign hands out an upload URL on the stub itself.
func (s *Server) handlePresign(w http.ResponseWriter, r *http.Request) {
	var req apiclient.PresignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Filename == "" || req.FileType == "" {
		writeValidation(w, "filename", "Filename and file type are required")
		return
	}
	category := req.Category
	if category == "" {
		category = "misc"
	}
	key := category + "/" + uuid.NewString() + "-" + path.Base(req.Filename)
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, apiclient.PresignedUpload{
		UploadURL: scheme + "://" + r.Host + "/objects/" + key,
		FileURL:   cdnBase + key,
	})
}

func (s *Server) handlePutObject(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "unreadable body")
		return
	}
	s.mu.Lock()
	s.objects[r.PathValue("key")] = body
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCafeReviews(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("cafeId")
	s.mu.Lock()
	out := []apiclient.Review{}
	for _, rev := range s.reviews {
		if rev.CafeID != id {
			continue
		}
		if name, ok := s.users[rev.UserSub]["username"].(string); ok {
			rev.Username = name
		}
		out = append(out, rev)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req apiclient.ReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.Rating < 1 || req.Rating > 5 {
		writeValidation(w, "rating", "Rating must be between 1 and 5")
		return
	}

	s.mu.Lock()
	cafe, ok := s.cafes[req.CafeID]
	rev := apiclient.Review{
		ID:         uuid.NewString(),
		CafeID:     req.CafeID,
		UserSub:    req.UserSub,
		Rating:     req.Rating,
		ReviewText: req.ReviewText,
		CreatedAt:  apiclient.Timestamp{Time: s.now().UTC()},
	}
	if ok {
		s.reviews = append(s.reviews, rev)
		total, n := 0, 0
		for _, existing := range s.reviews {
			if existing.CafeID == req.CafeID {
				total += existing.Rating
				n++
			}
		}
		cafe["avg_rating"] = math.Round(10*float64(total)/float64(n)) / 10
		if user, found := s.users[req.UserSub]; found {
			user["total_reviews"] = countReviews(s.reviews, req.UserSub)
		}
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Cafe not found")
		return
	}
	writeJSON(w, http.StatusCreated, rev)
}

func countReviews(reviews []apiclient.Review, sub string) int {
	n := 0
	for _, rev := range reviews {
		if rev.UserSub == sub {
			n++
		}
	}
	return n
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req apiclient.NewUser
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if req.CognitoSub == "" {
		writeValidation(w, "cognito_sub", "Field required")
		return
	}
	s.mu.Lock()
	_, exists := s.users[req.CognitoSub]
	s.mu.Unlock()
	if exists {
		writeDetail(w, http.StatusBadRequest, "User already exists")
		return
	}
	s.PutUser(map[string]any{
		"cognito_sub":    req.CognitoSub,
		"email":          req.Email,
		"username":       req.Username,
		"preferences":    map[string]any{},
		"total_reviews":  0,
		"total_checkins": 0,
	})
	user, _ := s.User(req.CognitoSub)
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.User(r.PathValue("sub"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleUpdateUser merges top-level fields; preferences merge one level down.
func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if err := decodeJSON(r, &patch); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	sub := r.PathValue("sub")
	s.mu.Lock()
	user, ok := s.users[sub]
	if ok {
		for k, v := range patch {
			switch k {
			case "id", "cognito_sub":
				continue
			case "preferences":
				prefs, _ := user["preferences"].(map[string]any)
				if prefs == nil {
					prefs = map[string]any{}
				}
				incoming, _ := v.(map[string]any)
				for pk, pv := range incoming {
					prefs[pk] = pv
				}
				user["preferences"] = prefs
			default:
				user[k] = v
			}
		}
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	updated, _ := s.User(sub)
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	sub := r.PathValue("sub")
	s.mu.Lock()
	_, ok := s.users[sub]
	delete(s.users, sub)
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

func (s *Server) handleSaveCafe(w http.ResponseWriter, r *http.Request) {
	sub, cafeID := r.PathValue("sub"), r.PathValue("cafeId")
	s.mu.Lock()
	user, userOK := s.users[sub]
	cafe, cafeOK := s.cafes[cafeID]
	if userOK && cafeOK {
		saved := savedList(user)
		if indexOfSaved(saved, cafeID) < 0 {
			image := ""
			if photos, ok := cafe["cafe_photos"].([]any); ok && len(photos) > 0 {
				image, _ = photos[0].(string)
			}
			saved = append(saved, map[string]any{
				"id":      cafeID,
				"name":    cafe["name"],
				"address": cafe["address"],
				"image":   image,
			})
			user["saved_cafes"] = saved
		}
	}
	s.mu.Unlock()
	switch {
	case !userOK:
		writeDetail(w, http.StatusNotFound, "User not found")
	case !cafeOK:
		writeDetail(w, http.StatusNotFound, "Cafe not found")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"message": "Cafe saved"})
	}
}

func (s *Server) handleUnsaveCafe(w http.ResponseWriter, r *http.Request) {
	sub, cafeID := r.PathValue("sub"), r.PathValue("cafeId")
	s.mu.Lock()
	user, ok := s.users[sub]
	if ok {
		saved := savedList(user)
		if i := indexOfSaved(saved, cafeID); i >= 0 {
			user["saved_cafes"] = append(saved[:i], saved[i+1:]...)
		}
	}
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Cafe removed from saved"})
}

func savedList(user map[string]any) []any {
	saved, _ := user["saved_cafes"].([]any)
	return saved
}

// indexOfSaved finds a saved entry stored either as an object or a bare id.
func indexOfSaved(saved []any, cafeID string) int {
	for i, entry := range saved {
		switch v := entry.(type) {
		case string:
			if v == cafeID {
				return i
			}
		case map[string]any:
			if id, _ := v["id"].(string); id == cafeID {
				return i
			}
		}
	}
	return -1
}

func (s *Server) handleTodayCheckIns(w http.ResponseWriter, r *http.Request) {
	sub := r.URL.Query().Get("user_sub")
	if sub == "" {
		writeValidation(w, "user_sub", "Field required")
		return
	}
	s.mu.Lock()
	today := s.today()
	ids := []string{}
	for _, c := range s.checkins[sub] {
		if c.day == today {
			ids = append(ids, c.cafeID)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleCreateCheckIn(w http.ResponseWriter, r *http.Request) {
	var req apiclient.CheckInRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	s.mu.Lock()
	_, cafeOK := s.cafes[req.CafeID]
	today := s.today()
	duplicate := false
	for _, c := range s.checkins[req.UserSub] {
		if c.cafeID == req.CafeID && c.day == today {
			duplicate = true
			break
		}
	}
	if cafeOK && !duplicate {
		s.checkins[req.UserSub] = append(s.checkins[req.UserSub], checkIn{cafeID: req.CafeID, day: today})
		if user, ok := s.users[req.UserSub]; ok {
			user["total_checkins"] = len(s.checkins[req.UserSub])
		}
	}
	s.mu.Unlock()
	switch {
	case !cafeOK:
		writeDetail(w, http.StatusNotFound, "Cafe not found")
	case duplicate:
		writeDetail(w, http.StatusBadRequest, "Already checked in to this cafe today")
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"cafe_id": req.CafeID, "user_sub": req.UserSub})
	}
}

func firstValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return values[0]
	}
	return ""
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func photoURLs(owner, kind string, files []*multipart.FileHeader) []string {
	urls := make([]string, 0, len(files))
	for _, fh := range files {
		urls = append(urls, cdnBase+kind+"/"+owner+"/"+path.Base(fh.Filename))
	}
	return urls
}
