package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codr1/cafespot/internal/app"
	"github.com/codr1/cafespot/internal/config"
	"github.com/codr1/cafespot/internal/stubapi"
	"github.com/codr1/cafespot/internal/testutil"
)

func newTestApp(t *testing.T, sub string) (*stubapi.Server, *app.App) {
	t.Helper()
	stub, baseURL := testutil.StartStub(t)
	cfg, err := config.Parse([]byte(fmt.Sprintf("app:\n  name: cafespot\napi:\n  base_url: %q\nstore:\n  filename: %q\n",
		baseURL, filepath.Join(t.TempDir(), "cafespot.db"))))
	if err != nil {
		t.Fatalf("config.Parse() error = %v", err)
	}
	a, err := app.FromConfig(context.Background(), cfg, app.Options{UserSub: sub})
	if err != nil {
		t.Fatalf("app.FromConfig() error = %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return stub, a
}

func runOut(t *testing.T, a *app.App, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), a, args, &out)
	return out.String(), err
}

func TestFeed(t *testing.T) {
	stub, a := newTestApp(t, "")
	stub.PutCafe(map[string]any{"id": "far", "name": "Far", "latitude": 40.80, "longitude": -73.95, "occupancy_level": 90})
	stub.PutCafe(map[string]any{"id": "near", "name": "Near", "latitude": 40.70, "longitude": -74.00, "occupancy_level": 10})

	out, err := runOut(t, a, "feed", "-lat", "40.70", "-lng", "-74.00")
	if err != nil {
		t.Fatalf("feed error = %v", err)
	}
	if strings.Index(out, "Near") > strings.Index(out, "Far") || !strings.Contains(out, "0 m") {
		t.Errorf("feed output not nearest first:\n%s", out)
	}

	out, err = runOut(t, a, "feed", "-occupancy", "high")
	if err != nil || strings.Contains(out, "Near") || !strings.Contains(out, "High (90%)") {
		t.Errorf("feed -occupancy high = %q, %v", out, err)
	}

	var usageErr usageError
	if _, err := runOut(t, a, "feed", "-occupancy", "packed"); !errors.As(err, &usageErr) {
		t.Errorf("feed with bad level error = %v, want usageError", err)
	}
}

func TestReserveAndCancel(t *testing.T) {
	stub, a := newTestApp(t, "u1")
	stub.PutCafe(map[string]any{"id": "kava", "name": "Kava"})
	day := time.Now().AddDate(0, 0, 2).Format(time.DateOnly)

	if _, err := runOut(t, a, "reserve", "kava", day, "9:30 AM", "11"); err == nil {
		t.Error("reserve with party 11 error = nil")
	}
	out, err := runOut(t, a, "reserve", "kava", day, "9:30 AM", "2", "window", "seat")
	if err != nil {
		t.Fatalf("reserve error = %v", err)
	}
	if !strings.Contains(out, "Kava") || !strings.Contains(out, "pending") {
		t.Errorf("reserve output:\n%s", out)
	}
	list := stub.Reservations()
	if len(list) != 1 || list[0].SpecialRequest == nil || *list[0].SpecialRequest != "window seat" {
		t.Fatalf("backend reservations = %+v", list)
	}

	out, err = runOut(t, a, "cancel", list[0].ID)
	if err != nil || !strings.Contains(out, "cancelled") {
		t.Errorf("cancel = %q, %v", out, err)
	}
}

func TestSaveCheckInAndPost(t *testing.T) {
	stub, a := newTestApp(t, "u1")
	stub.PutUser(map[string]any{"cognito_sub": "u1", "username": "ana"})
	stub.PutCafe(map[string]any{"id": "kava", "name": "Kava", "address": "1 Main St"})

	if out, err := runOut(t, a, "save", "kava"); err != nil || !strings.Contains(out, "Saved Kava") {
		t.Fatalf("save = %q, %v", out, err)
	}
	if out, _ := runOut(t, a, "saved"); !strings.Contains(out, "1 Main St") {
		t.Errorf("saved output:\n%s", out)
	}

	if _, err := runOut(t, a, "review", "kava", "5", "Great"); err == nil {
		t.Error("review before check-in error = nil")
	}
	if _, err := runOut(t, a, "checkin", "kava"); err != nil {
		t.Fatalf("checkin error = %v", err)
	}
	_, err := runOut(t, a, "checkin", "kava")
	if err == nil || err.Error() != "Already checked in to this cafe today" {
		t.Errorf("second checkin error = %v", err)
	}

	photo := filepath.Join(t.TempDir(), "latte.jpg")
	if err := os.WriteFile(photo, []byte("jpeg"), 0644); err != nil {
		t.Fatalf("write photo: %v", err)
	}
	if _, err := runOut(t, a, "story", "-vibe", "cozy", "kava", photo); err != nil {
		t.Fatalf("story error = %v", err)
	}
	if _, err := runOut(t, a, "review", "kava", "5", "Great", "flat", "white"); err != nil {
		t.Fatalf("review error = %v", err)
	}

	out, err := runOut(t, a, "cafe", "kava")
	if err != nil {
		t.Fatalf("cafe error = %v", err)
	}
	for _, want := range []string{"Kava", "Rating: 5.0", "1 live update(s)", "cozy", "5/5 ana: Great flat white"} {
		if !strings.Contains(out, want) {
			t.Errorf("cafe output missing %q:\n%s", want, out)
		}
	}
}

func TestProfile(t *testing.T) {
	_, a := newTestApp(t, "u1")
	out, err := runOut(t, a, "profile", "username", "ana.c")
	if err != nil || !strings.Contains(out, "ana.c") {
		t.Fatalf("profile username = %q, %v", out, err)
	}
	if _, err := runOut(t, a, "signup", "ana@example.com"); err == nil {
		t.Error("signup without a user pool error = nil")
	}
}
