package onboarding

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/codr1/cafespot/internal/authz"
	"github.com/codr1/cafespot/internal/testutil"
)

var owner = authz.Static{User: &authz.User{Sub: "owner-1"}}

func validApplication() Application {
	return Application{
		Name:        "Kava",
		Description: "Small roastery",
		Address:     "1 Main St",
		City:        "Brooklyn",
		PhoneNumber: "(201) 555-0123",
		Latitude:    40.68,
		Longitude:   -73.97,
		TwoTables:   3,
		FourTables:  2,
		Amenities:   []string{"wifi", "outlets"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Application)
		field  string
	}{
		{"valid", func(*Application) {}, ""},
		{"missing name", func(a *Application) { a.Name = " " }, "name"},
		{"missing city", func(a *Application) { a.City = "" }, "city"},
		{"latitude", func(a *Application) { a.Latitude = 91 }, "latitude"},
		{"longitude", func(a *Application) { a.Longitude = -181 }, "longitude"},
		{"description", func(a *Application) { a.Description = strings.Repeat("é", MaxDescriptionLength+1) }, "description"},
		{"description at limit", func(a *Application) { a.Description = strings.Repeat("é", MaxDescriptionLength) }, ""},
		{"negative tables", func(a *Application) { a.FourTables = -1 }, "four_tables"},
		{"bad phone", func(a *Application) { a.PhoneNumber = "123" }, "phone_number"},
		{"bad website", func(a *Application) { a.WebsiteLink = "kava.example" }, "website_link"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := validApplication()
			tt.mutate(&app)
			err := app.Validate()
			if tt.field == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidApplication) {
				t.Fatalf("Validate() error = %v, want ErrInvalidApplication", err)
			}
			var fe FieldError
			if !errors.As(err, &fe) || fe.Field != tt.field {
				t.Errorf("Validate() field = %q, want %q", fe.Field, tt.field)
			}
		})
	}
}

func TestResolveAndSubmit(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	ctx := context.Background()
	svc := NewService(client, owner)

	res, err := svc.ResolveOwnerCafe(ctx)
	if !errors.Is(err, ErrNoCafe) || !res.NeedsOnboarding || res.Cafe != nil {
		t.Fatalf("ResolveOwnerCafe() = %+v, %v, want ErrNoCafe", res, err)
	}

	app := validApplication()
	app.CafePhotos = nil
	cafe, err := svc.Submit(ctx, app)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if cafe.PhoneNumber != "+12015550123" || cafe.TwoTables == nil || *cafe.TwoTables != 3 {
		t.Errorf("Submit() = %+v", cafe)
	}

	res, err = svc.ResolveOwnerCafe(ctx)
	if err != nil || res.Cafe == nil || res.Cafe.ID != cafe.ID || res.NeedsOnboarding {
		t.Errorf("ResolveOwnerCafe() after submit = %+v, %v", res, err)
	}

	stub.PutCafe(map[string]any{"id": "half", "cognito_sub": "owner-2", "onboarding_completed": false})
	other := NewService(client, authz.Static{User: &authz.User{Sub: "owner-2"}})
	res, err = other.ResolveOwnerCafe(ctx)
	if err != nil || !res.NeedsOnboarding {
		t.Errorf("ResolveOwnerCafe() for unfinished cafe = %+v, %v", res, err)
	}
	if err := other.Complete(ctx, "half"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if res, _ := other.ResolveOwnerCafe(ctx); res.NeedsOnboarding {
		t.Error("NeedsOnboarding still set after Complete()")
	}
}

func TestSubmitRejectsInvalidWithoutRequest(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	app := validApplication()
	app.Name = ""
	if _, err := NewService(client, owner).Submit(context.Background(), app); !errors.Is(err, ErrInvalidApplication) {
		t.Errorf("Submit() error = %v, want ErrInvalidApplication", err)
	}
	if got := len(stub.RequestsTo(http.MethodPost, "/cafes")); got != 0 {
		t.Errorf("POST /cafes count = %d, want 0", got)
	}
}

func TestResolveFailure(t *testing.T) {
	stub, client := testutil.NewStubBackend(t)
	stub.FailNext(http.MethodGet, "/cafes/owner/{userId}", http.StatusInternalServerError, "db down")
	_, err := NewService(client, owner).ResolveOwnerCafe(context.Background())
	if err == nil || errors.Is(err, ErrNoCafe) {
		t.Errorf("ResolveOwnerCafe() error = %v, want a real failure", err)
	}
}
