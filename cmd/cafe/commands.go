// cmd/cafe/commands.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/codr1/cafespot/internal/apiclient"
	"github.com/codr1/cafespot/internal/app"
	"github.com/codr1/cafespot/internal/checkin"
	"github.com/codr1/cafespot/internal/discovery"
	"github.com/codr1/cafespot/internal/posts"
	"github.com/codr1/cafespot/internal/profile"
	"github.com/codr1/cafespot/internal/reservations"
	"github.com/codr1/cafespot/internal/saved"
)

func run(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "feed":
		return runFeed(ctx, a, rest, out)
	case "cafe":
		if len(rest) != 1 {
			return usageError("cafe <id>")
		}
		return runDetail(ctx, a, rest[0], out)
	case "reserve", "reservations", "cancel":
		return runReservations(ctx, a, cmd, rest, out)
	case "save", "saved":
		return runSaved(ctx, a, cmd, rest, out)
	case "checkin", "checkins":
		return runCheckIn(ctx, a, cmd, rest, out)
	case "story", "stories", "review":
		return runPosts(ctx, a, cmd, rest, out)
	case "profile":
		return runProfile(ctx, a, rest, out)
	case "signup", "confirm":
		return runRegistration(ctx, a, cmd, rest, out)
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
}

func runFeed(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	fs.SetOutput(out)
	var (
		lat       = fs.Float64("lat", 0, "Your latitude")
		lng       = fs.Float64("lng", 0, "Your longitude")
		radius    = fs.Float64("radius", 0, "Only cafes within this many km")
		minRating = fs.Float64("min-rating", 0, "Only cafes rated at least this")
		occupancy = fs.String("occupancy", "", "Comma-separated levels: low, moderate, high")
		amenities = fs.String("amenities", "", "Comma-separated amenities every cafe must have")
	)
	if err := fs.Parse(args); err != nil {
		return usageError(err.Error())
	}

	feed := discovery.NewFeed(a.API)
	locate := false
	fs.Visit(func(f *flag.Flag) { locate = locate || f.Name == "lat" || f.Name == "lng" })
	if locate {
		feed.SetOrigin(discovery.Point{Lat: *lat, Lng: *lng})
	}
	filter := discovery.Filter{RadiusKm: *radius, MinRating: *minRating, Amenities: splitList(*amenities)}
	for _, level := range splitList(*occupancy) {
		switch strings.ToLower(level) {
		case "low":
			filter.Occupancy = append(filter.Occupancy, discovery.Low)
		case "moderate":
			filter.Occupancy = append(filter.Occupancy, discovery.Moderate)
		case "high":
			filter.Occupancy = append(filter.Occupancy, discovery.High)
		default:
			return usageError(fmt.Sprintf("unknown occupancy level %q", level))
		}
	}
	feed.SetFilter(filter)

	if err := feed.Refresh(ctx); err != nil {
		return err
	}
	cards := feed.Cards()
	if len(cards) == 0 {
		fmt.Fprintln(out, "No cafes match.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDISTANCE\tRATING\tBUSY\tSTORY")
	for _, c := range cards {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s (%d%%)\t%s\n",
			c.ID, c.Name, formatDistance(c.DistanceKm), formatRating(c.Rating), c.Occupancy, c.OccupancyLevel, yesNo(c.HasStory))
	}
	return tw.Flush()
}

func runDetail(ctx context.Context, a *app.App, cafeID string, out io.Writer) error {
	d, err := discovery.LoadDetail(ctx, a.API, cafeID, nil)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n%s, %s\nRating: %s  Busy: %s (%d%%)  Seats: %d\n",
		d.Cafe.Name, d.Cafe.Address, d.Cafe.City, formatRating(d.Card.Rating), d.Card.Occupancy, d.Card.OccupancyLevel, d.Card.Seats)
	if len(d.Card.Amenities) > 0 {
		fmt.Fprintf(out, "Amenities: %s\n", strings.Join(d.Card.Amenities, ", "))
	}
	if len(d.Stories) > 0 {
		fmt.Fprintf(out, "\n%d live update(s):\n", len(d.Stories))
		for _, s := range d.Stories {
			fmt.Fprintf(out, "  %s %s %s\n", s.CreatedAt.Local().Format(time.TimeOnly), s.Vibe, s.ImageURL)
		}
	}
	if len(d.Reviews) > 0 {
		fmt.Fprintf(out, "\nReviews:\n")
		for _, r := range d.Reviews {
			fmt.Fprintf(out, "  %d/5 %s: %s\n", r.Rating, r.Username, r.ReviewText)
		}
	}
	return nil
}

func runReservations(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	m := reservations.NewManager(a.API, a.Users)
	switch cmd {
	case "reserve":
		if len(args) < 4 {
			return usageError("reserve <cafe> <YYYY-MM-DD> <time> <party> [request...]")
		}
		date, err := time.ParseInLocation(time.DateOnly, args[1], time.Local)
		if err != nil {
			return usageError("date must be YYYY-MM-DD")
		}
		party, err := strconv.Atoi(args[3])
		if err != nil {
			return usageError("party must be a number")
		}
		booking := reservations.Booking{
			CafeID:         args[0],
			Date:           date,
			Time:           args[2],
			PartySize:      party,
			SpecialRequest: strings.Join(args[4:], " "),
		}
		if err := m.Reserve(ctx, booking); err != nil {
			return userError(err)
		}
		fmt.Fprintln(out, "Reservation requested.")
	case "cancel":
		if len(args) != 1 {
			return usageError("cancel <reservation>")
		}
		if err := m.Cancel(ctx, args[0]); err != nil {
			return userError(err)
		}
		fmt.Fprintln(out, "Reservation cancelled.")
	default:
		if err := m.Refresh(ctx); err != nil {
			return err
		}
	}

	list := m.Reservations()
	if len(list) == 0 {
		fmt.Fprintln(out, "No reservations.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAFE\tDATE\tTIME\tPARTY\tSTATUS")
	for _, r := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", r.ID, r.CafeName, r.Date.Format(time.DateOnly), r.Time, r.PartySize, r.Status)
	}
	return tw.Flush()
}

func runSaved(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	m := saved.NewManager(a.API, a.Users)
	if err := m.Load(ctx); err != nil {
		return err
	}
	if cmd == "save" {
		if len(args) != 1 {
			return usageError("save <cafe>")
		}
		cafe, err := a.API.GetCafe(ctx, args[0])
		if err != nil {
			return userError(err)
		}
		entry := saved.Cafe{ID: cafe.ID, Name: cafe.Name, Address: cafe.Address}
		if len(cafe.CafePhotos) > 0 {
			entry.Image = cafe.CafePhotos[0]
		}
		if err := m.Toggle(ctx, entry); err != nil {
			return userError(err)
		}
		if m.IsSaved(cafe.ID) {
			fmt.Fprintf(out, "Saved %s.\n", cafe.Name)
		} else {
			fmt.Fprintf(out, "Removed %s from saved cafes.\n", cafe.Name)
		}
		return nil
	}

	cafes := m.Cafes()
	if len(cafes) == 0 {
		fmt.Fprintln(out, "No saved cafes.")
		return nil
	}
	for _, c := range cafes {
		fmt.Fprintf(out, "%s\t%s\t%s\n", c.ID, c.Name, c.Address)
	}
	return nil
}

func loadCheckIns(ctx context.Context, a *app.App) (*checkin.Manager, error) {
	m := checkin.NewManager(a.API, a.Users)
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func runCheckIn(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	m, err := loadCheckIns(ctx, a)
	if err != nil {
		return err
	}
	if cmd == "checkin" {
		if len(args) != 1 {
			return usageError("checkin <cafe>")
		}
		if err := m.AddCheckIn(ctx, args[0]); err != nil {
			return userError(err)
		}
		fmt.Fprintln(out, "Checked in.")
		return nil
	}
	ids := m.CheckIns()
	if len(ids) == 0 {
		fmt.Fprintln(out, "No check-ins today.")
		return nil
	}
	fmt.Fprintln(out, strings.Join(ids, "\n"))
	return nil
}

func runPosts(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	checkins, err := loadCheckIns(ctx, a)
	if err != nil {
		return err
	}
	svc := posts.NewService(a.API, a.Users, checkins)

	switch cmd {
	case "story":
		fs := flag.NewFlagSet("story", flag.ContinueOnError)
		fs.SetOutput(out)
		vibe := fs.String("vibe", "", "How the place feels right now")
		purpose := fs.String("purpose", "", "Why you are here")
		if err := fs.Parse(args); err != nil {
			return usageError(err.Error())
		}
		if fs.NArg() != 2 {
			return usageError("story [-vibe -purpose] <cafe> <photo>")
		}
		photo, err := os.Open(fs.Arg(1))
		if err != nil {
			return err
		}
		defer photo.Close()
		err = svc.PostStory(ctx, posts.Story{
			CafeID:       fs.Arg(0),
			Vibe:         *vibe,
			VisitPurpose: *purpose,
			Filename:     filepath.Base(fs.Arg(1)),
			Body:         photo,
		})
		if err != nil {
			return userError(err)
		}
		fmt.Fprintln(out, "Story posted.")

	case "stories":
		stories, err := svc.MyStories(ctx)
		if err != nil {
			return err
		}
		if len(stories) == 0 {
			fmt.Fprintln(out, "No active stories.")
		}
		for _, s := range stories {
			fmt.Fprintf(out, "%s\t%s\texpires %s\n", s.CafeName, s.Vibe, s.ExpiresAt.Local().Format(time.DateTime))
		}

	case "review":
		if len(args) < 2 {
			return usageError("review <cafe> <1-5> [text...]")
		}
		rating, err := strconv.Atoi(args[1])
		if err != nil {
			return usageError("rating must be a number from 1 to 5")
		}
		if err := svc.PostReview(ctx, args[0], rating, strings.Join(args[2:], " ")); err != nil {
			return userError(err)
		}
		fmt.Fprintln(out, "Review posted.")
	}
	return nil
}

func runProfile(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	var opts []profile.Option
	if a.Identity != nil {
		opts = append(opts, profile.WithAttributes(a.Identity))
	}
	m := profile.NewManager(a.API, a.Users, opts...)
	if err := m.Load(ctx); err != nil {
		return err
	}

	if len(args) > 0 {
		switch args[0] {
		case "username":
			if len(args) != 2 {
				return usageError("profile username <name>")
			}
			if err := m.UpdateUsername(ctx, args[1]); err != nil {
				return userError(err)
			}
		case "delete":
			if err := m.Delete(ctx); err != nil {
				return userError(err)
			}
			fmt.Fprintln(out, "Profile deleted.")
			return nil
		default:
			return usageError(fmt.Sprintf("unknown profile command %q", args[0]))
		}
	}

	p, _ := m.Profile()
	fmt.Fprintf(out, "%s <%s>\nSaved cafes: %d  Reviews: %d  Check-ins: %d\n",
		p.Username, p.Email, p.SavedCount, p.TotalReviews, p.TotalCheckIns)
	return nil
}

func runRegistration(ctx context.Context, a *app.App, cmd string, args []string, out io.Writer) error {
	if a.Identity == nil {
		return errors.New("no user pool configured")
	}
	switch cmd {
	case "signup":
		if len(args) != 1 {
			return usageError("signup <username>")
		}
		res, err := a.Identity.SignUp(ctx, args[0], os.Getenv("CAFESPOT_PASSWORD"), nil)
		if err != nil {
			return err
		}
		if res.Confirmed {
			fmt.Fprintln(out, "Account created.")
		} else {
			fmt.Fprintln(out, "Account created; enter the code we sent you with 'cafe confirm'.")
		}
	case "confirm":
		if len(args) != 2 {
			return usageError("confirm <username> <code>")
		}
		if err := a.Identity.ConfirmSignUp(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(out, "Account confirmed.")
	}
	return nil
}

// userError replaces a backend error with the message the server gave.
func userError(err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiclient.ErrorMessage(err))
	}
	return err
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func formatDistance(km *float64) string {
	if km == nil {
		return "-"
	}
	if *km < 1 {
		return fmt.Sprintf("%.0f m", *km*1000)
	}
	return fmt.Sprintf("%.1f km", *km)
}

func formatRating(r *float64) string {
	if r == nil {
		return "new"
	}
	return fmt.Sprintf("%.1f", *r)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}
