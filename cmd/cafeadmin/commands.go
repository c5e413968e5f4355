// cmd/cafeadmin/commands.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/codr1/cafespot/internal/app"
	"github.com/codr1/cafespot/internal/discovery"
	"github.com/codr1/cafespot/internal/onboarding"
	"github.com/codr1/cafespot/internal/reservations"
	"github.com/codr1/cafespot/internal/seating"
)

func newSeating(ctx context.Context, a *app.App, cafeID string) (*seating.Manager, error) {
	m := seating.NewManager(a.API, cafeID, seating.WithStore(a.Store))
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	if _, err := m.RestoreDraft(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func runSeating(ctx context.Context, a *app.App, cafeID string, args []string, out io.Writer) error {
	if len(args) == 0 {
		args = []string{"show"}
	}
	m, err := newSeating(ctx, a, cafeID)
	if err != nil {
		return err
	}

	edited := true
	switch args[0] {
	case "show":
		edited = false
	case "add":
		if len(args) != 2 {
			return usageError("seating add <2|4>")
		}
		size, err := strconv.Atoi(args[1])
		if err != nil {
			return usageError("table size must be 2 or 4")
		}
		if _, err := m.AddTable(size); err != nil {
			return err
		}
	case "remove":
		if _, ok := m.RemoveLastTable(); !ok {
			fmt.Fprintln(out, "No tables to remove.")
			edited = false
		}
	case "set":
		if len(args) != 3 {
			return usageError("seating set <table> <seats>")
		}
		id, err1 := strconv.Atoi(args[1])
		seats, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return usageError("table and seats must be numbers")
		}
		if err := checkSeats(m.Snapshot(), id, seats); err != nil {
			return err
		}
		if err := m.SetSeats(id, seats); err != nil {
			return err
		}
	case "reset":
		if err := m.ResetToBase(); err != nil {
			return err
		}
	case "save":
		if err := m.Save(ctx); err != nil {
			return err
		}
		edited = false
		fmt.Fprintln(out, "Layout saved.")
	case "discard":
		if err := a.Store.DeleteDraft(ctx, cafeID); err != nil {
			return err
		}
		m, err = newSeating(ctx, a, cafeID)
		if err != nil {
			return err
		}
		edited = false
		fmt.Fprintln(out, "Draft discarded.")
	default:
		return usageError(fmt.Sprintf("unknown seating command %q", args[0]))
	}

	if edited {
		if err := m.SaveDraft(ctx); err != nil {
			return fmt.Errorf("store draft: %w", err)
		}
	}
	printLayout(out, m.Snapshot())
	return nil
}

// checkSeats keeps a seat count within the table's size; the manager
// itself stores whatever it is given.
func checkSeats(snap seating.Snapshot, id, seats int) error {
	for _, t := range snap.Tables {
		if t.ID == id {
			if seats < 0 || seats > t.Size {
				return fmt.Errorf("table %d seats %d people; got %d", id, t.Size, seats)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %d", seating.ErrTableNotFound, id)
}

func printLayout(out io.Writer, snap seating.Snapshot) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSIZE\tOCCUPIED")
	for _, t := range snap.Tables {
		fmt.Fprintf(tw, "%d\t%d\t%d\n", t.ID, t.Size, t.Seats)
	}
	tw.Flush()

	state := "saved"
	if snap.Unsaved {
		state = "unsaved"
	}
	fmt.Fprintf(out, "\n%d/%d seats occupied (%d%%), %d tables in use, %d free [%s]\n",
		snap.Occupied, snap.Capacity, snap.OccupancyRate, snap.TablesInUse, snap.TablesAvailable, state)
}

// runDrafts lists the unsaved layouts kept on this device, for every cafe.
func runDrafts(ctx context.Context, a *app.App, out io.Writer) error {
	drafts, err := a.Store.ListDrafts(ctx)
	if err != nil {
		return err
	}
	if len(drafts) == 0 {
		fmt.Fprintln(out, "No unsaved layouts.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CAFE\tTABLES\tSEATS\tUPDATED")
	for _, d := range drafts {
		draft, err := seating.DecodeDraft(d.Payload)
		if err != nil {
			fmt.Fprintf(tw, "%s\t?\t?\t%s\n", d.CafeID, d.UpdatedAt.Local().Format(time.DateTime))
			continue
		}
		snap := draft.Snapshot()
		fmt.Fprintf(tw, "%s\t%d\t%d/%d\t%s\n",
			d.CafeID, len(draft.Tables), snap.Occupied, snap.Capacity, d.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func runHistory(ctx context.Context, a *app.App, cafeID string, out io.Writer) error {
	points, err := seating.NewManager(a.API, cafeID).History(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tLEVEL")
	for _, p := range points {
		fmt.Fprintf(tw, "%s\t%d%%\n", p.At.Local().Format(time.DateTime), p.Level)
	}
	tw.Flush()

	local, err := a.Store.RecentOccupancy(ctx, cafeID, 10)
	if err != nil {
		return err
	}
	if len(local) > 0 {
		fmt.Fprintln(out, "\nRecent syncs from this device:")
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, r := range local {
			fmt.Fprintf(tw, "%s\t%d%%\t%d/%d\tsynced=%t\n", r.RecordedAt.Local().Format(time.DateTime), r.OccupancyRate, r.Occupied, r.Capacity, r.Synced)
		}
		tw.Flush()
	}
	return nil
}

func runBook(ctx context.Context, a *app.App, cafeID string, args []string, out io.Writer) error {
	if len(args) == 0 {
		args = []string{"upcoming"}
	}
	book := reservations.NewCafeBook(a.API, cafeID)
	if err := book.Refresh(ctx); err != nil {
		return err
	}

	var err error
	switch args[0] {
	case "list":
		printReservations(out, book.Reservations())
		return nil
	case "pending":
		printReservations(out, book.Pending())
		return nil
	case "upcoming":
		printReservations(out, book.Upcoming(time.Now()))
		return nil
	case "confirm":
		if len(args) != 2 {
			return usageError("book confirm <id>")
		}
		err = book.Confirm(ctx, args[1])
	case "complete":
		if len(args) != 2 {
			return usageError("book complete <id>")
		}
		err = book.Complete(ctx, args[1])
	case "cancel":
		if len(args) < 3 {
			return usageError("book cancel <id> <reason>")
		}
		err = book.Cancel(ctx, args[1], strings.Join(args[2:], " "))
	default:
		return usageError(fmt.Sprintf("unknown book command %q", args[0]))
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Reservation %s updated.\n", args[1])
	return nil
}

func printReservations(out io.Writer, list []reservations.Reservation) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No reservations.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tTIME\tPARTY\tGUEST\tSTATUS\tNOTE")
	for _, r := range list {
		note := r.SpecialRequest
		if r.CancellationReason != "" {
			note = r.CancellationReason
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID, r.Date.Format(time.DateOnly), r.Time, r.PartySize, r.UserName, r.Status, note)
	}
	tw.Flush()
}

// runWatch polls the reservation book and occupancy until interrupted,
// serving metrics when enabled.
func runWatch(ctx context.Context, a *app.App, cafeID string, out io.Writer) error {
	book := reservations.NewCafeBook(a.API, cafeID)
	m := seating.NewManager(a.API, cafeID)

	var lastPending string
	stopBook, err := discovery.Watch(ctx, a.Scheduler, "book_poll", a.Config.Polling.DetailInterval, func(ctx context.Context) error {
		if err := book.Refresh(ctx); err != nil {
			return err
		}
		pending := book.Pending()
		ids := make([]string, len(pending))
		for i, r := range pending {
			ids[i] = r.ID
		}
		if key := strings.Join(ids, ","); key != lastPending {
			lastPending = key
			fmt.Fprintf(out, "[%s] %d pending reservation(s)\n", time.Now().Format(time.TimeOnly), len(pending))
			printReservations(out, pending)
		}
		return nil
	})
	if err != nil {
		return err
	}
	defer stopBook()

	stopOccupancy, err := discovery.Watch(ctx, a.Scheduler, "occupancy_poll", a.Config.Polling.FeedInterval, func(ctx context.Context) error {
		if err := m.Load(ctx); err != nil {
			return err
		}
		snap := m.Snapshot()
		fmt.Fprintf(out, "[%s] occupancy %d%% (%d/%d)\n", time.Now().Format(time.TimeOnly), snap.OccupancyRate, snap.Occupied, snap.Capacity)
		return nil
	})
	if err != nil {
		return err
	}
	defer stopOccupancy()

	a.Scheduler.Start()

	g, ctx := errgroup.WithContext(ctx)
	if a.Config.Features.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: a.Config.Features.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

func runOnboard(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		args = []string{"status"}
	}
	svc := onboarding.NewService(a.API, a.Users)

	switch args[0] {
	case "status":
		res, err := svc.ResolveOwnerCafe(ctx)
		if errors.Is(err, onboarding.ErrNoCafe) {
			fmt.Fprintln(out, "No cafe registered yet.")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%s)\nonboarding complete: %t\n", res.Cafe.Name, res.Cafe.ID, !res.NeedsOnboarding)
		return nil

	case "submit":
		fs := flag.NewFlagSet("onboard submit", flag.ContinueOnError)
		fs.SetOutput(out)
		var form onboarding.Application
		var amenities string
		fs.StringVar(&form.Name, "name", "", "Cafe name")
		fs.StringVar(&form.Description, "description", "", "Short description")
		fs.StringVar(&form.Address, "address", "", "Street address")
		fs.StringVar(&form.City, "city", "", "City")
		fs.StringVar(&form.PhoneNumber, "phone", "", "Contact phone number")
		fs.StringVar(&form.WebsiteLink, "website", "", "Website URL")
		fs.StringVar(&form.InstagramURL, "instagram", "", "Instagram URL")
		fs.Float64Var(&form.Latitude, "lat", 0, "Latitude")
		fs.Float64Var(&form.Longitude, "lng", 0, "Longitude")
		fs.IntVar(&form.TwoTables, "two-tables", 0, "Number of two-seat tables")
		fs.IntVar(&form.FourTables, "four-tables", 0, "Number of four-seat tables")
		fs.StringVar(&amenities, "amenities", "", "Comma-separated amenities")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err.Error())
		}
		for _, item := range strings.Split(amenities, ",") {
			if item = strings.TrimSpace(item); item != "" {
				form.Amenities = append(form.Amenities, item)
			}
		}
		cafe, err := svc.Submit(ctx, form)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Registered %s (%s).\n", cafe.Name, cafe.ID)
		return nil

	case "complete":
		res, err := svc.ResolveOwnerCafe(ctx)
		if err != nil {
			return err
		}
		if err := svc.Complete(ctx, res.Cafe.ID); err != nil {
			return err
		}
		fmt.Fprintln(out, "Onboarding complete.")
		return nil

	default:
		return usageError(fmt.Sprintf("unknown onboard command %q", args[0]))
	}
}
