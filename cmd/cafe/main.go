// cmd/cafe/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/app"
)

const usage = `usage: cafe [flags] <command> [args]

commands:
  feed [-lat -lng -radius -min-rating -occupancy -amenities]
  cafe <id>
  reserve <cafe> <YYYY-MM-DD> <time> <party> [request...]
  reservations
  cancel <reservation>
  save <cafe>
  saved
  checkin <cafe>
  checkins
  story [-vibe -purpose] <cafe> <photo>
  stories
  review <cafe> <1-5> [text...]
  profile | profile username <name> | profile delete
  signup <username> | confirm <username> <code>

flags:
`

func main() {
	fs := flag.NewFlagSet("cafe", flag.ExitOnError)
	var (
		configPath = fs.String("config", "config.yaml", "Path to the configuration file")
		userSub    = fs.String("sub", os.Getenv("CAFESPOT_USER_SUB"), "Act as this user when no user pool is configured")
		username   = fs.String("user", os.Getenv("CAFESPOT_USERNAME"), "User pool username (email or phone)")
	)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := app.Options{ConfigPath: *configPath, UserSub: *userSub}
	// Registration commands run signed out.
	if cmd := fs.Arg(0); cmd != "signup" && cmd != "confirm" {
		opts.Username = *username
		opts.Password = os.Getenv("CAFESPOT_PASSWORD")
	}
	a, err := app.New(ctx, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	if err := run(ctx, a, fs.Args(), os.Stdout); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(os.Stderr, err)
			fs.Usage()
			os.Exit(2)
		}
		log.Error().Err(err).Msg("Command failed")
		a.Close()
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string { return string(e) }
