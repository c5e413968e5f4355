// cmd/cafeadmin/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/codr1/cafespot/internal/app"
	"github.com/codr1/cafespot/internal/onboarding"
)

const usage = `usage: cafeadmin [flags] <command> [args]

commands:
  seating show | add <2|4> | remove | set <table> <seats> | reset | save | discard
  drafts
  history
  book list | pending | upcoming | confirm <id> | complete <id> | cancel <id> <reason>
  onboard status | submit [flags] | complete
  watch

flags:
`

func main() {
	fs := flag.NewFlagSet("cafeadmin", flag.ExitOnError)
	var (
		configPath = fs.String("config", "config.yaml", "Path to the configuration file")
		userSub    = fs.String("sub", os.Getenv("CAFESPOT_USER_SUB"), "Act as this user when no user pool is configured")
		username   = fs.String("user", os.Getenv("CAFESPOT_USERNAME"), "User pool username (email or phone)")
		cafeID     = fs.String("cafe", "", "Cafe id (defaults to the signed-in owner's cafe)")
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

	a, err := app.New(ctx, app.Options{
		ConfigPath: *configPath,
		Username:   *username,
		Password:   os.Getenv("CAFESPOT_PASSWORD"),
		UserSub:    *userSub,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	if err := run(ctx, a, *cafeID, fs.Args(), os.Stdout); err != nil {
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

// run dispatches one command. cafeID may be empty for commands that work
// on the owner's cafe.
func run(ctx context.Context, a *app.App, cafeID string, args []string, out io.Writer) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "onboard":
		return runOnboard(ctx, a, rest, out)
	case "drafts":
		return runDrafts(ctx, a, out)
	}

	if cafeID == "" {
		res, err := onboarding.NewService(a.API, a.Users).ResolveOwnerCafe(ctx)
		if errors.Is(err, onboarding.ErrNoCafe) {
			return fmt.Errorf("no cafe registered yet; run 'cafeadmin onboard submit'")
		}
		if err != nil {
			return err
		}
		cafeID = res.Cafe.ID
	}

	switch cmd {
	case "seating":
		return runSeating(ctx, a, cafeID, rest, out)
	case "history":
		return runHistory(ctx, a, cafeID, out)
	case "book":
		return runBook(ctx, a, cafeID, rest, out)
	case "watch":
		return runWatch(ctx, a, cafeID, out)
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
}
