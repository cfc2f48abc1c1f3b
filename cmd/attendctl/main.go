// Command attendctl is the operator console for scan stations and event admins.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"qrattend/internal/app"
	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/i18n"
)

const usage = `usage: attendctl <command> [flags]

commands:
  events                    list events, newest first
  roster -event ID          accepted registrations of an event
  toggle -id ID             flip attendance of one registration
  reset -event ID [-yes]    set every registration of an event to Absent
  scan [ID...]              reconcile ids, or scanner lines from stdin
  history [-clear] [-delete ID]
  migrate                   apply database migrations
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		color.Red("config: %v", err)
		os.Exit(1)
	}
	if os.Args[1] == "migrate" {
		cfg.MigrateOnStart = true
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		color.Red("startup failed: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	reconciler, err := a.NewReconciler(nil)
	if err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}

	c := &cli{
		out:        os.Stdout,
		in:         os.Stdin,
		admin:      attendance.NewAdmin(a.Repo, logger),
		reconciler: reconciler,
		history:    a.History,
		loc:        i18n.NewTranslator(cfg.DefaultLocale).For(""),
		station:    station(cfg),
		session:    uuid.NewString(),
	}
	if err := c.run(ctx, os.Args[1:]); err != nil {
		color.Red("%v", err)
		os.Exit(1)
	}
}

// station names the history this console reads and writes. STATION_ID wins,
// then the host name.
func station(cfg config.App) string {
	if cfg.StationID != "" {
		return cfg.StationID
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "attendctl"
}
