package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"qrattend/internal/attendance"
	"qrattend/internal/decoder"
	"qrattend/internal/history"
	"qrattend/internal/i18n"
)

type cli struct {
	out        io.Writer
	in         io.Reader
	admin      *attendance.Admin
	reconciler *attendance.Reconciler
	history    history.Store
	loc        *i18n.Localizer
	station    string
	session    string
}

var errUsage = errors.New("unknown command")

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(c.out, usage)
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "events":
		return c.events(ctx)
	case "roster":
		return c.roster(ctx, rest)
	case "toggle":
		return c.toggle(ctx, rest)
	case "reset":
		return c.reset(ctx, rest)
	case "scan":
		return c.scan(ctx, rest)
	case "history":
		return c.historyCmd(ctx, rest)
	case "migrate":
		color.New(color.FgGreen).Fprintln(c.out, "schema is up to date")
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("%w: %s", errUsage, cmd)
	}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.out)
	return fs
}

func (c *cli) events(ctx context.Context) error {
	events, err := c.admin.ListEvents(ctx)
	if err != nil {
		return err
	}
	color.New(color.FgCyan).Fprintln(c.out, "\n=== Events ===")
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"ID", "Title"})
	for _, e := range events {
		table.Append([]string{e.ID, e.Title})
	}
	table.Render()
	return nil
}

func (c *cli) roster(ctx context.Context, args []string) error {
	fs := c.flags("roster")
	eventID := fs.String("event", "", "event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *eventID == "" {
		return errors.New("roster: -event is required")
	}
	roster, err := c.admin.Roster(ctx, *eventID)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Registration", "Email", "Ticket", "Attendance"})
	for _, r := range roster.Registrations {
		table.Append([]string{r.ID, r.Email, fmt.Sprint(r.TicketID), string(r.Attendance)})
	}
	table.Render()
	color.New(color.FgYellow).Fprintln(c.out, c.loc.T("roster_summary", map[string]any{"Present": roster.Present, "Total": roster.Total}))
	return nil
}

func (c *cli) toggle(ctx context.Context, args []string) error {
	fs := c.flags("toggle")
	id := fs.String("id", "", "registration id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	status, err := c.admin.Toggle(ctx, *id)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintln(c.out, c.loc.T("toggle_done", map[string]any{"Attendance": string(status)}))
	return nil
}

func (c *cli) reset(ctx context.Context, args []string) error {
	fs := c.flags("reset")
	eventID := fs.String("event", "", "event id")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *eventID == "" {
		return errors.New("reset: -event is required")
	}
	if !*yes && !c.confirm(fmt.Sprintf("Reset attendance for every registration of event %s?", *eventID)) {
		color.New(color.FgYellow).Fprintln(c.out, "reset cancelled")
		return nil
	}
	if err := c.admin.ResetAll(ctx, *eventID); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintln(c.out, c.loc.T("reset_done", nil))
	return nil
}

func (c *cli) confirm(question string) bool {
	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	sc := bufio.NewScanner(c.in)
	if !sc.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(sc.Text()))
	return answer == "y" || answer == "yes"
}

func (c *cli) scan(ctx context.Context, ids []string) error {
	if len(ids) > 0 {
		for _, id := range ids {
			c.printResult(c.reconciler.ReconcileFor(ctx, c.station, c.session, id))
		}
		return nil
	}
	color.New(color.FgCyan).Fprintln(c.out, "waiting for scans (Ctrl-D to stop)")
	lines, errc := decoder.Lines(ctx, c.in)
	for line := range lines {
		c.printResult(c.reconciler.ReconcileFor(ctx, c.station, c.session, line))
	}
	return <-errc
}

func (c *cli) printResult(res attendance.Result) {
	var msg string
	switch res.Outcome {
	case attendance.Marked:
		msg = c.loc.T("scan_marked", map[string]any{"EventTitle": res.EventTitle})
	case attendance.TransientError:
		msg = c.loc.T("scan_transient_error", map[string]any{"Reason": res.Message})
	default:
		msg = c.loc.T("scan_"+res.Outcome.String(), nil)
	}
	line := fmt.Sprintf("%-36s %s", res.Identifier, msg)
	switch res.Outcome {
	case attendance.Marked:
		color.New(color.FgGreen).Fprintln(c.out, line)
	case attendance.AlreadyMarked:
		color.New(color.FgYellow).Fprintln(c.out, line)
	default:
		color.New(color.FgRed).Fprintln(c.out, line)
	}
}

func (c *cli) historyCmd(ctx context.Context, args []string) error {
	fs := c.flags("history")
	clearAll := fs.Bool("clear", false, "remove every entry")
	del := fs.String("delete", "", "remove one entry by registration id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	switch {
	case *clearAll:
		if !c.confirm("Delete the whole scan history of "+c.station+"?") {
			return nil
		}
		if err := c.history.Clear(ctx, c.station); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(c.out, c.loc.T("history_cleared", nil))
		return nil
	case *del != "":
		return c.history.Delete(ctx, c.station, *del)
	}

	entries, err := c.history.List(ctx, c.station)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(c.out)
	table.SetHeader([]string{"Scanned", "Registration", "Email", "Event"})
	for _, e := range entries {
		table.Append([]string{e.ScannedAt.Local().Format(time.DateTime), e.Identifier, e.Display, e.EventTitle})
	}
	table.Render()
	return nil
}
