package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"qrattend/internal/attendance"
	"qrattend/internal/history"
	"qrattend/internal/i18n"
	"qrattend/internal/store"
)

type cliFixture struct {
	cli   *cli
	out   *bytes.Buffer
	repo  *attendance.Repository
	event attendance.Event
	regs  []attendance.Registration
}

func newCLI(t *testing.T, stdin string) *cliFixture {
	t.Helper()
	color.NoColor = true
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.NewDB(ctx, "sqlite", filepath.Join(t.TempDir(), "attend.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := store.Migrate(db.Client, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	hist, err := history.OpenSQLite(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	repo := attendance.NewRepository(db.Client, "sqlite")
	rec, err := attendance.NewReconciler(repo, attendance.Options{Recorder: hist, Logger: logger})
	if err != nil {
		t.Fatalf("reconciler: %v", err)
	}

	f := &cliFixture{out: &bytes.Buffer{}, repo: repo}
	f.event, _ = repo.InsertEvent(ctx, "Tech Fest")
	for _, email := range []string{"amy@example.com", "bob@example.com"} {
		reg, err := repo.InsertRegistration(ctx, attendance.Registration{EventID: f.event.ID, EventTitle: "Tech Fest", Email: email, Approval: attendance.Accepted})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		f.regs = append(f.regs, reg)
	}
	f.cli = &cli{
		out:        f.out,
		in:         strings.NewReader(stdin),
		admin:      attendance.NewAdmin(repo, logger),
		reconciler: rec,
		history:    hist,
		loc:        i18n.NewTranslator("en").For(""),
		station:    "desk-1",
		session:    "cli-test",
	}
	return f
}

func TestScanFromStdin(t *testing.T) {
	f := newCLI(t, "")
	f.cli.in = strings.NewReader(f.regs[0].ID + "\n\n" + f.regs[0].ID + "\nnope\n")

	if err := f.cli.run(context.Background(), []string{"scan"}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	out := f.out.String()
	for _, want := range []string{
		"Attendance marked for Tech Fest",
		"Attendance has already been marked for this registration",
		"Registration not found",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}

	f.out.Reset()
	if err := f.cli.run(context.Background(), []string{"history"}); err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(f.out.String(), "amy@example.com") {
		t.Fatalf("history missing entry:\n%s", f.out.String())
	}
}

func TestRosterAndToggle(t *testing.T) {
	f := newCLI(t, "")
	ctx := context.Background()

	if err := f.cli.run(ctx, []string{"scan", f.regs[1].ID}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if err := f.cli.run(ctx, []string{"toggle", "-id", f.regs[0].ID}); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !strings.Contains(f.out.String(), "Attendance is now Present") {
		t.Fatalf("unexpected toggle output:\n%s", f.out.String())
	}

	f.out.Reset()
	if err := f.cli.run(ctx, []string{"roster", "-event", f.event.ID}); err != nil {
		t.Fatalf("roster: %v", err)
	}
	if !strings.Contains(f.out.String(), "Present: 2 / 2") {
		t.Fatalf("unexpected roster:\n%s", f.out.String())
	}

	if err := f.cli.run(ctx, []string{"roster"}); err == nil {
		t.Fatal("roster without -event should fail")
	}
}

func TestResetPrompts(t *testing.T) {
	f := newCLI(t, "n\n")
	ctx := context.Background()
	if err := f.cli.run(ctx, []string{"scan", f.regs[0].ID}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if err := f.cli.run(ctx, []string{"reset", "-event", f.event.ID}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(f.out.String(), "reset cancelled") {
		t.Fatalf("expected cancellation:\n%s", f.out.String())
	}
	if status, _ := f.repo.AttendanceOf(ctx, f.regs[0].ID); status != attendance.Present {
		t.Fatal("declined reset must not change attendance")
	}

	if err := f.cli.run(ctx, []string{"reset", "-event", f.event.ID, "-yes"}); err != nil {
		t.Fatalf("reset -yes: %v", err)
	}
	if status, _ := f.repo.AttendanceOf(ctx, f.regs[0].ID); status != attendance.Absent {
		t.Fatal("confirmed reset should set Absent")
	}
}

func TestEventsAndUnknownCommand(t *testing.T) {
	f := newCLI(t, "")
	if err := f.cli.run(context.Background(), []string{"events"}); err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(f.out.String(), "Tech Fest") {
		t.Fatalf("events missing title:\n%s", f.out.String())
	}
	if err := f.cli.run(context.Background(), []string{"frobnicate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestHistoryBelongsToStation(t *testing.T) {
	f := newCLI(t, "")
	ctx := context.Background()
	if err := f.cli.run(ctx, []string{"scan", f.regs[0].ID}); err != nil {
		t.Fatalf("scan: %v", err)
	}

	other := *f.cli
	other.station = "desk-2"
	other.in = strings.NewReader("y\n")
	if err := other.run(ctx, []string{"history", "-clear"}); err != nil {
		t.Fatalf("clear: %v", err)
	}

	entries, err := f.cli.history.List(ctx, "desk-1")
	if err != nil || len(entries) != 1 || entries[0].Station != "desk-1" {
		t.Fatalf("desk-1 history should survive desk-2's clear: %+v %v", entries, err)
	}
	if err := other.run(ctx, []string{"roster", "-event", "00000000-0000-0000-0000-000000000000"}); !errors.Is(err, attendance.ErrEventNotFound) {
		t.Fatalf("expected unknown event error, got %v", err)
	}
}
