package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/docker/go-units"

	"github.com/meigma/studycache"
)

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string, out io.Writer) error
}

var commands = map[string]command{
	"stats":        {"print usage against the effective budget", runStats},
	"list":         {"list cached sets", runList},
	"add":          {"add or update a set", runAdd},
	"pin":          {"toggle the pin on a set", runPin},
	"archive":      {"archive a set", runArchive},
	"stale":        {"list stale sets", runStale},
	"expire-stale": {"remove stale sets", runExpireStale},
	"clear":        {"remove every set", runClear},
}

func commandNames() string {
	return strings.Join(slices.Sorted(maps.Keys(commands)), ", ")
}

// parse parses command flags and rejects stray positional arguments.
func parse(fs *flag.FlagSet, args []string, out io.Writer) error {
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(out, "unexpected arguments: %s\n", strings.Join(fs.Args(), " "))
		return errUsage
	}
	return nil
}

func runStats(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	if err := parse(fs, args, out); err != nil {
		return err
	}

	s := a.manager.Stats(ctx)
	free := "unknown"
	if s.FreeSpaceKnown {
		free = units.BytesSize(s.FreeSpaceGB * units.GiB)
	}
	fmt.Fprintf(out, "sets:        %d / %d\n", s.TotalSets, a.manager.Limits().MaxSets)
	fmt.Fprintf(out, "items:       %d / %d\n", s.TotalItems, a.manager.Limits().MaxItems)
	fmt.Fprintf(out, "bytes:       %s / %s (%.1f%%)\n",
		units.BytesSize(float64(s.TotalBytes)),
		units.BytesSize(float64(s.BudgetMB)*units.MiB),
		s.Usage*100)
	fmt.Fprintf(out, "free space:  %s\n", free)
	if s.Warning {
		fmt.Fprintln(out, "warning:     storage is nearly full")
	}
	return nil
}

func runList(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	if err := parse(fs, args, out); err != nil {
		return err
	}
	sets := a.manager.Sets()
	slices.SortFunc(sets, func(x, y studycache.SetRecord) int {
		return y.LastOpenedAt.Compare(x.LastOpenedAt)
	})
	printSets(out, sets)
	return nil
}

func runAdd(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	id := fs.String("id", "", "set id (required)")
	title := fs.String("title", "", "set title")
	size := fs.String("bytes", "0", "content size, e.g. 12MiB")
	items := fs.Int64("items", 0, "number of items")
	studied := fs.String("studied", "", "last studied time (RFC 3339)")
	if err := parse(fs, args, out); err != nil {
		return err
	}
	if *id == "" {
		fmt.Fprintln(out, "add: -id is required")
		return errUsage
	}
	n, err := units.RAMInBytes(*size)
	if err != nil {
		return fmt.Errorf("parse -bytes: %w", err)
	}
	rec := studycache.SetRecord{ID: *id, Title: *title, Bytes: n, Items: *items}
	if existing, ok := a.manager.Get(*id); ok {
		rec.Pinned = existing.Pinned
		rec.Archived = existing.Archived
		rec.LastStudied = existing.LastStudied
		if rec.Title == "" {
			rec.Title = existing.Title
		}
	}
	if *studied != "" {
		if rec.LastStudied, err = time.Parse(time.RFC3339, *studied); err != nil {
			return fmt.Errorf("parse -studied: %w", err)
		}
	}

	report, err := a.manager.AddOrUpdateSet(ctx, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "stored %s (%s, %d items)\n", rec.ID, units.BytesSize(float64(n)), rec.Items)
	for _, ev := range report.Evicted {
		fmt.Fprintf(out, "evicted %s (%s)\n", ev.ID, units.BytesSize(float64(ev.Bytes)))
	}
	if report.OverLimit() {
		fmt.Fprintln(out, "still over limit: remaining sets are pinned or archived")
	}
	return nil
}

// idCommand parses the single -id flag shared by several commands.
func idCommand(name string, args []string, out io.Writer) (string, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	id := fs.String("id", "", "set id (required)")
	if err := parse(fs, args, out); err != nil {
		return "", err
	}
	if *id == "" {
		fmt.Fprintf(out, "%s: -id is required\n", name)
		return "", errUsage
	}
	return *id, nil
}

func runPin(ctx context.Context, a *app, args []string, out io.Writer) error {
	id, err := idCommand("pin", args, out)
	if err != nil {
		return err
	}
	pinned, err := a.manager.TogglePin(ctx, id)
	if err != nil {
		return err
	}
	if pinned {
		fmt.Fprintf(out, "pinned %s\n", id)
	} else {
		fmt.Fprintf(out, "unpinned %s\n", id)
	}
	return nil
}

func runArchive(ctx context.Context, a *app, args []string, out io.Writer) error {
	id, err := idCommand("archive", args, out)
	if err != nil {
		return err
	}
	if err := a.manager.ArchiveSet(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(out, "archived %s\n", id)

	if a.dispatcher == nil {
		return nil
	}
	rec, ok := a.manager.Get(id)
	if ok && a.dispatcher.Enqueue(rec) {
		fmt.Fprintf(out, "upload queued to %s\n", a.cfg.Archive.Repository)
	}
	return nil
}

func runStale(_ context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stale", flag.ContinueOnError)
	if err := parse(fs, args, out); err != nil {
		return err
	}
	printSets(out, a.manager.StaleSets())
	return nil
}

func runExpireStale(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("expire-stale", flag.ContinueOnError)
	if err := parse(fs, args, out); err != nil {
		return err
	}
	removed := a.manager.ExpireStale(ctx)
	for _, rec := range removed {
		fmt.Fprintf(out, "expired %s\n", rec.ID)
	}
	fmt.Fprintf(out, "%d stale sets removed\n", len(removed))
	return nil
}

func runClear(ctx context.Context, a *app, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("clear", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm removal of every set")
	if err := parse(fs, args, out); err != nil {
		return err
	}
	if !*yes {
		fmt.Fprintln(out, "clear: pass -yes to remove every set")
		return errUsage
	}
	a.manager.ClearAll(ctx)
	fmt.Fprintln(out, "cleared")
	return nil
}

func printSets(out io.Writer, sets []studycache.SetRecord) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSIZE\tITEMS\tFLAGS\tLAST OPENED")
	for _, s := range sets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Title, units.BytesSize(float64(s.Bytes)), s.Items, flags(s), opened(s.LastOpenedAt))
	}
	_ = tw.Flush()
}

func flags(s studycache.SetRecord) string {
	var f []string
	if s.Pinned {
		f = append(f, "pinned")
	}
	if s.Archived {
		f = append(f, "archived")
	}
	if len(f) == 0 {
		return "-"
	}
	return strings.Join(f, ",")
}

func opened(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return units.HumanDuration(time.Since(t)) + " ago"
}
