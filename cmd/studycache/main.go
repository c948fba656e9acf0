// Command studycache inspects and maintains the local study-set cache.
//
//	studycache [-config file] [-fgprof file] <command> [flags]
//
// Commands:
//
//	stats          print usage against the effective budget
//	list           list cached sets, most recently opened first
//	add            add or update a set and enforce the limits
//	pin            toggle the pin on a set
//	archive        archive a set and upload it when a registry is configured
//	stale          list sets not opened within the stale window
//	expire-stale   remove stale sets that are not pinned or archived
//	clear          remove every set
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

	"github.com/felixge/fgprof"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("studycache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	fgProfile := fs.String("fgprof", "", "write a wall-clock profile of the command to file")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: studycache [flags] <command> [command flags]\n\n")
		fmt.Fprintf(stderr, "commands: %s\n\nflags:\n", commandNames())
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "studycache: unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	if *fgProfile != "" {
		f, err := os.Create(*fgProfile)
		if err != nil {
			fmt.Fprintf(stderr, "studycache: %v\n", err)
			return 1
		}
		stopProfile := fgprof.Start(f, fgprof.FormatPprof)
		defer func() {
			if err := stopProfile(); err != nil {
				fmt.Fprintf(stderr, "studycache: fgprof stop: %v\n", err)
			}
			_ = f.Close()
		}()
	}

	a, err := newApp(ctx, *configPath, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "studycache: %v\n", err)
		return 1
	}
	defer a.close()

	if err := cmd.run(ctx, a, fs.Args()[1:], stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintf(stderr, "studycache %s: %v\n", name, err)
		return 1
	}
	return 0
}
