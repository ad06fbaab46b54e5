// Command pipedef validates pipeline description files and exports them for an execution engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/askiada/pipedef/internal/config"
	"github.com/askiada/pipedef/internal/logger"
	"github.com/askiada/pipedef/pkg/pipeline"
	"github.com/askiada/pipedef/pkg/pipeline/drawer"
	"github.com/askiada/pipedef/pkg/pipeline/loader"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

var (
	errUsage       = errors.New("usage")
	errUnscheduled = errors.New("pipeline has no schedule")
)

type app struct {
	cfg    config.Config
	log    zerolog.Logger
	flags  *pflag.FlagSet
	stdout io.Writer
}

type command struct {
	args    string
	summary string
	nargs   int
	flags   func(fs *pflag.FlagSet)
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"validate": {
		args:    "<file|dir>",
		summary: "validate a pipeline file or every pipeline file of a directory",
		nargs:   1,
		run:     runValidate,
	},
	"order": {
		args:    "<file>",
		summary: "print the steps in topological order",
		nargs:   1,
		run:     runOrder,
	},
	"export": {
		args:    "<file>",
		summary: "print the validated pipeline document in the --output format",
		nargs:   1,
		run:     runExport,
	},
	"dot": {
		args:    "<file>",
		summary: "print the dependency graph in DOT format",
		nargs:   1,
		flags: func(fs *pflag.FlagSet) {
			fs.String("rankdir", "LR", "graph direction (TB, LR, BT, RL)")
			fs.Bool("no-policy", false, "hide the retry policy of each step")
		},
		run: runDOT,
	},
	"next": {
		args:    "<file>",
		summary: "print the next scheduled runs",
		nargs:   1,
		flags: func(fs *pflag.FlagSet) {
			fs.String("after", "", "RFC3339 time to start from (default now)")
			fs.Int("count", 1, "number of runs to print")
		},
		run: runNext,
	},
	"render": {
		args:    "<file> <step>",
		summary: "print the params of a step rendered for a logical date",
		nargs:   2,
		flags: func(fs *pflag.FlagSet) {
			fs.String("date", "", "logical date, YYYY-MM-DD or RFC3339 (default today)")
		},
		run: runRender,
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := runWithArgs(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()
	os.Exit(code)
}

func usage(wrt io.Writer) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}

	sort.Strings(names)

	fmt.Fprintln(wrt, "Usage: pipedef <command> [flags] <args>")
	fmt.Fprintln(wrt)
	fmt.Fprintln(wrt, "Commands:")

	for _, name := range names {
		fmt.Fprintf(wrt, "  %-9s %-14s %s\n", name, commands[name].args, commands[name].summary)
	}
}

func runWithArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)

		return exitUsage
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "error: unknown command %q\n\n", args[0])
		usage(stderr)

		return exitUsage
	}

	fs := pflag.NewFlagSet("pipedef "+args[0], pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: pipedef %s [flags] %s\n\n", args[0], cmd.args)
		fs.PrintDefaults()
	}

	config.Flags(fs)

	if cmd.flags != nil {
		cmd.flags(fs)
	}

	err := fs.Parse(args[1:])
	if err != nil {
		return exitUsage
	}

	if fs.NArg() != cmd.nargs {
		fmt.Fprintf(stderr, "error: expected %s\n", cmd.args)
		fs.Usage()

		return exitUsage
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)

		return exitUsage
	}

	log, err := logger.New(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)

		return exitUsage
	}

	a := &app{cfg: cfg, log: log, flags: fs, stdout: stdout}

	err = cmd.run(ctx, a, fs.Args())
	if err != nil {
		log.Error().Err(err).Str("command", args[0]).Msg("command failed")

		if errors.Is(err, errUsage) {
			return exitUsage
		}

		return exitFailure
	}

	return 0
}

func runValidate(ctx context.Context, a *app, args []string) error {
	info, err := os.Stat(args[0])
	if err != nil {
		return errors.Wrap(err, "unable to stat path")
	}

	var pipes []*pipeline.Pipeline

	if info.IsDir() {
		ldr := loader.New(loader.WithLogger(a.log), loader.WithConcurrency(a.cfg.Concurrency))

		pipes, err = ldr.LoadDir(ctx, args[0])
		if err != nil {
			return err
		}
	} else {
		pipe, err := loader.LoadFile(args[0])
		if err != nil {
			return err
		}

		pipes = append(pipes, pipe)
	}

	for _, pipe := range pipes {
		fmt.Fprintf(a.stdout, "%s: %d steps, %d edges\n", pipe.ID(), len(pipe.Steps()), len(pipe.Edges()))
	}

	return nil
}

func runOrder(_ context.Context, a *app, args []string) error {
	pipe, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	for _, id := range pipe.TopologicalOrder() {
		fmt.Fprintln(a.stdout, id)
	}

	return nil
}

func runExport(_ context.Context, a *app, args []string) error {
	format, err := loader.ParseFormat(a.cfg.Output)
	if err != nil {
		return err
	}

	pipe, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	return loader.Encode(a.stdout, pipe, format)
}

func runDOT(_ context.Context, a *app, args []string) error {
	pipe, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	rankdir, err := a.flags.GetString("rankdir")
	if err != nil {
		return errors.Wrap(err, "unable to read rankdir")
	}

	rankdir = strings.ToUpper(rankdir)

	switch rankdir {
	case "TB", "LR", "BT", "RL":
	default:
		return errors.Wrapf(errUsage, "invalid --rankdir %q", rankdir)
	}

	opts := []drawer.Option{drawer.GraphAttribute("rankdir", rankdir)}

	noPolicy, err := a.flags.GetBool("no-policy")
	if err != nil {
		return errors.Wrap(err, "unable to read no-policy")
	}

	if noPolicy {
		opts = append(opts, drawer.WithoutPolicy())
	}

	return drawer.DOT(a.stdout, pipe, opts...)
}

func runNext(_ context.Context, a *app, args []string) error {
	pipe, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	if pipe.Schedule() == "" {
		return errors.Wrapf(errUnscheduled, "%q", pipe.ID())
	}

	after := time.Now().UTC()

	value, err := a.flags.GetString("after")
	if err != nil {
		return errors.Wrap(err, "unable to read after")
	}

	if value != "" {
		after, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return errors.Wrapf(errUsage, "invalid --after %q: %v", value, err)
		}
	}

	count, err := a.flags.GetInt("count")
	if err != nil {
		return errors.Wrap(err, "unable to read count")
	}

	for i := 0; i < count; i++ {
		after = pipe.NextRun(after)
		if after.IsZero() {
			break
		}

		fmt.Fprintln(a.stdout, after.Format(time.RFC3339))
	}

	return nil
}

func runRender(_ context.Context, a *app, args []string) error {
	pipe, err := loader.LoadFile(args[0])
	if err != nil {
		return err
	}

	logicalDate := time.Now().UTC().Truncate(24 * time.Hour)

	value, err := a.flags.GetString("date")
	if err != nil {
		return errors.Wrap(err, "unable to read date")
	}

	if value != "" {
		logicalDate, err = parseDate(value)
		if err != nil {
			return err
		}
	}

	params, err := pipe.RenderParams(args[1], logicalDate)
	if err != nil {
		return err
	}

	if a.cfg.Output == string(loader.FormatJSON) {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")

		return errors.Wrap(enc.Encode(params), "unable to encode params")
	}

	enc := yaml.NewEncoder(a.stdout)
	enc.SetIndent(2)

	err = enc.Encode(params)
	if err != nil {
		return errors.Wrap(err, "unable to encode params")
	}

	return errors.Wrap(enc.Close(), "unable to flush params")
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		date, err := time.Parse(layout, value)
		if err == nil {
			return date, nil
		}
	}

	return time.Time{}, errors.Wrapf(errUsage, "invalid --date %q", value)
}
