// Package main is the entry point for the stepdb Lua debugger.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dshills/stepdb/internal/config"
	"github.com/dshills/stepdb/internal/debugger"
	"github.com/dshills/stepdb/internal/debugger/breakpoint"
	"github.com/dshills/stepdb/internal/debugger/source"
	luahost "github.com/dshills/stepdb/internal/host/lua"
	"github.com/dshills/stepdb/internal/logging"
	"github.com/dshills/stepdb/internal/ui/console"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath  string
	breakpoints string
	logLevel    string
	logFile     string
	noColor     bool
	commands    commandList
	program     string
}

// commandList collects repeated -x flags.
type commandList []string

func (l *commandList) String() string { return strings.Join(*l, "; ") }

func (l *commandList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	opts, set := parseFlags()

	cfg, err := loadConfig(opts, set)
	if err != nil {
		if verrs := config.ValidationErrors(err); len(verrs) > 0 {
			fmt.Fprintf(os.Stderr, "Error: invalid configuration\n")
			for _, verr := range verrs {
				fmt.Fprintf(os.Stderr, "  %v\n", verr)
			}
			return 1
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	logger, closeLog, err := newLogger(cfg.Log())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log file: %v\n", err)
		return 1
	}
	defer closeLog()
	logger, session := logger.WithSession()
	logger.Info("stepdb %s starting, config %q", version, cfg.Source())
	for path, cerr := range cfg.ConfigErrors() {
		logger.Warn("config %s: %v", path, cerr)
	}

	canon := breakpoint.NewCanonicalizer()
	cache := source.NewLineCache()
	if cfg.SourceSettings().Watch {
		watcher, err := source.NewWatcher(cache)
		if err != nil {
			logger.Warn("source watching disabled: %v", err)
		} else {
			defer watcher.Close()
			go logInvalidations(watcher, logger.WithComponent("watcher"))
		}
	}

	host := luahost.New(
		luahost.WithCanonicalizer(canon),
		luahost.WithLogger(logger),
	)
	defer host.Close()

	var d *debugger.Debugger
	con := console.New(
		console.WithScript(opts.commands),
		console.WithContextLines(cfg.SourceSettings().ContextLines),
		console.WithColor(cfg.UI().Color),
		console.WithBreakpoints(func() []*breakpoint.Breakpoint { return d.Breakpoints().All() }),
		console.WithLogger(logger.WithComponent("console")),
	)

	dbgCfg := cfg.Debugger()
	d, err = debugger.New(host, con, debugger.Config{
		BreakpointsFile:  dbgCfg.BreakpointsFile,
		SaveBreakpoints:  dbgCfg.SaveBreakpoints,
		HandleInterrupts: true,
		Logger:           logger,
		Cache:            cache,
		Canonicalizer:    canon,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	host.SetTraceHandler(d.SetTrace)

	// SIGINT is turned into a stop by the debugger; SIGTERM ends the session.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	runErr := d.Run(ctx, opts.program)
	if err := d.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save breakpoints: %v\n", err)
	}
	logger.Info("session %s ended", session)

	var perr *debugger.ProgramError
	switch {
	case runErr == nil:
		return 0
	case errors.As(runErr, &perr):
		return 1
	case errors.Is(runErr, context.Canceled):
		return 130
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}
}

func parseFlags() (options, map[string]bool) {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.breakpoints, "breakpoints", "", "Saved breakpoints file")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.logFile, "log-file", "", "Write logs to this file")
	flag.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flag.Var(&opts.commands, "x", "Run a console command at the first stop (repeatable)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "stepdb - a line-mode debugger for Lua programs\n\n")
		fmt.Fprintf(os.Stderr, "Usage: stepdb [options] program.lua\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  stepdb main.lua                    Stop at the first line of main.lua\n")
		fmt.Fprintf(os.Stderr, "  stepdb -x 'b 12' -x c main.lua     Run to line 12\n")
		fmt.Fprintf(os.Stderr, "  stepdb -log-file /tmp/stepdb.log -log-level debug main.lua\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("stepdb %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	opts.program = flag.Arg(0)

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return opts, set
}

// loadConfig builds the layered configuration. Flags given on the command
// line override the file and environment.
func loadConfig(opts options, set map[string]bool) (*config.Config, error) {
	var cfgOpts []config.Option
	if opts.configPath != "" {
		cfgOpts = append(cfgOpts, config.WithConfigFile(opts.configPath))
	}
	cfg := config.New(cfgOpts...)

	overrides := []struct {
		flag  string
		path  string
		value any
	}{
		{"breakpoints", "debugger.breakpointsFile", opts.breakpoints},
		{"log-level", "log.level", opts.logLevel},
		{"log-file", "log.file", opts.logFile},
		{"no-color", "ui.color", config.ColorNever},
	}
	for _, o := range overrides {
		if !set[o.flag] {
			continue
		}
		if o.flag == "no-color" && !opts.noColor {
			continue
		}
		if err := cfg.Set(o.path, o.value); err != nil {
			return nil, fmt.Errorf("flag -%s: %w", o.flag, err)
		}
	}

	if err := cfg.Load(context.Background()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger writes to the configured log file, or nowhere, so the console
// output stays clean.
func newLogger(lc config.LogConfig) (*logging.Logger, func(), error) {
	if lc.File == "" {
		return logging.New(logging.Config{Level: lc.LogLevel(), Output: io.Discard, Prefix: "stepdb"}), func() {}, nil
	}
	f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Config{Level: lc.LogLevel(), Output: f, Prefix: "stepdb"})
	return logger, func() { f.Close() }, nil
}

func logInvalidations(w *source.Watcher, logger *logging.Logger) {
	for path := range w.Invalidated() {
		logger.Debug("source changed: %s", path)
	}
}
