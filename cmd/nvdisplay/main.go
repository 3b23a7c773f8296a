// nvdisplay reads and writes NVIDIA display attributes (digital vibrance,
// image sharpening, color range, color space and dithering).
//
// One-shot commands talk to the device once and exit:
//
//	nvdisplay list
//	nvdisplay get DP-0 vibrance
//	nvdisplay set DP-0 vibrance 512
//	nvdisplay status
//	nvdisplay info
//
// serve keeps the device open, tracks hotplug and exposes the HTTP API,
// MQTT state topics and the audit trail:
//
//	nvdisplay serve
//
// token mints a bearer token for the API's write endpoints:
//
//	nvdisplay token -role operator -subject alice
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

	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// errUsage marks command line mistakes; they exit with exitUsage.
var errUsage = errors.New("usage error")

// globals are the flags accepted before the subcommand.
type globals struct {
	configPath string
	json       bool
	emulate    bool
	verbose    bool
}

// command is one subcommand.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"list", "list displays", runList},
	{"get", "read attributes: get <display> [attribute...]", runGet},
	{"set", "write an attribute: set <display> <attribute> <value>", runSet},
	{"status", "report device availability and the active backend", runStatus},
	{"info", "report driver and build information", runInfo},
	{"serve", "run the daemon with HTTP API, MQTT and audit trail", runServe},
	{"token", "mint an API bearer token", runToken},
}

// env is what every command receives.
type env struct {
	globals
	cfg    *config.Config
	log    *logging.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

// run parses args, executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var g globals
	fs := flag.NewFlagSet("nvdisplay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&g.configPath, "config", config.PathFromEnv(), "configuration file")
	fs.BoolVar(&g.json, "json", false, "print JSON instead of text")
	fs.BoolVar(&g.emulate, "emulate", false, "use the in-memory device emulator")
	fs.BoolVar(&g.verbose, "v", false, "debug logging")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() == 0 {
		usage(fs)
		return exitUsage
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		usage(fs)
		return exitUsage
	}

	cfg, err := config.LoadOrDefault(g.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: loading config: %v\n", err)
		return exitConfig
	}
	if g.emulate {
		cfg.Device.Emulate = true
	}
	if g.verbose {
		cfg.Logging.Level = "debug"
	}
	// One-shot output goes to stdout; logs never mix with it.
	if cmd.name != "serve" {
		cfg.Logging.Output = "stderr"
	}

	e := &env{
		globals: g,
		cfg:     cfg,
		log:     logging.NewWithWriter(cfg.Logging, version, logWriter(cfg.Logging, stdout, stderr)),
		stdout:  stdout,
		stderr:  stderr,
	}

	if err := cmd.run(ctx, e, fs.Args()[1:]); err != nil {
		return report(stderr, err)
	}
	return exitOK
}

func logWriter(cfg config.LoggingConfig, stdout, stderr io.Writer) io.Writer {
	if cfg.Output == "stdout" {
		return stdout
	}
	return stderr
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, "usage: nvdisplay [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}
