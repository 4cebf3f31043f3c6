// Package main provides the netmon command line client.
//
// netmon talks to the netmond daemon over its UNIX socket. With -local it
// reads the counters of this machine directly instead.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/shini4i/netmon/internal/client"
	"github.com/shini4i/netmon/internal/config"
	"github.com/shini4i/netmon/internal/logging"
)

var (
	version = "dev"
)

const usage = `Usage: netmon [flags] <command> [args]

Commands:
  speed          Show current speeds per interface class
  bytes [types]  Show cumulative bytes, e.g. "wifi" or "wwan-sent,awdl"
  status         Show reachability, monitoring and cellular details
  start          Start traffic monitoring in the daemon
  stop           Stop traffic monitoring in the daemon
  top            Live speed dashboard
  tray           System tray speed indicator
  config         Show the configuration file and its contents
  config class <interface> <wwan|wifi|awdl|none>
                 Pin an interface to a class (used by -local and netmond)

Flags:
`

// options are the global flags shared by every command.
type options struct {
	configFile string
	socketPath string
	sysfsRoot  string
	local      bool
	json       bool
	interval   time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("netmon", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var opts options
	fs.StringVar(&opts.configFile, "config", "", "Path to the configuration file (default: $XDG_CONFIG_HOME/netmon/config.json)")
	fs.StringVar(&opts.socketPath, "socket", config.DefaultSocketPath, "Path to the netmond UNIX socket")
	fs.StringVar(&opts.sysfsRoot, "sysfs", "", "Network class directory used with -local (default: sysfs_root from the configuration)")
	fs.BoolVar(&opts.local, "local", false, "Read this machine directly instead of asking netmond")
	fs.BoolVar(&opts.json, "json", false, "Print results as JSON")
	fs.DurationVar(&opts.interval, "interval", time.Second, "Refresh interval for top and tray, and sample interval with -local")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showVersion := fs.Bool("version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "netmon %s\n", version)
		return 0
	}

	slog.SetDefault(logging.New(stderr, logging.ResolveLevel(*debug), logging.FormatText))

	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, ok := commands[fs.Arg(0)]
	if !ok {
		fmt.Fprintf(stderr, "unknown command: %s\n", fs.Arg(0))
		fs.Usage()
		return 2
	}

	ctx := context.Background()
	if err := cmd(ctx, opts, fs.Args()[1:], stdout); err != nil {
		fmt.Fprintf(stderr, "netmon: %v\n", err)
		if errors.Is(err, client.ErrClientNotAvailable) {
			fmt.Fprintln(stderr, "Is netmond running? Use -local to read this machine directly.")
		}
		return 1
	}
	return 0
}
