package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"updatekit/internal/config"
	"updatekit/internal/debug"
	"updatekit/internal/platform"
)

// Roles select which side of the update plumbing this process runs.
const (
	roleAll     = "all"
	roleService = "service"
	roleUI      = "ui"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	if err := config.Initialize(); err != nil {
		fmt.Printf("Error initializing config: %v\n", err)
		return 1
	}

	versionFlag := flag.Bool("version", false, "Print version information and exit")
	debugFlag := flag.Bool("debug", false, "Write a debug log to ~/.updatekit/debug.log")
	probeFlag := flag.Bool("probe", false, "Print host details and the supported Linux package format, then exit")
	roleFlag := flag.String("role", roleAll, "Which side to run: all, service or ui")
	transportFlag := flag.String("transport", config.GetString(config.KeyTransport), "Transport between service and renderer (local, stdio, mqtt)")
	autoDownloadFlag := flag.Bool("auto-download", config.GetBool(config.KeyAutoDownload), "Download available updates without asking")
	checkIntervalFlag := flag.Duration("check-interval", config.GetDuration(config.KeyCheckInterval), "Re-check the feed at this interval (0 checks only at startup)")
	sessionStoreFlag := flag.String("session-store", config.GetString(config.KeySessionStore), "Where the last status is kept (memory, sqlite)")
	flag.Parse()

	if *versionFlag {
		printVersion()
		return 0
	}

	if err := debug.Init(*debugFlag); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing debug log: %v\n", err)
		return 1
	}
	defer debug.Close()
	announceDebugLog(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *probeFlag {
		printProbe(ctx, os.Stdout, platform.New())
		return 0
	}

	visited := map[string]struct{}{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = struct{}{}
	})

	opts, err := computeRuntimeOptions(runtimeFlags{
		role:          roleFlag,
		transport:     transportFlag,
		autoDownload:  autoDownloadFlag,
		checkInterval: checkIntervalFlag,
		sessionStore:  sessionStoreFlag,
	}, visited)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	lifecycle := newProcessLifecycle(debug.Logger("lifecycle"))
	if err := run(ctx, opts, lifecycle); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	// The UI has restored the terminal by now, so the relaunched process
	// starts on a clean screen.
	stop()
	if err := lifecycle.finish(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// announceDebugLog tells the user where the debug log is written.
func announceDebugLog(w io.Writer) {
	if !debug.Enabled() {
		return
	}
	path, err := debug.GetLogPath()
	if err != nil {
		return
	}
	fmt.Fprintf(w, "Debug log: %s\n", path)
}

type runtimeFlags struct {
	role          *string
	transport     *string
	autoDownload  *bool
	checkInterval *time.Duration
	sessionStore  *string
}

type runtimeOptions struct {
	role          string
	transport     string
	autoDownload  bool
	checkInterval time.Duration
	sessionStore  string
	sessionPath   string
	glamourStyle  string
}

func computeRuntimeOptions(flags runtimeFlags, visited map[string]struct{}) (runtimeOptions, error) {
	overrides := map[string]any{}
	if flagWasExplicitlySet("transport", visited) && flags.transport != nil {
		overrides[config.KeyTransport] = strings.TrimSpace(*flags.transport)
	}
	if flagWasExplicitlySet("auto-download", visited) && flags.autoDownload != nil {
		overrides[config.KeyAutoDownload] = *flags.autoDownload
	}
	if flagWasExplicitlySet("check-interval", visited) && flags.checkInterval != nil {
		overrides[config.KeyCheckInterval] = *flags.checkInterval
	}
	if flagWasExplicitlySet("session-store", visited) && flags.sessionStore != nil {
		overrides[config.KeySessionStore] = strings.TrimSpace(*flags.sessionStore)
	}
	if err := config.ApplyOverrides(overrides); err != nil {
		return runtimeOptions{}, fmt.Errorf("apply flag overrides: %w", err)
	}

	opts := runtimeOptions{
		role:          roleAll,
		transport:     strings.TrimSpace(config.GetString(config.KeyTransport)),
		autoDownload:  config.GetBool(config.KeyAutoDownload),
		checkInterval: config.GetDuration(config.KeyCheckInterval),
		sessionStore:  strings.TrimSpace(config.GetString(config.KeySessionStore)),
		sessionPath:   strings.TrimSpace(config.GetString(config.KeySessionPath)),
		glamourStyle:  strings.TrimSpace(config.GetString(config.KeyGlamourStyle)),
	}
	if flags.role != nil {
		opts.role = strings.ToLower(strings.TrimSpace(*flags.role))
	}
	if opts.checkInterval < 0 {
		opts.checkInterval = 0
	}
	opts.transport = strings.ToLower(opts.transport)
	if opts.transport == "" {
		opts.transport = config.TransportLocal
	}

	switch opts.role {
	case roleAll, roleService, roleUI:
	default:
		return opts, fmt.Errorf("unknown role %q (want all, service or ui)", opts.role)
	}
	switch opts.transport {
	case config.TransportLocal:
		if opts.role != roleAll {
			return opts, fmt.Errorf("the local transport runs both sides in one process; use --role=all")
		}
	case config.TransportStdio:
		if opts.role != roleService {
			return opts, fmt.Errorf("the stdio transport carries messages on stdout; use --role=service")
		}
	case config.TransportMQTT:
	default:
		return opts, fmt.Errorf("unknown transport %q", opts.transport)
	}
	return opts, nil
}

func flagWasExplicitlySet(name string, visited map[string]struct{}) bool {
	_, ok := visited[name]
	return ok
}
