// Package main implements the aws-eni-manager command line tool, which
// manages AWS Elastic Network Interfaces on the EC2 instance it runs on.
//
// Every subcommand drives the cloud API and the local network stack to
// a consistent state: attach creates the OS-side routing for the new
// device, detach tears it down before the interface is released, and
// assign binds the new address to the link. Results are printed as JSON
// on stdout so the tool composes with scripts.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/johnlam90/aws-eni-manager/pkg/config"
	"github.com/johnlam90/aws-eni-manager/pkg/lifecycle"
)

var version = "v0.9.0"

func main() {
	// Cancel the context on SIGINT or SIGTERM so a command stuck in a
	// convergence wait exits cleanly.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received signal %v, shutting down\n", sig)
		cancel()
	}()

	os.Exit(newApp().run(ctx, os.Args[1:]))
}

// app carries the process-level wiring. Tests swap the writers, the
// settings loader and the manager factory to run commands against
// in-memory collaborators.
type app struct {
	stdout io.Writer
	stderr io.Writer

	loadSettings func() (*config.Settings, error)
	newLogger    func(debug bool) (logr.Logger, error)
	newManager   func(cfg *config.Settings, logger logr.Logger) *lifecycle.Manager

	metricsOnce sync.Once
}

func newApp() *app {
	return &app{
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		loadSettings: config.Load,
		newLogger:    buildLogger,
		newManager: func(cfg *config.Settings, logger logr.Logger) *lifecycle.Manager {
			return lifecycle.NewManager(cfg, logger)
		},
	}
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		a.usage()
		return 2
	}

	command, rest := args[0], args[1:]

	var err error
	switch command {
	case "create":
		err = a.runCreate(ctx, rest)
	case "attach":
		err = a.runAttach(ctx, rest)
	case "detach":
		err = a.runDetach(ctx, rest)
	case "clean":
		err = a.runClean(ctx, rest)
	case "assign":
		err = a.runAssign(ctx, rest)
	case "unassign":
		err = a.runUnassign(ctx, rest)
	case "associate":
		err = a.runAssociate(ctx, rest)
	case "dissociate":
		err = a.runDissociate(ctx, rest)
	case "allocate":
		err = a.runAllocate(ctx, rest)
	case "release":
		err = a.runRelease(ctx, rest)
	case "id":
		err = a.runID(ctx, rest)
	case "test":
		err = a.runTest(ctx, rest)
	case "version":
		fmt.Fprintf(a.stdout, "eni-manager %s\n", version)
		return 0
	case "help", "-h", "-help", "--help":
		a.usage()
		return 0
	default:
		fmt.Fprintf(a.stderr, "unknown command %q\n\n", command)
		a.usage()
		return 2
	}

	if err != nil {
		if err == flag.ErrHelp {
			return 2
		}
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (a *app) usage() {
	fmt.Fprintf(a.stderr, `Usage: eni-manager <command> [flags]

Commands:
  create      Create a network interface and wait until it is available
  attach      Attach an interface to this instance and configure the device
  detach      Detach an interface, deleting it when this tool created it
  clean       Delete leaked available interfaces in the VPC
  assign      Assign a secondary private address to an interface
  unassign    Remove a secondary private address from an interface
  associate   Bind an elastic address to an interface
  dissociate  Unbind an elastic address
  allocate    Allocate a fresh elastic address
  release     Release a free elastic address
  id          Print the instance's network identity
  test        Check gateway reachability through a device
  version     Print the version

Run 'eni-manager <command> -h' for the command's flags.
`)
}

// runtime is the per-command state built after flag parsing.
type runtime struct {
	cfg     *config.Settings
	logger  logr.Logger
	manager *lifecycle.Manager
}

// commonFlags are accepted by every command and override the
// environment-derived settings.
type commonFlags struct {
	region      *string
	timeout     *time.Duration
	ownerTag    *string
	metricsAddr *string
	debug       *bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		region:      fs.String("region", "", "AWS region (default: from the instance identity)"),
		timeout:     fs.Duration("timeout", 0, "Bound for convergence waits (default: from settings)"),
		ownerTag:    fs.String("owner-tag", "", "Owner identity for created-by tags (default: from settings)"),
		metricsAddr: fs.String("metrics-addr", "", "Address for the Prometheus endpoint (default: disabled)"),
		debug:       fs.Bool("debug", false, "Enable debug logging"),
	}
}

func (c *commonFlags) apply(cfg *config.Settings) {
	if *c.region != "" {
		cfg.Region = *c.region
	}
	if *c.timeout > 0 {
		cfg.Timeout = *c.timeout
	}
	if *c.ownerTag != "" {
		cfg.OwnerTag = *c.ownerTag
	}
	if *c.metricsAddr != "" {
		cfg.MetricsAddr = *c.metricsAddr
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// runtime loads the settings, applies flag overrides, and builds the
// logger and the manager.
func (a *app) runtime(common *commonFlags) (*runtime, error) {
	cfg, err := a.loadSettings()
	if err != nil {
		return nil, err
	}
	common.apply(cfg)

	logger, err := a.newLogger(*common.debug)
	if err != nil {
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		a.serveMetrics(cfg.MetricsAddr, logger)
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		manager: a.newManager(cfg, logger),
	}, nil
}

// preflight verifies the AWS caller identity so credential problems
// surface before any mutating call.
func (r *runtime) preflight(ctx context.Context) error {
	arn, err := r.manager.VerifyCredentials(ctx)
	if err != nil {
		return err
	}
	if arn != "" {
		r.logger.Info("Verified AWS caller identity", "arn", arn)
	}
	return nil
}

func buildLogger(debug bool) (logr.Logger, error) {
	var zapLog *zap.Logger
	var err error
	if debug {
		zapLog, err = zap.NewDevelopment()
	} else {
		zapLog, err = zap.NewProduction()
	}
	if err != nil {
		return logr.Logger{}, fmt.Errorf("failed to create logger: %v", err)
	}
	return zapr.NewLogger(zapLog), nil
}

// serveMetrics starts the Prometheus endpoint. The server lives until
// the process exits; one-shot commands serve it for the duration of
// their convergence waits.
func (a *app) serveMetrics(addr string, logger logr.Logger) {
	a.metricsOnce.Do(func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error(err, "Metrics endpoint failed", "addr", addr)
			}
		}()
		logger.Info("Serving metrics", "addr", addr)
	})
}

func (a *app) printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %v", err)
	}
	_, err = fmt.Fprintln(a.stdout, string(data))
	return err
}

// splitCSV splits a comma-separated flag value, dropping empty parts.
func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(value, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// tagsValue collects repeated -tag key=value flags.
type tagsValue map[string]string

func (t tagsValue) String() string {
	var parts []string
	for k, v := range t {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (t tagsValue) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || key == "" {
		return fmt.Errorf("tag %q is not in key=value form", value)
	}
	t[key] = val
	return nil
}
