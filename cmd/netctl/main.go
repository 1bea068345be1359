package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/netctl/internal/infrastructure/config"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/logging"
	"github.com/GriffinCanCode/netctl/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/netctl/internal/providers/http/controller"
	"github.com/GriffinCanCode/netctl/internal/providers/http/jsonapi"
	"github.com/GriffinCanCode/netctl/internal/providers/http/session"
	"github.com/GriffinCanCode/netctl/internal/providers/http/validation"
	"github.com/GriffinCanCode/netctl/internal/shared/types"
)

type options struct {
	method   string
	headers  []string
	data     string
	kind     string
	user     string
	password string
	proceed  bool
	pinDir   string
	manifest string
	caFile   string
	timeout  time.Duration
	output   string
	dev      bool
	logLevel string
}

type outcome struct {
	body   []byte
	doc    *jsonapi.Document
	err    error
	status *types.Status
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	var opts options
	flags := pflag.NewFlagSet("netctl", pflag.ContinueOnError)
	flags.StringVarP(&opts.method, "request", "X", "GET", "HTTP method")
	flags.StringArrayVarP(&opts.headers, "header", "H", nil, `request header as "Name: value" (repeatable)`)
	flags.StringVarP(&opts.data, "data", "d", "", "request body; @file reads it from a file")
	flags.StringVar(&opts.kind, "kind", "json", "response profile: json, image or raw")
	flags.StringVarP(&opts.user, "user", "u", "", "user for Basic or Digest challenges")
	flags.StringVar(&opts.password, "password", "", "password for Basic or Digest challenges")
	flags.BoolVar(&opts.proceed, "proceed-untrusted", false, "fall back to system trust when pinning fails")
	flags.StringVar(&opts.pinDir, "pin-dir", "", "directory of pinned <host>.der certificates")
	flags.StringVar(&opts.manifest, "pin-manifest", "", "YAML manifest mapping hosts to pin files")
	flags.StringVar(&opts.caFile, "ca-file", "", "PEM roots for default trust evaluation")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall request timeout")
	flags.StringVarP(&opts.output, "output", "o", "", "write the body to this file instead of stdout")
	flags.BoolVar(&opts.dev, "dev", false, "development logging")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: netctl [flags] URL\n\n%s", flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("exactly one URL is required")
	}

	cfg := config.LoadOrDefault()
	applyFlags(cfg, &opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := monitoring.NewMetrics()
	s, err := session.New(cfg,
		session.WithLogger(logger.Component("session")),
		session.WithMetrics(metrics))
	if err != nil {
		return err
	}
	defer s.Close()

	profile, err := profileOption(opts.kind)
	if err != nil {
		return err
	}
	ctrl := controller.New(s, append(profile,
		controller.WithLogger(logger.Logger),
		controller.WithMetrics(metrics))...)
	defer ctrl.Close()

	req, err := buildRequest(flags.Arg(0), &opts)
	if err != nil {
		return err
	}

	done := make(chan outcome, 1)
	id, err := ctrl.Submit(req, delegate(&opts, done))
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	var result outcome
	select {
	case result = <-done:
	case <-signals:
		logger.Info("interrupted, cancelling request", logging.Task(id))
		ctrl.Cancel(id)
		result = <-done
	}

	snap := metrics.Snapshot()
	logger.Debug("request finished",
		zap.Int64("requests", snap.TotalRequests),
		zap.Int64("bytes", snap.BytesReceived),
		zap.Duration("avg_duration", snap.AverageDuration()))

	return report(result, &opts, stdout)
}

func applyFlags(cfg *config.Config, opts *options) {
	if opts.pinDir != "" {
		cfg.TLS.PinDir = opts.pinDir
	}
	if opts.manifest != "" {
		cfg.TLS.PinManifest = opts.manifest
	}
	if opts.caFile != "" {
		cfg.TLS.CAFile = opts.caFile
	}
	if opts.timeout > 0 {
		cfg.Session.Timeout = opts.timeout
	}
	if opts.dev {
		cfg.Logging.Development = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
}

func profileOption(kind string) ([]controller.Option, error) {
	if kind == "raw" {
		return nil, nil
	}
	k, err := validation.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	return []controller.Option{controller.WithProfile(validation.ProfileFor(k))}, nil
}

func buildRequest(rawURL string, opts *options) (*types.Request, error) {
	body, err := readBody(opts.data)
	if err != nil {
		return nil, err
	}
	req, err := types.NewRequest(types.Method(opts.method), rawURL, body)
	if err != nil {
		return nil, err
	}
	for _, h := range opts.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return req, nil
}

func readBody(data string) ([]byte, error) {
	if data == "" {
		return nil, nil
	}
	if path, ok := strings.CutPrefix(data, "@"); ok {
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading body: %w", err)
		}
		return body, nil
	}
	return []byte(data), nil
}

func delegate(opts *options, done chan<- outcome) controller.Funcs {
	funcs := controller.Funcs{
		OnComplete: func(_ *types.Request, body []byte) {
			done <- outcome{body: body}
		},
		OnDocument: func(_ *types.Request, doc *jsonapi.Document) {
			done <- outcome{doc: doc}
		},
		OnFailure: func(_ *types.Request, err error, status *types.Status) {
			done <- outcome{err: err, status: status}
		},
		OnTrust: func(*types.Request) bool {
			return opts.proceed
		},
	}
	if opts.user != "" {
		funcs.OnCredential = func(*types.Request) (string, string, bool) {
			return opts.user, opts.password, true
		}
	}
	return funcs
}

func report(result outcome, opts *options, stdout io.Writer) error {
	if result.err != nil {
		return result.err
	}

	body := result.body
	if result.doc != nil {
		pretty, err := sonic.ConfigStd.MarshalIndent(result.doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding document: %w", err)
		}
		body = append(pretty, '\n')
	}

	if opts.output != "" {
		return os.WriteFile(opts.output, body, 0o644)
	}
	_, err := io.Copy(stdout, bytes.NewReader(body))
	return err
}
