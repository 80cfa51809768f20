// Command blogcrew researches a topic with a crew of agents and prints a
// finished blog post.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/vinayprograms/blogcrew/blog"
	"github.com/vinayprograms/blogcrew/config"
	"github.com/vinayprograms/blogcrew/credentials"
	"github.com/vinayprograms/blogcrew/errors"
	"github.com/vinayprograms/blogcrew/logging"
	"github.com/vinayprograms/blogcrew/shutdown"
	"github.com/vinayprograms/blogcrew/telemetry"
)

// Version information, set via ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitConfig      = 2
	exitExhausted   = 3
	exitInterrupted = 130
)

// Shutdown phases. Notes close before the exporter flushes.
const (
	phaseNotes     = 10
	phaseTelemetry = 20
)

const shutdownTimeout = 5 * time.Second

// buildDeps constructs the pipeline dependencies. Tests replace it.
var buildDeps = blog.BuildDeps

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv))
}

type options struct {
	configPath  string
	topic       string
	noCrew      bool
	logLevel    string
	maxAttempts int
	delay       time.Duration
	showVersion bool
	set         map[string]bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("blogcrew", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opts := &options{set: map[string]bool{}}
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default: "+config.DefaultPath+" if present)")
	fs.StringVar(&opts.topic, "topic", "", "Topic to write about (or pass it as arguments)")
	fs.BoolVar(&opts.noCrew, "no-crew", false, "Skip the research crew and write from the topic alone")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: DEBUG, INFO, WARN, ERROR")
	fs.IntVar(&opts.maxAttempts, "max-attempts", 0, "Completion attempts before giving up")
	fs.DurationVar(&opts.delay, "delay", 0, "Fixed delay between completion attempts")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if opts.topic == "" && fs.NArg() > 0 {
		opts.topic = strings.Join(fs.Args(), " ")
	}
	return opts, nil
}

// apply lets flags override the file configuration.
func (o *options) apply(cfg *config.Config) {
	if o.noCrew {
		cfg.Crew.Enabled = false
	}
	if o.set["log-level"] {
		cfg.Log.Level = o.logLevel
	}
	if o.set["max-attempts"] {
		cfg.Retry.MaxAttempts = o.maxAttempts
	}
	if o.set["delay"] {
		cfg.Retry.Delay = config.Duration(o.delay)
	}
	if o.topic != "" {
		cfg.Topic = o.topic
	}
}

// run contains the program and returns its exit code, so deferred cleanup
// runs before os.Exit.
func run(args []string, stdout, stderr io.Writer, lookup config.LookupFunc) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitConfig
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "blogcrew %s\n", version)
		return exitOK
	}

	logger := logging.New().WithComponent("blogcrew")
	logger.SetOutput(stderr)

	cfg, err := loadConfig(opts, lookup)
	if err != nil {
		return fail(logger, err)
	}
	logger.SetLevel(cfg.LogLevel())

	if strings.TrimSpace(cfg.Topic) == "" {
		return fail(logger, errors.Config("no topic given: use -topic or pass it as arguments"))
	}

	coord, err := shutdown.NewCoordinator(shutdown.Config{
		Timeout:         shutdownTimeout,
		ContinueOnError: true,
		Logger:          logger.WithComponent("shutdown"),
	})
	if err != nil {
		return fail(logger, err)
	}
	ctx, stop := coord.NotifyContext(context.Background())
	defer stop()

	post, err := execute(ctx, cfg, coord, logger)
	if serr := coord.ShutdownWithTimeout(0); serr != nil {
		logger.Warn("shutdown_incomplete", logging.Fields{"error": serr.Error()})
	}

	if coord.Interrupted() {
		logger.Warn("interrupted", logging.Fields{"signal": coord.Signal().String()})
		return exitInterrupted
	}
	if err != nil {
		return fail(logger, err)
	}

	fmt.Fprintln(stdout, post.Body)
	return exitOK
}

func loadConfig(opts *options, lookup config.LookupFunc) (*config.Config, error) {
	creds, _, err := credentials.Load()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrCodeConfig, "loading credentials")
	}

	cfg, err := config.Load(opts.configPath, lookup, creds)
	if err != nil {
		return nil, err
	}
	opts.apply(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// execute sets up telemetry and the pipeline and runs it once. Cleanup is
// registered with coord.
func execute(ctx context.Context, cfg *config.Config, coord *shutdown.Coordinator, logger *logging.Logger) (*blog.Post, error) {
	flush, err := telemetry.Setup(ctx, cfg.Telemetry.Enabled, telemetry.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Protocol:       cfg.Telemetry.Protocol,
		Insecure:       cfg.Telemetry.Insecure,
		Debug:          cfg.Telemetry.Debug,
		Headers:        cfg.Telemetry.Headers,
		BatchTimeout:   time.Duration(cfg.Telemetry.BatchTimeout),
		ExportTimeout:  time.Duration(cfg.Telemetry.ExportTimeout),
	})
	if err != nil {
		return nil, err
	}
	coord.Register("telemetry", phaseTelemetry, shutdown.Func(flush))

	deps, closeNotes, err := buildDeps(cfg, nil)
	if err != nil {
		return nil, err
	}
	coord.Register("notes", phaseNotes, func(context.Context) error { return closeNotes() })

	pipeline, err := blog.New(cfg, deps, blog.WithLogger(logger.WithComponent("blog")))
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, cfg.Topic)
}

// exitCode maps a run error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Contains(err, errors.ErrCodeCanceled):
		return exitInterrupted
	case errors.Is(err, errors.ErrCodeConfig):
		return exitConfig
	case errors.Contains(err, errors.ErrCodeRetryExhausted):
		return exitExhausted
	default:
		return exitFailure
	}
}

func fail(logger *logging.Logger, err error) int {
	code := exitCode(err)
	fields := logging.Fields{
		"error":     err.Error(),
		"exit_code": code,
	}
	if e := errors.AsError(err); e != nil {
		fields["code"] = string(e.Code())
	}
	logger.Error("run_failed", fields)
	return code
}
