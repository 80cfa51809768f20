// Package shutdown ties process signals to context cancellation and runs
// cleanup handlers in phase order when the process exits.
//
// # Usage
//
//	coord, err := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	ctx, stop := coord.NotifyContext(context.Background())
//	defer stop()
//
//	coord.Register("notes", 10, func(ctx context.Context) error { return store.Close() })
//	coord.Register("telemetry", 20, flush)
//
//	err := run(ctx)
//	coord.ShutdownWithTimeout(5 * time.Second)
//	if coord.Interrupted() {
//	    os.Exit(130)
//	}
//
// # Phases
//
// Lower phase numbers run first. Handlers in the same phase run
// concurrently. A failing handler is recorded and, with ContinueOnError,
// does not stop later phases. Exporters that should see the spans of
// earlier handlers belong in a later phase.
package shutdown
