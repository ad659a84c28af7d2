// Taskstackd runs a task-priority velocity controller against a simulated
// robot and serves its admin API over HTTP.
//
// Configuration is loaded from ~/.config/taskstack/config.yaml (or the file
// given with -config) and TASKSTACK_* environment variables. See
// internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	taskstackd
//
//	# Start with a stack manifest and an embedded NATS server
//	TASKSTACK_STACK_PATH=/etc/taskstack/stack.toml \
//	TASKSTACK_NATS_ENABLED=true TASKSTACK_NATS_EMBEDDED=true taskstackd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskstack/internal/collision"
	"github.com/fyrsmithlabs/taskstack/internal/config"
	apihttp "github.com/fyrsmithlabs/taskstack/internal/http"
	"github.com/fyrsmithlabs/taskstack/internal/logging"
	"github.com/fyrsmithlabs/taskstack/internal/loop"
	"github.com/fyrsmithlabs/taskstack/internal/manager"
	"github.com/fyrsmithlabs/taskstack/internal/solver"
	"github.com/fyrsmithlabs/taskstack/internal/stackfile"
	"github.com/fyrsmithlabs/taskstack/internal/telemetry"
	"github.com/fyrsmithlabs/taskstack/internal/visual"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (default ~/.config/taskstack/config.yaml)")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  taskstackd [-config path]   Start the controller\n")
			fmt.Fprintf(os.Stderr, "  taskstackd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("taskstackd: %v", err)
	}
}

func printVersion() {
	fmt.Printf("taskstackd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the controller and blocks until ctx is cancelled or a
// component fails.
//
// Startup order:
//  1. Configuration, telemetry and logging
//  2. NATS (optional, embedded or remote)
//  3. Robot model, collision checker and visualizer
//  4. Task manager and control loop
//  5. Stack manifest (optional, watched)
//  6. HTTP admin API
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Telemetry.Shutdown.Timeout)
		defer cancel()
		_ = tel.Shutdown(shutdownCtx)
	}()

	lg, err := logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = lg.Sync()
	}()
	logger := lg.Underlying()

	logger.Info("Starting taskstackd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.Float64("rate_hz", cfg.Loop.RateHz),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Bool("telemetry", cfg.Telemetry.Enabled))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	tree, err := cfg.Robot.Tree()
	if err != nil {
		return fmt.Errorf("invalid robot: %w", err)
	}
	robot, err := loop.NewRobot(tree, cfg.Robot.Initial, cfg.Robot.Controlled)
	if err != nil {
		return fmt.Errorf("invalid robot: %w", err)
	}

	hs, err := solver.NewHierarchical(cfg.Solver)
	if err != nil {
		return fmt.Errorf("invalid solver: %w", err)
	}
	metrics, err := manager.NewMetrics(tel.Meter(manager.InstrumentationName))
	if err != nil {
		logger.Warn("Manager metrics unavailable", zap.Error(err))
	}
	tm, err := manager.New(hs,
		manager.WithMetrics(metrics),
		manager.WithLogger(manager.NewLogger(logger)),
		manager.WithCollisionChecker(deps.checker),
		manager.WithVisualizer(deps.visualizer),
		manager.WithSafetyMargin(cfg.Avoidance.SafetyMargin),
		manager.WithRobotState(robot.State()),
	)
	if err != nil {
		return fmt.Errorf("failed to create task manager: %w", err)
	}
	defer func() {
		_ = tm.Close()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	runner, err := loop.NewRunner(tm, robot, cfg.Loop, loop.NewMetrics(reg), logger)
	if err != nil {
		return fmt.Errorf("failed to create control loop: %w", err)
	}

	apply := func(ctx context.Context, m *stackfile.Manifest) error {
		return stackfile.Apply(ctx, tm, m, runner.State())
	}
	if cfg.Stack.Path != "" {
		m, err := stackfile.Load(cfg.Stack.Path)
		if err != nil {
			return fmt.Errorf("failed to load stack manifest: %w", err)
		}
		if err := apply(ctx, m); err != nil {
			logger.Warn("Stack manifest partially applied", zap.String("path", cfg.Stack.Path), zap.Error(err))
		}
		logger.Info("Stack manifest applied",
			zap.String("path", cfg.Stack.Path),
			zap.Int("primitives", len(m.Primitives)),
			zap.Int("tasks", len(m.Tasks)))
	}
	if cfg.Stack.Watch {
		w, err := stackfile.NewWatcher(cfg.Stack.Path, apply, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to watch stack manifest: %w", err)
		}
		defer w.Stop()
	}

	srv, err := apihttp.NewServer(tm, logger,
		&apihttp.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		apihttp.WithStateSource(runner),
		apihttp.WithLoopStats(runner),
		apihttp.WithTelemetry(tel),
		apihttp.WithGatherer(reg),
		apihttp.WithHTTPMetrics(apihttp.NewHTTPMetrics(tel.Meter("github.com/fyrsmithlabs/taskstack/internal/http"), logger)),
	)
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	errCh := make(chan error, 2)
	go func() { errCh <- runner.Run(loopCtx) }()
	go func() { errCh <- srv.Start() }()

	logger.Info("Server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://%s/health", cfg.Server.Addr())),
		zap.String("api_prefix", "/api/v1"),
		zap.String("metrics_endpoint", "/metrics"),
		zap.String("controller_id", tm.ID()))

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("Component failed", zap.Error(runErr))
		} else {
			logger.Info("Component stopped")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	stopLoop()

	stats := runner.Stats()
	logger.Info("taskstackd stopped",
		zap.Uint64("cycles", stats.Cycles),
		zap.Uint64("failures", stats.Failures))
	return runErr
}

// dependencies holds the infrastructure the task manager is wired to.
type dependencies struct {
	natsServer *natsserver.Server
	natsConn   *nats.Conn
	sdf        *collision.Service
	checker    collision.Checker
	visualizer visual.Visualizer
	logger     *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.sdf != nil {
		if err := d.sdf.Stop(); err != nil {
			d.logger.Warn("SDF service stop failed", zap.Error(err))
		}
	}
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.natsServer != nil {
		d.natsServer.Shutdown()
		d.natsServer.WaitForShutdown()
	}
}

// initDependencies connects to NATS when enabled and builds the collision
// checker and visualizer.
//
// Avoidance queries go to the local obstacle field unless the source is
// "nats". With serve_sdf the same field answers remote queries.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	d := &dependencies{visualizer: visual.Nop{}, logger: logger}

	field, err := collision.NewField(cfg.Robot.Root, cfg.Avoidance.MaxRange, cfg.Obstacles)
	if err != nil {
		return nil, fmt.Errorf("invalid obstacles: %w", err)
	}
	d.checker = field

	if !cfg.NATS.Enabled {
		return d, nil
	}

	url := cfg.NATS.URL
	if cfg.NATS.Embedded {
		ns, err := startEmbeddedNATS(cfg.NATS)
		if err != nil {
			return nil, err
		}
		d.natsServer = ns
		url = ns.ClientURL()
		logger.Info("Embedded NATS server started", zap.String("url", url))
	}

	opts := []nats.Option{
		nats.Name("taskstackd"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1 * time.Second),
	}
	if cfg.NATS.Token.IsSet() {
		opts = append(opts, nats.Token(cfg.NATS.Token.Value()))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	d.natsConn = nc
	logger.Info("Connected to NATS", zap.String("url", url), zap.String("prefix", cfg.NATS.Prefix))

	if cfg.NATS.ServeSDF {
		d.sdf = collision.NewService(nc, cfg.NATS.Prefix, field, logger)
		if err := d.sdf.Start(); err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to start SDF service: %w", err)
		}
		logger.Info("Serving SDF gradients", zap.String("subject", collision.GradientsSubject(cfg.NATS.Prefix)))
	}
	if cfg.Avoidance.Source == "nats" {
		d.checker = collision.NewClient(nc, cfg.NATS.Prefix, cfg.Avoidance.Timeout.Duration())
	}
	if cfg.NATS.Visualize {
		d.visualizer = visual.NewPublisher(nc, cfg.NATS.Prefix, cfg.NATS.PublishRate, cfg.NATS.PublishBurst, logger)
	}
	return d, nil
}

// startEmbeddedNATS runs an in-process server on the loopback interface.
func startEmbeddedNATS(cfg config.NATSConfig) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   cfg.EmbeddedPort,
		NoLog:  true,
		NoSigs: true,
	}
	if cfg.Token.IsSet() {
		opts.Authorization = cfg.Token.Value()
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.New("embedded NATS server not ready")
	}
	return ns, nil
}
