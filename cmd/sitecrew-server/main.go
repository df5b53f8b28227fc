package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sourcegraph/conc/pool"

	server "github.com/kazz187/sitecrew/internal"
	"github.com/kazz187/sitecrew/internal/assignment"
	"github.com/kazz187/sitecrew/internal/config"
	"github.com/kazz187/sitecrew/internal/dashboard"
	"github.com/kazz187/sitecrew/internal/eventbus"
	"github.com/kazz187/sitecrew/internal/eventstream"
	"github.com/kazz187/sitecrew/internal/project"
	projectrepo "github.com/kazz187/sitecrew/internal/project/repositoryimpl"
	"github.com/kazz187/sitecrew/internal/pushnotification"
	pushsubrepo "github.com/kazz187/sitecrew/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/sitecrew/pkg/clog"
	"github.com/kazz187/sitecrew/pkg/panicerr"
)

var (
	app     = kingpin.New("sitecrew-server", "Worker task assignment service for construction sites")
	envFile = app.Flag("env-file", "Load environment variables from this file first").String()

	serveCmd = app.Command("serve", "Run the HTTP API").Default()

	dashboardCmd        = app.Command("dashboard", "Print a dashboard summary as JSON")
	dashboardProject    = dashboardCmd.Flag("project", "Project ID").String()
	dashboardSupervisor = dashboardCmd.Flag("supervisor", "Supervisor ID").String()
	dashboardDay        = dashboardCmd.Flag("day", "Day as YYYY-MM-DD (default: today)").String()
)

const shutdownTimeout = 10 * time.Second

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load env file %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	}

	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}
	setupLogger(env)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	switch command {
	case serveCmd.FullCommand():
		err = serve(ctx, env)
	case dashboardCmd.FullCommand():
		err = printDashboard(ctx, env, *dashboardProject, *dashboardSupervisor, *dashboardDay)
	}
	if err != nil {
		slog.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func setupLogger(env *config.Env) {
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewHTTPTextHandler(os.Stderr, clog.WithLevel(level), clog.WithColor(!color.NoColor))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))
}

func serve(ctx context.Context, env *config.Env) error {
	loc, err := env.Location()
	if err != nil {
		return err
	}
	store, err := openStorage(ctx, config.StorageEnvFromEnv(env))
	if err != nil {
		return err
	}
	assignmentRepo, closeRepo, err := openAssignmentRepository(ctx, env, store)
	if err != nil {
		return err
	}
	defer closeRepo()
	locker, closeLocker, err := openLocker(ctx, &env.RedisEnv)
	if err != nil {
		return err
	}
	defer closeLocker()

	bus := eventbus.New()

	projectRepo := projectrepo.NewYAMLRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	assignmentService := assignment.NewService(assignmentRepo, locker, project.NewFenceLookup(projectRepo), bus,
		assignment.WithLocationFreshness(env.LocationFreshness),
		assignment.WithLockTimeout(env.LockTimeout),
	)
	dashboardService := dashboard.NewService(assignmentRepo)

	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(
		env,
		assignment.NewServer(assignmentService, loc),
		project.NewServer(projectRepo),
		dashboard.NewServer(dashboardService, loc),
		pushnotification.NewServer(vapidEnv, pushSubRepo, pushSender),
	)

	p := pool.New().WithContext(ctx).WithCancelOnError()

	p.Go(panicerr.SafeWorker("push-dispatcher", func(ctx context.Context) error {
		pushDispatcher.Start(ctx)
		return nil
	}))
	if len(env.Brokers) > 0 {
		publisher := eventstream.NewPublisher(bus, eventstream.NewKafkaWriter(env.Brokers, env.Topic))
		p.Go(panicerr.SafeWorker("event-stream", publisher.Run))
	}
	if env.SeedFile != "" {
		p.Go(panicerr.SafeWorker("project-seed", project.NewSeedWatcher(env.SeedFile, projectRepo).Run))
	}

	p.Go(func(ctx context.Context) error {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		return nil
	})

	return p.Wait()
}

func printDashboard(ctx context.Context, env *config.Env, projectID, supervisorID, rawDay string) error {
	if (projectID == "") == (supervisorID == "") {
		return errors.New("exactly one of --project or --supervisor is required")
	}
	loc, err := env.Location()
	if err != nil {
		return err
	}
	day, err := assignment.ResolveDay(rawDay, time.Now(), loc)
	if err != nil {
		return err
	}
	store, err := openStorage(ctx, config.StorageEnvFromEnv(env))
	if err != nil {
		return err
	}
	repo, closeRepo, err := openAssignmentRepository(ctx, env, store)
	if err != nil {
		return err
	}
	defer closeRepo()

	svc := dashboard.NewService(repo)
	var summary dashboard.Summary
	if projectID != "" {
		summary, err = svc.ForProject(ctx, projectID, day)
	} else {
		summary, err = svc.ForSupervisor(ctx, supervisorID, day)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
