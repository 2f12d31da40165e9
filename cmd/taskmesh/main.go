// Command taskmesh runs the scheduling substrate's processes: a
// worker, the orchestrator, the control-plane HTTP server, and two
// one-shot helpers (submit, migrate). Wiring mirrors
// cmd/divinesense/main.go's cobra/viper root command, split into
// subcommands because this substrate's components are independent
// long-lived processes rather than a single monolithic server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/taskmesh/engine/handler"
	"github.com/hrygo/taskmesh/engine/handlers"
	"github.com/hrygo/taskmesh/engine/llm"
	"github.com/hrygo/taskmesh/engine/notify"
	"github.com/hrygo/taskmesh/engine/orchestrator"
	"github.com/hrygo/taskmesh/engine/planner"
	"github.com/hrygo/taskmesh/engine/worker"
	"github.com/hrygo/taskmesh/internal/profile"
	"github.com/hrygo/taskmesh/internal/version"
	"github.com/hrygo/taskmesh/metrics"
	"github.com/hrygo/taskmesh/server/controlplane"
	"github.com/hrygo/taskmesh/store"
	"github.com/hrygo/taskmesh/store/db"
)

var rootCmd = &cobra.Command{
	Use:   "taskmesh",
	Short: "A crash-resilient, multi-agent workflow execution engine.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
}

func init() {
	viper.SetDefault("store-uri", "taskmesh.db")
	viper.SetDefault("poll-interval", time.Second)
	viper.SetDefault("lease-ttl", 5*time.Minute)
	viper.SetDefault("max-retries-default", 3)
	viper.SetDefault("backoff-on-error", 5*time.Second)
	viper.SetDefault("port", 8088)

	pf := rootCmd.PersistentFlags()
	pf.String("store-uri", "taskmesh.db", "connection string to the durable store (spec.md §6 store_uri)")
	pf.String("worker-id", "", "stable worker identifier; generated if empty (spec.md §6 worker_id)")
	pf.String("addr", "", "address the control-plane server binds to (the metrics server listens on all addresses)")
	pf.Int("port", 8088, "port the control-plane server listens on")
	pf.Duration("poll-interval", time.Second, "tick between store scans (spec.md §6 poll_interval)")
	pf.Duration("lease-ttl", 5*time.Minute, "max IN_PROGRESS age before reclamation (spec.md §6 lease_ttl)")
	pf.Int("max-retries-default", 3, "max_retries of the PLAN task created by submit, inherited by its children (spec.md §6 max_retries_default)")
	pf.Duration("backoff-on-error", 5*time.Second, "worker sleep on loop exceptions (spec.md §6 backoff_on_error)")
	pf.String("telegram-bot-token", "", "optional Telegram bot token for workflow-terminal notifications")
	pf.Int64("telegram-chat-id", 0, "chat id the Telegram notifier posts to")
	pf.String("llm-provider", "", "LLM provider for the planner's decomposer and illustrative handlers (empty disables LLM-backed handlers)")
	pf.String("llm-model", "", "LLM model name")
	pf.String("llm-api-key", "", "LLM API key")
	pf.String("llm-base-url", "", "LLM base URL override")

	for _, name := range []string{
		"store-uri", "worker-id", "addr", "port", "poll-interval", "lease-ttl", "max-retries-default",
		"backoff-on-error", "telegram-bot-token", "telegram-chat-id",
		"llm-provider", "llm-model", "llm-api-key", "llm-base-url",
	} {
		if err := viper.BindPFlag(name, pf.Lookup(name)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("taskmesh")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(workerCmd, orchestratorCmd, serveCmd, submitCmd, migrateCmd, versionCmd)
}

func loadProfile() *profile.Profile {
	p := &profile.Profile{
		StoreURI:          viper.GetString("store-uri"),
		WorkerID:          viper.GetString("worker-id"),
		PollInterval:      viper.GetDuration("poll-interval"),
		LeaseTTL:          viper.GetDuration("lease-ttl"),
		MaxRetriesDefault: viper.GetInt("max-retries-default"),
		BackoffOnError:    viper.GetDuration("backoff-on-error"),
		Addr:              viper.GetString("addr"),
		Port:              viper.GetInt("port"),
		TelegramBotToken:  viper.GetString("telegram-bot-token"),
		TelegramChatID:    viper.GetInt64("telegram-chat-id"),
		LLMProvider:       viper.GetString("llm-provider"),
		LLMModel:          viper.GetString("llm-model"),
		LLMAPIKey:         viper.GetString("llm-api-key"),
		LLMBaseURL:        viper.GetString("llm-base-url"),
	}
	p.FromEnv()
	return p
}

func openStore(ctx context.Context, p *profile.Profile) (*store.Store, error) {
	driver, err := db.NewDriver(p)
	if err != nil {
		return nil, fmt.Errorf("open driver: %w", err)
	}
	st := store.New(driver)
	if err := st.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

func buildRegistry(p *profile.Profile, st *store.Store) *handler.Registry {
	reg := handler.NewRegistry()

	var svc llm.Service
	if p.LLMProvider != "" {
		s, err := llm.NewService(&llm.Config{
			Provider: p.LLMProvider,
			Model:    p.LLMModel,
			APIKey:   p.LLMAPIKey,
			BaseURL:  p.LLMBaseURL,
		})
		if err != nil {
			slog.Warn("taskmesh: failed to construct LLM service, LLM-backed handlers disabled", "error", err)
		} else {
			svc = s
		}
	}
	handlers.RegisterDefaults(reg, svc)

	if svc != nil {
		decomposer := planner.NewDecomposer(svc, reg.TaskTypes())
		reg.Register(store.TaskTypePlan, planner.New(st, decomposer).Handle)
	}
	return reg
}

var workerCmd = &cobra.Command{
	Use:   "worker <task-type> [task-type...]",
	Short: "Run a long-lived worker polling loop for the given task types (spec.md §4.2).",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := loadProfile()
		p.TaskTypes = args
		if err := p.ValidateForWorker(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer st.Close()

		reg := buildRegistry(p, st)
		mreg := metrics.New()
		go serveMetrics(ctx, mreg, p.Port+1)

		w := &worker.Worker{
			ID:             p.WorkerID,
			Name:           p.Name,
			TaskTypes:      p.TaskTypes,
			Store:          st,
			Registry:       reg,
			Metrics:        mreg,
			PollInterval:   p.PollInterval,
			BackoffOnError: p.BackoffOnError,
		}
		slog.Info("taskmesh: worker starting", "profile", p.String())
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

var orchestratorCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Run the single dependency-resolution / lease-reclamation / aggregation loop (spec.md §4.3).",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := loadProfile()
		if err := p.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer st.Close()

		mreg := metrics.New()
		go serveMetrics(ctx, mreg, p.Port+1)

		var notifier orchestrator.Notifier
		if p.TelegramBotToken != "" {
			tg, err := notify.NewTelegram(p.TelegramBotToken, p.TelegramChatID)
			if err != nil {
				slog.Warn("taskmesh: telegram notifier disabled", "error", err)
			} else {
				notifier = tg
			}
		}

		o := &orchestrator.Orchestrator{
			Store:        st,
			LeaseTTL:     p.LeaseTTL,
			PollInterval: p.PollInterval,
			Notifier:     notifier,
			Metrics:      mreg,
		}
		slog.Info("taskmesh: orchestrator starting", "profile", p.String())
		if err := o.Run(ctx); err != nil && err != context.Canceled {
			return err
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the control-plane HTTP façade (spec.md §6).",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := loadProfile()
		if err := p.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer st.Close()

		e := echo.New()
		e.HideBanner = true
		controlplane.New(st).Register(e)

		addr := fmt.Sprintf("%s:%d", p.Addr, p.Port)
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = e.Shutdown(shutdownCtx)
		}()

		slog.Info("taskmesh: control-plane serving", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <goal>",
	Short: "Submit a new workflow as a single PLAN task (spec.md §6 submit_task).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := loadProfile()
		if err := p.Validate(); err != nil {
			return err
		}

		ctx := context.Background()
		st, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer st.Close()

		now := time.Now().UTC()
		workflowID := uuid.NewString()
		if err := st.InsertWorkflow(ctx, &store.Workflow{
			ID:        workflowID,
			Goal:      args[0],
			Status:    store.WorkflowPending,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("insert workflow: %w", err)
		}

		taskID := fmt.Sprintf("%s_plan", workflowID)
		if err := st.InsertTask(ctx, &store.Task{
			ID:           taskID,
			WorkflowID:   workflowID,
			Type:         store.TaskTypePlan,
			Status:       store.TaskPending,
			MaxRetries:   p.MaxRetriesDefault,
			InputContext: map[string]any{"goal": args[0]},
			CreatedAt:    now,
		}); err != nil {
			return fmt.Errorf("insert plan task: %w", err)
		}
		// Workflow stays PENDING here — spec.md §3 reserves Workflow
		// mutation for the orchestrator's aggregation pass, which moves
		// it to RUNNING on its next tick because the PLAN task is PENDING.

		out, _ := json.MarshalIndent(map[string]string{
			"workflow_id": workflowID,
			"plan_task_id": taskID,
		}, "", "  ")
		fmt.Println(string(out))
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the store schema up to date and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := loadProfile()
		if err := p.Validate(); err != nil {
			return err
		}
		ctx := context.Background()
		st, err := openStore(ctx, p)
		if err != nil {
			return err
		}
		defer st.Close()
		fmt.Println("taskmesh: migration complete")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.StringFull())
	},
}

// serveMetrics runs a standalone Prometheus exposition server until
// ctx is cancelled. A bind failure is logged, not fatal: metrics are
// an observability convenience, not load-bearing for the scheduling
// substrate.
func serveMetrics(ctx context.Context, mreg *metrics.Registry, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mreg.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Warn("taskmesh: metrics server failed", "error", err)
	}
}

func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
