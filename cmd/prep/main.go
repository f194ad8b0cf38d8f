package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"prep/internal/auth"
	"prep/internal/callid"
	"prep/internal/config"
	"prep/internal/db"
	httpx "prep/internal/http"
	"prep/internal/interview"
	"prep/internal/keylock"
	"prep/internal/logger"
	"prep/internal/provider"
	"prep/internal/reminders"
	"prep/internal/results"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "prep",
		Short:         "Interview reminders and voice session results",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(interviewsCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func load() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return cfg, log, err
	}
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the reminder scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			a, err := openApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			sink := reminders.NewNotificationSink()
			sched := a.scheduler(sink, reminders.NewLedger())
			locks := keylock.New()
			correlator := results.NewCorrelator(a.store, a.cache, locks, log.WithField("component", "results"))
			broker := callid.NewBroker(a.store, a.cache, locks, log.WithField("component", "callid"))
			pc := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderSecretKey)
			if pc.StubMode() {
				log.Warn("voice provider credentials not set; start-call runs in stub mode")
			}

			jwtSvc := auth.NewJWT(cfg.JWTSecret)
			r := httpx.NewRouter(cfg, httpx.Deps{
				Store:         a.store,
				Correlator:    correlator,
				Broker:        broker,
				Notifications: sink,
				Email:         a.emailSink(),
				Provider:      pc,
				Log:           log,
			}, jwtSvc)

			go sched.Run(ctx)

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           r,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.WithFields(logrus.Fields{
					"addr":     cfg.HTTPAddr,
					"store":    cfg.StoreDriver,
					"cache":    cfg.CacheBackend,
					"timezone": cfg.TimezoneName,
				}).Info("listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			// graceful shutdown
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			select {
			case <-ch:
			case err := <-errCh:
				return err
			}

			cancel()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Report what one reminder sweep would dispatch, without sending",
		Long: "Runs a single dry-run sweep against the durable store and prints what is due.\n" +
			"Nothing is emailed or queued: the dedup ledger lives inside the serve process,\n" +
			"so a standalone sweep cannot tell what was already sent.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := a.scheduler(reminders.NewNotificationSink(), reminders.NewLedger())
			sched.DryRun = true
			stats, err := sched.Tick(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("scanned %d, emails due %d, notifications due %d, errors %d\n",
				stats.Scanned, stats.Emailed, stats.Pushed, stats.Failed)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=postgres, have %q", cfg.StoreDriver)
			}
			gdb, err := db.Connect(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close(gdb)
			if err := db.AutoMigrateAndIndexes(gdb); err != nil {
				return err
			}
			fmt.Println("schema up to date")
			return nil
		},
	}
}

func interviewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "interviews",
		Short: "Manage scheduled interviews",
	}
	cmd.AddCommand(interviewsAddCmd())
	return cmd
}

func interviewsAddCmd() *cobra.Command {
	var (
		iv      interview.Interview
		dateStr string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Schedule an interview",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := load()
			if err != nil {
				return err
			}

			d, err := time.Parse("2006-01-02", strings.TrimSpace(dateStr))
			if err != nil {
				return fmt.Errorf("invalid --date (YYYY-MM-DD): %w", err)
			}
			iv.ScheduledDate = d
			if _, err := iv.StartsAt(cfg.Location); err != nil {
				return err
			}

			a, err := openApp(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.CreateInterview(cmd.Context(), &iv); err != nil {
				return err
			}
			fmt.Printf("Added interview %d: %s (%s) on %s at %s\n", iv.ID, iv.Company, iv.JobRole, dateStr, iv.ScheduledTime)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&iv.OwnerID, "owner-id", "", "owner identity (token sub)")
	f.StringVar(&iv.OwnerEmail, "owner-email", "", "owner email")
	f.StringVar(&iv.OwnerName, "owner-name", "", "owner display name")
	f.StringVar(&iv.Company, "company", "", "company")
	f.StringVar(&iv.JobRole, "role", "", "job role")
	f.StringVar(&dateStr, "date", "", "date, YYYY-MM-DD")
	f.StringVar(&iv.ScheduledTime, "time", "", "local start time, HH:MM")
	f.StringVar(&iv.Location, "location", "", "location")
	f.StringVar(&iv.JobLink, "link", "", "meeting or job link")
	f.StringVar(&iv.Priority, "priority", interview.PriorityMedium, "High, Medium or Low")
	for _, name := range []string{"owner-id", "owner-email", "company", "role", "date", "time"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func tokenCmd() *cobra.Command {
	var owner interview.Owner

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load()
			if err != nil {
				return err
			}
			tok, err := auth.NewJWT(cfg.JWTSecret).Sign(owner)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner.ID, "sub", "", "owner id")
	cmd.Flags().StringVar(&owner.Email, "email", "", "owner email")
	cmd.Flags().StringVar(&owner.Name, "name", "", "owner name")
	_ = cmd.MarkFlagRequired("sub")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
