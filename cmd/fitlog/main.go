package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/fitlog/internal/config"
	"example.com/fitlog/internal/domain"
	"example.com/fitlog/internal/events"
	"example.com/fitlog/internal/logging"
	"example.com/fitlog/internal/persistence"
	"example.com/fitlog/internal/store"
)

var (
	userID       string
	name         string
	activityType string
	amount       float64
	date         string
	from         string
	to           string
	days         int
)

type app struct {
	db      *store.DB
	repo    *persistence.Repository
	service *domain.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
}

func main() {
	envErr := config.LoadEnvFile()
	cfg := config.Load()
	// stdout carries command output, so logs go to stderr.
	logging.Apply(os.Stderr, cfg.LogLevel, cfg.LogFile)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("No .env file loaded, using environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd(cfg config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fitlog",
		Short:         "Activity log store maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending schema migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), cfg, func(context.Context, *app) error { return nil })
			},
		},
		&cobra.Command{
			Use:   "seed",
			Short: "Insert the development seed activity for today",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
					return a.repo.Seed(ctx, time.Now())
				})
			},
		},
		&cobra.Command{
			Use:   "dump",
			Short: "Print every activity row as JSON lines",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
					rows, err := a.repo.All(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd, rows...)
				})
			},
		},
		registerCmd(cfg),
		logCmd(cfg, false),
		logCmd(cfg, true),
		recentCmd(cfg),
		plannedCmd(cfg),
		clearCmd(cfg),
		completeCmd(cfg),
		historyCmd(cfg),
		weekCmd(cfg),
	)
	return rootCmd
}

func registerCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Return the profile handle for a user, creating it when absent",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				row, err := a.service.RegisterUser(ctx, userID, name)
				if err != nil {
					return err
				}
				profile, err := a.repo.GetInfo(ctx, row)
				if err != nil {
					return err
				}
				return printJSON(cmd, *profile)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func logCmd(cfg config.Config, planned bool) *cobra.Command {
	use, short := "log", "Record a completed activity"
	if planned {
		use, short = "plan", "Record a planned activity"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := parseDay(date, time.Now())
			if err != nil {
				return err
			}
			in := domain.ActivityInput{Activity: activityType, Date: domain.LocalDay(day), Scalar: amount}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				var activity *domain.Activity
				if planned {
					activity, err = a.service.PlanActivity(ctx, userID, in)
				} else {
					activity, err = a.service.LogActivity(ctx, userID, in)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, *activity)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&activityType, "type", "", "activity type")
	cmd.Flags().Float64Var(&amount, "amount", 0, "quantity performed or planned")
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func recentCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently inserted activity for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				activity, err := a.service.MostRecent(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, *activity)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	return cmd
}

func plannedCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "planned",
		Short: "Show the latest planned activity in a day range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			min, max, err := parseRange(from, to, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				activity, err := a.service.PendingPlan(ctx, userID, min, max)
				if err != nil {
					return err
				}
				return printJSON(cmd, *activity)
			})
		},
	}
	rangeFlags(cmd)
	return cmd
}

func clearCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear-planned",
		Short: "Delete planned activities with a negative amount in a day range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			min, max, err := parseRange(from, to, time.Now())
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				deleted, err := a.service.ClearPlanned(ctx, userID, min, max)
				if err != nil {
					return err
				}
				log.Info().Int64("deleted", deleted).Str("userid", userID).Msg("Cleared planned activities")
				return nil
			})
		},
	}
	rangeFlags(cmd)
	return cmd
}

func completeCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Replace the planned activities in a day range with a completed one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			min, max, err := parseRange(from, to, time.Now())
			if err != nil {
				return err
			}
			day, err := parseDay(date, time.Now())
			if err != nil {
				return err
			}
			in := domain.ActivityInput{Activity: activityType, Date: domain.LocalDay(day), Scalar: amount}
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				activity, removed, err := a.service.CompletePlanned(ctx, userID, min, max, in)
				if err != nil {
					return err
				}
				log.Info().Int64("removed", removed).Str("userid", userID).Msg("Completed planned activity")
				return printJSON(cmd, *activity)
			})
		},
	}
	rangeFlags(cmd)
	cmd.Flags().StringVar(&activityType, "type", "", "activity type")
	cmd.Flags().Float64Var(&amount, "amount", 0, "quantity performed")
	cmd.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	return cmd
}

func historyCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List activities of one type over the last days",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 1 {
				return fmt.Errorf("--days must be at least 1")
			}
			now := time.Now()
			min, _ := domain.DayRange(now.AddDate(0, 0, -(days - 1)))
			_, max := domain.DayRange(now)
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				rows, err := a.service.History(ctx, userID, activityType, min, max)
				if err != nil {
					return err
				}
				return printJSON(cmd, rows...)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&activityType, "type", "", "activity type")
	cmd.Flags().IntVar(&days, "days", 7, "number of days ending today")
	return cmd
}

func weekCmd(cfg config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "week",
		Short: "List activities of one type over the seven days ending today",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg, func(ctx context.Context, a *app) error {
				rows, err := a.service.WeekHistory(ctx, userID, activityType)
				if err != nil {
					return err
				}
				return printJSON(cmd, rows...)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&activityType, "type", "", "activity type")
	return cmd
}

func rangeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&from, "from", "", "first day as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&to, "to", "", "last day as YYYY-MM-DD (default from)")
}

// withApp opens the store, migrates it, wires the service and runs fn.
func withApp(ctx context.Context, cfg config.Config, fn func(context.Context, *app) error) error {
	db, err := store.Open(ctx, store.Options{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DSN(),
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
		BusyTimeout:  cfg.DBBusyTimeout,
	})
	if err != nil {
		return err
	}

	a := &app{db: db, closers: []func() error{db.Close}}
	defer a.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	a.repo = persistence.NewRepository(db)
	if cfg.SeedOnStart {
		if err := a.repo.Seed(ctx, time.Now()); err != nil {
			return err
		}
	}

	opts := []domain.Option{domain.WithLogger(log.Logger)}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, publisher.Close)
		opts = append(opts, domain.WithPublisher(publisher))
	}
	a.service = domain.NewService(a.repo, opts...)

	return fn(ctx, a)
}

func parseDay(value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", value, err)
	}
	return t, nil
}

func parseRange(fromValue, toValue string, now time.Time) (int64, int64, error) {
	first, err := parseDay(fromValue, now)
	if err != nil {
		return 0, 0, err
	}
	last, err := parseDay(toValue, first)
	if err != nil {
		return 0, 0, err
	}
	min, _ := domain.DayRange(first)
	_, max := domain.DayRange(last)
	return min, max, nil
}

func printJSON[T any](cmd *cobra.Command, values ...T) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}
