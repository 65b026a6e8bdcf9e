package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/internal/receipt"
	"github.com/smartdevs17/content-rewards/internal/storage"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:           "content-rewards",
	Short:         "Content reward contests client",
	Long:          `Create contests, submit content for validation and follow outcomes on the rewards ledger.`,
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// loadConfig reads the configuration named by --config and applies flag overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetString("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if level := viper.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if viper.GetBool("debug") {
		cfg.App.Debug = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, utils.WrapAppError(utils.ErrCodeConfiguration, "Invalid configuration", err)
	}
	return cfg, nil
}

// withApp runs fn against a fully initialized application. The context is
// cancelled on SIGINT or SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, app *Application) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Stop()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, app)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseContestID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid contest id", arg)
	}
	return id, nil
}

// parseDeadline accepts unix seconds or any date layout cast understands
func parseDeadline(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	t, err := cast.ToTimeE(s)
	if err != nil {
		return time.Time{}, utils.NewAppError(utils.ErrCodeValidation, "Invalid deadline", s)
	}
	return t, nil
}

// printOutcome prints a write result. An unresolved write is reported with its
// handle so it can be reconciled later.
func printOutcome(cmd *cobra.Command, outcome interface{}, err error) error {
	var timeout *receipt.TimeoutError
	if errors.As(err, &timeout) {
		_ = printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"outcome":     "unknown",
			"tx_hash":     timeout.Handle.Hash,
			"attempts":    timeout.Attempts,
			"last_status": timeout.Last,
		})
		return err
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), outcome)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			if err := app.Serve(); err != nil {
				return err
			}
			<-ctx.Done()
			fmt.Fprintln(cmd.ErrOrStderr(), "Received shutdown signal, stopping...")
			return nil
		})
	},
}

var contestsCmd = &cobra.Command{
	Use:   "contests",
	Short: "List every contest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			contests, err := app.orchestrator.Contests(ctx, app.session)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), contests)
		})
	},
}

var contestCmd = &cobra.Command{
	Use:   "contest <id>",
	Short: "Show one contest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContestID(args[0])
		if err != nil {
			return err
		}
		detail, _ := cmd.Flags().GetBool("detail")
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			if detail {
				d, err := app.orchestrator.Detail(ctx, app.session, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), d)
			}
			contest, err := app.orchestrator.Contest(ctx, app.session, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), contest)
		})
	},
}

var submissionsCmd = &cobra.Command{
	Use:   "submissions <id> [wallet]",
	Short: "List the submissions of a contest, or one wallet's submission",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContestID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			if len(args) == 2 {
				account, err := utils.ParseAddress(args[1])
				if err != nil {
					return err
				}
				sub, err := app.orchestrator.UserSubmission(ctx, app.session, id, account)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sub)
			}
			subs, err := app.orchestrator.Submissions(ctx, app.session, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), subs)
		})
	},
}

var winnersCmd = &cobra.Command{
	Use:   "winners <id>",
	Short: "List the accepted submitters of a contest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContestID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			winners, err := app.orchestrator.Winners(ctx, app.session, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), winners)
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a contest",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		platform, _ := flags.GetString("platform")
		topic, _ := flags.GetString("topic")
		reward, _ := flags.GetString("reward")
		maxWinners, _ := flags.GetInt64("max-winners")
		rawDeadline, _ := flags.GetString("deadline")

		deadline, err := parseDeadline(rawDeadline)
		if err != nil {
			return err
		}

		params := models.CreateContestParams{
			PlatformPattern:   platform,
			RequiredTopic:     topic,
			RewardDescription: reward,
			MaxWinners:        maxWinners,
			Deadline:          deadline,
		}
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			outcome, err := app.orchestrator.CreateContest(ctx, app.session, params)
			return printOutcome(cmd, outcome, err)
		})
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <id> <url>",
	Short: "Submit content to a contest and wait for validation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContestID(args[0])
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			outcome, err := app.orchestrator.SubmitContent(ctx, app.session, id, args[1])
			return printOutcome(cmd, outcome, err)
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <id>",
	Short: "Close a contest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseContestID(args[0])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			if force {
				outcome, err := app.orchestrator.ForceCloseContest(ctx, app.session, id)
				return printOutcome(cmd, outcome, err)
			}
			outcome, err := app.orchestrator.CloseContest(ctx, app.session, id)
			return printOutcome(cmd, outcome, err)
		})
	},
}

var refocusCmd = &cobra.Command{
	Use:   "refocus",
	Short: "Drop cached contest views and reload the list",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			contests, err := app.orchestrator.Refocus(ctx, app.session)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), contests)
		})
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List journaled writes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		states, _ := cmd.Flags().GetStringSlice("state")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := storage.JournalFilter{Limit: limit}
		for _, s := range states {
			filter.States = append(filter.States, storage.EntryState(strings.TrimSpace(s)))
		}
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			if app.journal == nil {
				return utils.NewAppError(utils.ErrCodeConfiguration, "Transaction journal is not enabled")
			}
			entries, err := app.journal.List(ctx, filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entries)
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Resolve journaled writes whose outcome is unknown",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			report, err := app.orchestrator.Reconcile(ctx, app.session)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "content-rewards %s\n", AppVersion)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration is valid!")
		fmt.Fprintf(out, "Environment: %s\n", cfg.App.Environment)
		fmt.Fprintf(out, "Ledger: %s\n", cfg.Ledger.Endpoint)
		if cfg.ContractConfigured() {
			fmt.Fprintf(out, "Contract: %s\n", cfg.Ledger.ContractAddress)
		} else {
			fmt.Fprintln(out, "Contract: not configured")
		}
		fmt.Fprintf(out, "Cache: %s\n", cfg.Cache.Backend)
		if cfg.Storage.Enabled {
			fmt.Fprintf(out, "Journal: %s\n", cfg.Storage.Type)
		} else {
			fmt.Fprintln(out, "Journal: disabled")
		}
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test ledger and journal connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *Application) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Testing ledger connection to %s...\n", app.config.Ledger.Endpoint)
			if err := app.ledger.HealthCheck(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Ledger connection successful")

			if app.journal != nil {
				if err := app.journal.Ping(); err != nil {
					return err
				}
				fmt.Fprintln(out, "Journal connection successful")
			}
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	contestCmd.Flags().Bool("detail", false, "include submissions and winners")

	createCmd.Flags().String("platform", models.PatternAny, "platform pattern the content URL must contain, * for any")
	createCmd.Flags().String("topic", "", "topic the content must cover")
	createCmd.Flags().String("reward", "", "reward description")
	createCmd.Flags().Int64("max-winners", 1, "number of winner slots")
	createCmd.Flags().String("deadline", "", "deadline as unix seconds or a date, empty for none")

	closeCmd.Flags().Bool("force", false, "skip local checks and let the ledger decide")

	journalCmd.Flags().StringSlice("state", nil, "filter by state")
	journalCmd.Flags().Int("limit", 50, "maximum entries")

	rootCmd.AddCommand(serveCmd, contestsCmd, contestCmd, submissionsCmd, winnersCmd,
		createCmd, submitCmd, closeCmd, refocusCmd, journalCmd, reconcileCmd,
		versionCmd, configCmd, pingCmd)
	configCmd.AddCommand(validateConfigCmd)
}
