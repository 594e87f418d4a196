package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"newsfeed/internal/bootstrap"
	"newsfeed/internal/config"
	"newsfeed/internal/models"
	"newsfeed/internal/notifications"
	"newsfeed/internal/repository"
	"newsfeed/internal/seed"
	"newsfeed/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// env is everything a subcommand may touch.
type env struct {
	db       *gorm.DB
	rdb      *redis.Client
	userRepo repository.UserRepository
	users    *service.UserService
	usage    *service.UsageService
	likes    repository.LikeRepository
	notifier *notifications.Notifier
	close    func()
}

func newEnv(db *gorm.DB, rdb *redis.Client) *env {
	userRepo := repository.NewUserRepository(db)
	return &env{
		db:       db,
		rdb:      rdb,
		userRepo: userRepo,
		users:    service.NewUserService(userRepo, 0),
		usage:    service.NewUsageService(repository.NewUsageRepository(db), userRepo, rdb),
		likes:    repository.NewLikeRepository(db),
		notifier: notifications.NewNotifier(rdb),
		close:    func() {},
	}
}

// envFactory opens the connections for one command run.
type envFactory func(ctx context.Context) (*env, error)

func connectEnv(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{SkipSchema: true})
	if err != nil {
		return nil, err
	}
	e := newEnv(rt.DB, rt.Redis)
	e.close = func() { rt.Close(context.Background()) }
	return e, nil
}

func newRootCmd(open envFactory) *cobra.Command {
	var jsonOutput bool

	root := &cobra.Command{
		Use:           "admin",
		Short:         "Operate the newsfeed service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	// run opens the environment, runs fn and releases it again.
	run := func(fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			e, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()
			return fn(cmd, e, args)
		}
	}
	printer := func(cmd *cobra.Command) *output {
		return &output{w: cmd.OutOrStdout(), json: jsonOutput}
	}

	root.AddCommand(
		usageCmd(run, printer),
		likesCmd(run, printer),
		adminFlagCmd("promote", true, run, printer),
		adminFlagCmd("demote", false, run, printer),
		adminsCmd(run, printer),
		eventsCmd(run, printer),
		dataCmd(run, printer),
	)
	return root
}

type runner func(fn func(cmd *cobra.Command, e *env, args []string) error) func(*cobra.Command, []string) error

type printerFunc func(cmd *cobra.Command) *output

func usageCmd(run runner, printer printerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect accumulated API usage time",
	}

	show := &cobra.Command{
		Use:   "show <username>",
		Short: "Show the total usage time of one account",
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			entry, err := e.usage.GetUsageByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printer(cmd).usage([]models.UsageEntry{*entry})
		}),
	}

	var limit int
	top := &cobra.Command{
		Use:   "top",
		Short: "List the accounts with the most usage time",
		RunE: run(func(cmd *cobra.Command, e *env, _ []string) error {
			entries, err := e.usage.Top(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printer(cmd).usage(entries)
		}),
	}
	top.Flags().IntVarP(&limit, "limit", "n", 10, "Number of accounts to list")

	rebuild := &cobra.Command{
		Use:   "rebuild-leaderboard",
		Short: "Replace the Redis leaderboard with the totals stored in the database",
		RunE: run(func(cmd *cobra.Command, e *env, _ []string) error {
			if e.rdb == nil {
				return errors.New("redis is not available")
			}
			n, err := e.usage.RebuildLeaderboard(cmd.Context())
			if err != nil {
				return err
			}
			return printer(cmd).message(fmt.Sprintf("leaderboard rebuilt with %d accounts", n), map[string]any{"accounts": n})
		}),
	}

	cmd.AddCommand(show, top, rebuild)
	return cmd
}

func likesCmd(run runner, printer printerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "likes",
		Short: "Maintain like counters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "recount",
		Short: "Recompute every like_count from the stored like edges",
		RunE: run(func(cmd *cobra.Command, e *env, _ []string) error {
			n, err := e.likes.Recount(cmd.Context())
			if err != nil {
				return err
			}
			return printer(cmd).message(fmt.Sprintf("recounted %d rows", n), map[string]any{"rows": n})
		}),
	})
	return cmd
}

func adminFlagCmd(name string, isAdmin bool, run runner, printer printerFunc) *cobra.Command {
	short := "Grant admin rights to an account"
	if !isAdmin {
		short = "Revoke admin rights from an account"
	}
	return &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: run(func(cmd *cobra.Command, e *env, args []string) error {
			ctx := cmd.Context()
			user, err := e.userRepo.GetByUsername(ctx, args[0])
			if err != nil {
				return err
			}
			if user == nil {
				return models.NewNotFoundError("User", args[0])
			}
			if user.IsAdmin == isAdmin {
				return printer(cmd).message(fmt.Sprintf("%s is unchanged", user.Username), user)
			}
			updated, err := e.users.SetAdmin(ctx, user.ID, isAdmin)
			if err != nil {
				return err
			}
			return printer(cmd).message(fmt.Sprintf("%s: %s (ID: %d)", name, updated.Username, updated.ID), updated)
		}),
	}
}

func adminsCmd(run runner, printer printerFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "admins",
		Short: "List every admin account",
		RunE: run(func(cmd *cobra.Command, e *env, _ []string) error {
			admins, err := e.userRepo.ListAdmins(cmd.Context())
			if err != nil {
				return err
			}
			return printer(cmd).users(admins)
		}),
	}
}

func eventsCmd(run runner, printer printerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Watch published newsfeed events",
	}

	var duration time.Duration
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print events as they are published until interrupted",
		RunE: run(func(cmd *cobra.Command, e *env, _ []string) error {
			if e.rdb == nil {
				return errors.New("redis is not available")
			}
			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			out := printer(cmd)
			msgs := make(chan notifications.Delivery, 64)
			err := e.notifier.Subscribe(ctx, func(d notifications.Delivery) {
				select {
				case msgs <- d:
				case <-ctx.Done():
				}
			})
			if err != nil {
				return err
			}
			for {
				select {
				case <-ctx.Done():
					return nil
				case m := <-msgs:
					if err := out.event(m.Channel, m.Raw); err != nil {
						return err
					}
				}
			}
		}),
	}
	tail.Flags().DurationVar(&duration, "for", 0, "Stop after this long (0 runs until interrupted)")

	cmd.AddCommand(tail)
	return cmd
}

func dataCmd(run runner, printer printerFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored data",
	}

	var confirmed bool
	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete every user, post, comment, like and usage record",
		RunE: run(func(cmd *cobra.Command, e *env, _ []string) error {
			if !confirmed {
				return errors.New("refusing to delete data without --yes")
			}
			if err := seed.ClearData(cmd.Context(), e.db); err != nil {
				return err
			}
			if e.rdb != nil {
				if err := e.rdb.FlushDB(cmd.Context()).Err(); err != nil {
					return fmt.Errorf("flush redis: %w", err)
				}
			}
			return printer(cmd).message("data reset", map[string]any{"reset": true})
		}),
	}
	reset.Flags().BoolVar(&confirmed, "yes", false, "Confirm the deletion")

	cmd.AddCommand(reset)
	return cmd
}

// output renders results as aligned tables or JSON.
type output struct {
	w    io.Writer
	json bool
}

func (o *output) encode(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (o *output) message(text string, v any) error {
	if o.json {
		return o.encode(v)
	}
	_, err := fmt.Fprintln(o.w, text)
	return err
}

func (o *output) usage(entries []models.UsageEntry) error {
	if o.json {
		return o.encode(entries)
	}
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tUSERNAME\tTOTAL (ms)")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", e.UserID, e.Username, e.TotalTime)
	}
	return tw.Flush()
}

func (o *output) users(users []models.User) error {
	if o.json {
		return o.encode(users)
	}
	if len(users) == 0 {
		_, err := fmt.Fprintln(o.w, "no admins found")
		return err
	}
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tEMAIL\tSTATUS")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", u.ID, u.Username, u.Email, u.Status)
	}
	return tw.Flush()
}

func (o *output) event(channel, payload string) error {
	if o.json {
		return o.encode(struct {
			Channel string          `json:"channel"`
			Event   json.RawMessage `json:"event"`
		}{channel, json.RawMessage(payload)})
	}
	_, err := fmt.Fprintf(o.w, "%s %s\n", channel, payload)
	return err
}
