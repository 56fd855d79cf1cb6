package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/celerix-dev/celerix-activity/internal/engine"
	"github.com/celerix-dev/celerix-activity/internal/storage"
	"github.com/celerix-dev/celerix-activity/internal/vault"
	"github.com/celerix-dev/celerix-activity/pkg/schema"
	"github.com/celerix-dev/celerix-activity/pkg/sdk"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// connectFunc opens the ActivityLog a command talks to.
type connectFunc func(cmd *cobra.Command) (sdk.ActivityLog, error)

func defaultAddr() string {
	if addr := os.Getenv("ACTIVITY_STORE_ADDR"); addr != "" {
		return addr
	}
	return "localhost:7001"
}

// newRootCommand constructs the root command. Data commands talk to the daemon
// at --addr unless --data-dir is given, in which case they open the file store
// in-process.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "activity",
		Short:        "Activity log CLI",
		Long:         "Append, update and read per-actor activity logs, and migrate them between backends.",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("addr", defaultAddr(), "daemon address (env ACTIVITY_STORE_ADDR)")
	root.PersistentFlags().String("data-dir", "", "use an embedded file store in this directory instead of the daemon (honors ACTIVITY_MASTER_KEY)")

	connect := func(cmd *cobra.Command) (sdk.ActivityLog, error) {
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			return sdk.OpenEmbedded(cmd.Context(), dir)
		}
		addr, _ := cmd.Flags().GetString("addr")
		return sdk.Connect(addr)
	}

	root.AddCommand(
		newAppendCommand(connect),
		newStatusCommand(connect),
		newEventsCommand(connect),
		newEventCommand(connect),
		newSearchCommand(connect),
		newRetentionCommand(connect),
		newMigrateCommand(),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	bytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bytes))
	return err
}

// withLog opens the log, runs fn and closes the log again.
func withLog(cmd *cobra.Command, connect connectFunc, fn func(ctx context.Context, log sdk.ActivityLog) error) error {
	log, err := connect(cmd)
	if err != nil {
		return err
	}
	defer log.Close()
	return fn(cmd.Context(), log)
}

// newAppendCommand constructs `append <actor>`. The event comes from --json,
// or is built from flags with a fresh UUID and the current time.
func newAppendCommand(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <actor>",
		Short: "Append an event to an actor's log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := eventFromFlags(cmd, args[0])
			if err != nil {
				return err
			}
			return withLog(cmd, connect, func(ctx context.Context, log sdk.ActivityLog) error {
				if err := log.Append(ctx, args[0], ev); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), ev.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("json", "", "full event JSON (other event flags are ignored)")
	cmd.Flags().String("id", "", "event id (default: random UUID)")
	cmd.Flags().String("kind", string(schema.KindBridge), "bridge, swap, deploy or contractCall")
	cmd.Flags().String("status", string(schema.StatusStarted), "initial status")
	cmd.Flags().String("app", "", "originating application")
	cmd.Flags().String("intent", "", "intent id")
	return cmd
}

func eventFromFlags(cmd *cobra.Command, actor string) (schema.EventRecord, error) {
	var ev schema.EventRecord
	if raw, _ := cmd.Flags().GetString("json"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return ev, fmt.Errorf("--json: %w", err)
		}
		return ev, nil
	}
	id, _ := cmd.Flags().GetString("id")
	if id == "" {
		id = uuid.NewString()
	}
	kind, _ := cmd.Flags().GetString("kind")
	status, _ := cmd.Flags().GetString("status")
	app, _ := cmd.Flags().GetString("app")
	intent, _ := cmd.Flags().GetString("intent")

	ev = schema.EventRecord{
		ID:        id,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Actor:     actor,
		App:       app,
		IntentID:  intent,
		Kind:      schema.Kind(kind),
		Status:    schema.Status(status),
	}
	if !ev.Kind.Valid() {
		return ev, fmt.Errorf("unknown kind %q", kind)
	}
	if !ev.Status.Valid() {
		return ev, fmt.Errorf("unknown status %q", status)
	}
	return ev, nil
}

// newStatusCommand constructs `status <actor> <id> <status>`.
func newStatusCommand(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <actor> <id> <status>",
		Short: "Update an event's status and merge transaction hashes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := schema.ParseStatus(args[2])
			if !ok {
				return fmt.Errorf("unknown status %q", args[2])
			}
			var tx *schema.TxUpdate
			src, _ := cmd.Flags().GetString("source-tx")
			dst, _ := cmd.Flags().GetString("dest-tx")
			if src != "" || dst != "" {
				tx = &schema.TxUpdate{}
				if src != "" {
					tx.SourceTxHash = &src
				}
				if dst != "" {
					tx.DestTxHash = &dst
				}
			}
			return withLog(cmd, connect, func(ctx context.Context, log sdk.ActivityLog) error {
				ev, err := log.UpdateStatus(ctx, args[0], args[1], status, tx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ev)
			})
		},
	}
	cmd.Flags().String("source-tx", "", "source transaction hash")
	cmd.Flags().String("dest-tx", "", "destination transaction hash")
	return cmd
}

// newEventsCommand constructs `events <actor>`.
func newEventsCommand(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <actor>",
		Short: "List one page of an actor's log, or all of it with --all",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			cursor, _ := cmd.Flags().GetUint64("cursor")
			all, _ := cmd.Flags().GetBool("all")
			return withLog(cmd, connect, func(ctx context.Context, log sdk.ActivityLog) error {
				if all {
					items := []schema.EventRecord{}
					for ev, err := range sdk.All(ctx, log, args[0], allPageSize(cmd)) {
						if err != nil {
							return err
						}
						items = append(items, ev)
					}
					return printJSON(cmd.OutOrStdout(), items)
				}
				opts := sdk.ListOptions{Cursor: cursor}
				if cmd.Flags().Changed("limit") {
					opts.Limit = &limit
				}
				page, err := log.List(ctx, args[0], opts)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), page)
			})
		},
	}
	cmd.Flags().Int("limit", engine.DefaultPageSize, "page size")
	cmd.Flags().Uint64("cursor", 0, "offset of the first record")
	cmd.Flags().Bool("all", false, "follow cursors until the log is exhausted")
	return cmd
}

// allPageSize is the page size `events --all` walks the log with: --limit when
// given, else the default page size.
func allPageSize(cmd *cobra.Command) int {
	if !cmd.Flags().Changed("limit") {
		return engine.DefaultPageSize
	}
	limit, _ := cmd.Flags().GetInt("limit")
	return limit
}

// newEventCommand constructs `event <actor> <id>`.
func newEventCommand(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "event <actor> <id>",
		Short: "Show a single event",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLog(cmd, connect, func(ctx context.Context, log sdk.ActivityLog) error {
				ev, err := log.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if ev == nil {
					return fmt.Errorf("event %s not found for %s", args[1], args[0])
				}
				return printJSON(cmd.OutOrStdout(), ev)
			})
		},
	}
}

// newSearchCommand constructs `search <actor> <expr>`.
func newSearchCommand(connect connectFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "search <actor> <cel-expr>",
		Short:   "Filter an actor's log with a CEL expression",
		Example: `  activity search 0xabc... 'status == "failed" && kind == "bridge"'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			return withLog(cmd, connect, func(ctx context.Context, log sdk.ActivityLog) error {
				items, err := log.Filter(ctx, args[0], args[1], limit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}
	cmd.Flags().Int("limit", 0, "maximum matches (0 = all)")
	return cmd
}

// newRetentionCommand constructs `retention`.
func newRetentionCommand(connect connectFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "retention",
		Short: "Show the effective retention limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLog(cmd, connect, func(ctx context.Context, log sdk.ActivityLog) error {
				n, err := log.Retention(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}
}

// newMigrateCommand constructs `migrate --from <spec> --to <spec>`.
func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every log and the retention setting between backends",
		Long: "Backend specs are file:DIR, pebble:DIR or sqlite:PATH. " +
			"ACTIVITY_MASTER_KEY applies to file backends on either side.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			masterKey, err := vault.MasterKey(os.Getenv("ACTIVITY_MASTER_KEY"))
			if err != nil {
				return err
			}
			opts := storage.Options{MasterKey: masterKey}
			ctx := cmd.Context()

			src, err := openSpec(ctx, from, opts)
			if err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			defer src.Close()
			dst, err := openSpec(ctx, to, opts)
			if err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			defer dst.Close()

			moved, err := engine.Migrate(ctx, src, dst)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d actor logs\n", moved)
			return nil
		},
	}
	cmd.Flags().String("from", "", "source backend spec")
	cmd.Flags().String("to", "", "destination backend spec")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func openSpec(ctx context.Context, spec string, opts storage.Options) (engine.Backend, error) {
	kind, location, err := storage.ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, kind, location, opts)
}
