// Package cli is the zonegen command tree.
package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Flarenzy/dns-zonegen/internal/app"
)

type options struct {
	snapshot         string
	serial           uint32
	defaultTTL       uint32
	forceConfigWrite bool
	verbose          bool
}

// NewRootCommand returns the zonegen command with its subcommands. Zones are
// written to out.
func NewRootCommand(out io.Writer) *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "zonegen",
		Short:         "generate MAAS forward and reverse DNS zones",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(out)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.snapshot, "snapshot", "", "read the fleet from a YAML snapshot instead of DB_CONN")
	flags.Uint32Var(&opts.serial, "serial", 0, "zone serial (default DNS_SERIAL, else the current unix time)")
	flags.Uint32Var(&opts.defaultTTL, "default-ttl", 0, "default record TTL (default DEFAULT_DNS_TTL, else 30)")
	flags.BoolVar(&opts.forceConfigWrite, "force-config-write", false, "mark every zone for a full rewrite")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(newGenerateCommand(opts), newWatchCommand(opts))
	return rootCmd
}

// Execute runs the command tree with os.Args.
func Execute(ctx context.Context, out io.Writer) error {
	return NewRootCommand(out).ExecuteContext(ctx)
}

func newGenerateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "generate every zone once and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			return app.Run(cmd.Context(), cfg, cmd.OutOrStdout(), opts.logger(cmd))
		},
	}
}

func newWatchCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "regenerate zones every time the snapshot file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			return app.Watch(cmd.Context(), cfg, cmd.OutOrStdout(), opts.logger(cmd))
		},
	}
}

// config layers flags over the environment.
func (o *options) config() (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	if o.snapshot != "" {
		cfg.SnapshotPath = o.snapshot
	}
	if o.serial != 0 {
		cfg.Serial = o.serial
	}
	if cfg.Serial == 0 {
		cfg.Serial = uint32(time.Now().Unix())
	}
	if o.defaultTTL != 0 {
		cfg.DefaultTTL = o.defaultTTL
	}
	cfg.ForceConfigWrite = cfg.ForceConfigWrite || o.forceConfigWrite
	return cfg, nil
}

func (o *options) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
