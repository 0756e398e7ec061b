package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/schoolscreen/internal/config"
	"github.com/roach88/schoolscreen/internal/kv"
	"github.com/roach88/schoolscreen/internal/kv/drivers"
	"github.com/roach88/schoolscreen/internal/record"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose     bool
	Format      string // "json" | "text"
	ConfigPath  string
	LogFormat   string
	StoreDriver string
	StorePath   string

	// Config is loaded in PersistentPreRunE.
	Config config.Config

	// Logger is built from Config.Log in PersistentPreRunE.
	Logger *slog.Logger

	// OpenStore opens the record store. Tests substitute their own.
	OpenStore func(ctx context.Context, cfg config.Store) (kv.Store, error)
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for screenctl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{OpenStore: drivers.Open})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.OpenStore == nil {
		opts.OpenStore = drivers.Open
	}

	cmd := &cobra.Command{
		Use:   "screenctl",
		Short: "Manage school health screening records",
		Long: `screenctl manages the screening records kept by the school health
screening wizard: list and inspect saved screenings, export and import
snapshots, mark them completed, upload them to an EMR and export a roster
workbook. "walk" replays scripted screening sessions.

Configuration is read from --config (YAML), then SCHOOLSCREEN_* environment
variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML config file")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format on stderr (text|json)")
	cmd.PersistentFlags().StringVar(&opts.StoreDriver, "store", "", "store driver ("+strings.Join(config.Drivers, "|")+")")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "db", "", "store path (file directory or sqlite database)")

	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewCompleteCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewRebuildIndexCommand(opts))
	cmd.AddCommand(NewRosterCommand(opts))
	cmd.AddCommand(NewSettingsCommand(opts))
	cmd.AddCommand(NewUploadCommand(opts))
	cmd.AddCommand(NewSummarizeCommand(opts))
	cmd.AddCommand(NewWalkCommand(opts))

	return cmd
}

// load reads the configuration, applies flag overrides and installs the
// logger.
func (o *RootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.StoreDriver != "" {
		cfg.Store.Driver = o.StoreDriver
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	o.Config = cfg
	o.Logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(o.Logger)
	return nil
}

// newLogger builds the stderr handler. Unknown levels fall back to info.
func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

// openRepository opens the configured store. The returned close function
// logs close failures instead of returning them.
func (o *RootOptions) openRepository(ctx context.Context) (*record.Repository, func(), error) {
	o.Logger.Debug("opening store", "driver", o.Config.Store.Driver, "path", o.Config.Store.Path)
	store, err := o.OpenStore(ctx, o.Config.Store)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open store", err)
	}
	closeFn := func() {
		if err := store.Close(); err != nil {
			o.Logger.Error("error closing store", "error", err)
		}
	}
	return record.New(store, record.WithLogger(o.Logger)), closeFn, nil
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// commandContext returns cmd's context, or Background when run outside
// Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
