package cmd

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/viant/afs"

	"github.com/bsaid97/go-glacier-merger/config"
	"github.com/bsaid97/go-glacier-merger/inventory"
	"github.com/bsaid97/go-glacier-merger/workflow"
)

var (
	configPath string
	logLevel   string
	tolerance  float64
	workers    int
)

// session is what every subcommand runs with, built once per invocation.
type session struct {
	cfg    config.Config
	logger *log.Logger
	fs     afs.Service
}

type sessionKey struct{}

// sessionOf returns the session PersistentPreRunE stored on cmd.
func sessionOf(cmd *cobra.Command) *session {
	s, _ := cmd.Context().Value(sessionKey{}).(*session)
	return s
}

// RootCmd is the glaciermerge command.
var RootCmd = &cobra.Command{
	Use:   "glaciermerge",
	Short: "Merge tributary glaciers into drainage networks",
	Long: `glaciermerge joins inventory glaciers whose ice flows into one another
into merged entities with a single drainage network, reconciled widths and
inventory attributes.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		overrides := map[string]any{}
		if cmd.Flags().Changed("log-level") {
			overrides["log_level"] = logLevel
		}
		if cmd.Flags().Changed("tolerance") {
			overrides["tolerance"] = tolerance
		}
		if cmd.Flags().Changed("workers") {
			overrides["workers"] = workers
		}
		cfg, err := config.Load(configPath, overrides)
		if err != nil {
			return err
		}
		logger := log.NewWithOptions(os.Stderr, log.Options{
			Level:           cfg.Level(),
			ReportTimestamp: true,
			Prefix:          "glaciermerge",
		})
		logger.Debug("configuration loaded", "tolerance", cfg.Tolerance, "border", cfg.Border,
			"area_policy", cfg.AreaPolicy, "use_intersects", cfg.UseIntersects, "workers", cfg.Workers)
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cmd.SetContext(context.WithValue(ctx, sessionKey{}, &session{cfg: cfg, logger: logger, fs: afs.New()}))
		return nil
	},
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default glaciermerge.yaml in the working directory)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	RootCmd.PersistentFlags().Float64Var(&tolerance, "tolerance", 1.0, "Contact tolerance in grid cells")
	RootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Parallel workers, 0 uses every CPU")
}

// loadInventory reads every glacier directory under URL and logs the
// ones that were skipped.
func (s *session) loadInventory(ctx context.Context, URL string) (inventory.Inventory, error) {
	loader := inventory.NewLoader(s.fs, s.cfg.Workers, s.logger)
	inv, diags, err := loader.LoadDir(ctx, URL)
	if err != nil {
		return inventory.Inventory{}, err
	}
	for _, d := range diags {
		s.logger.Warn("inventory diagnostic", "diagnostic", d.String())
	}
	return inv, nil
}

func (s *session) newEngine(ctx context.Context) (*workflow.Engine, error) {
	if !s.cfg.UseIntersects {
		return workflow.NewEngine(s.cfg, nil, s.logger), nil
	}
	table, err := s.readIntersects(ctx)
	if err != nil {
		return nil, err
	}
	return workflow.NewEngine(s.cfg, table, s.logger), nil
}
