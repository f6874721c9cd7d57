// Command irocs fits shell coordinate systems to tube-shaped point clouds,
// stores the fitted models and exports coordinates, meshes and reports.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lmb-freiburg/irocs/internal/config"
	"github.com/lmb-freiburg/irocs/internal/db"
	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
	"github.com/lmb-freiburg/irocs/internal/version"
)

var (
	configPath string
	dbPath     string
	quiet      bool
	devMode    bool

	// Tuning overrides applied on top of the config file.
	stepLength   float64
	marginLength float64
	seed         int64
	workers      int

	osFS fsutil.FileSystem = fsutil.OSFileSystem{}

	rootCmd = &cobra.Command{
		Use:   "irocs",
		Short: "Intrinsic shell coordinates for tube-shaped point clouds",
		Long: `irocs fits a smooth central axis with elliptical cross-sections to a
point cloud and maps points into (axial, angle, radial) shell coordinates.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if quiet {
				monitoring.SetLogger(nil)
			}
			db.DevMode = devMode
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "tuning config JSON layered over the defaults")
	pf.StringVar(&dbPath, "db", "irocs.db", "path to the model database")
	pf.BoolVarP(&quiet, "quiet", "q", false, "suppress progress logging")
	pf.BoolVar(&devMode, "dev", false, "read migrations from internal/db/migrations on disk")

	addTuningFlags(fitCmd)
	addTuningFlags(serveCmd)

	rootCmd.AddCommand(fitCmd, coordsCmd, meshCmd, synthCmd, modelsCmd, migrateCmd, serveCmd, versionCmd)
}

func addTuningFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Float64Var(&stepLength, "step", 0, "control point spacing (overrides step_length)")
	f.Float64Var(&marginLength, "margin", 0, "extrapolated length at each end (overrides margin_length)")
	f.Int64Var(&seed, "seed", 0, "RANSAC seed (overrides seed)")
	f.IntVar(&workers, "workers", 0, "parallel workers, 0 for GOMAXPROCS (overrides workers)")
}

// loadTuning layers the config file and any changed tuning flags over the
// defaults and validates the result.
func loadTuning(cmd *cobra.Command) (*config.TuningConfig, error) {
	cfg := config.DefaultTuningConfig()
	if configPath != "" {
		loaded, err := config.LoadTuningConfig(configPath)
		if err != nil {
			return nil, err
		}
		cfg = cfg.Merge(loaded)
	}

	flags := cmd.Flags()
	if flags.Changed("step") {
		cfg.StepLength = &stepLength
	}
	if flags.Changed("margin") {
		cfg.MarginLength = &marginLength
	}
	if flags.Changed("seed") {
		cfg.Seed = &seed
	}
	if flags.Changed("workers") {
		cfg.Workers = &workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// openDB opens the model database, applying pending migrations.
func openDB() (*db.DB, error) {
	database, err := db.NewDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	return database, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmsgprefix)
	log.SetPrefix("irocs: ")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
