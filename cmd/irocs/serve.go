package main

import (
	"github.com/spf13/cobra"

	"github.com/lmb-freiburg/irocs/internal/report"
)

var (
	listenAddr     string
	dataDir        string
	profileSamples int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the model store, fits and charts over HTTP",
		Long: `Serve exposes the model database as a JSON API with chart pages and
mounts the SQL console and database backup under /debug/.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
)

func init() {
	f := serveCmd.Flags()
	f.StringVar(&listenAddr, "listen", ":8080", "listen address")
	f.StringVar(&dataDir, "data-dir", "", "directory clients may fit clouds from by name")
	f.IntVar(&profileSamples, "profile-samples", 200, "arc-length samples in profile charts")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadTuning(cmd)
	if err != nil {
		return err
	}
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, stop := signalContext()
	defer stop()

	s := report.NewServer(report.ServerConfig{
		Address:        listenAddr,
		DB:             database,
		Tuning:         cfg,
		DataDir:        dataDir,
		ProfileSamples: profileSamples,
	})
	return s.Start(ctx)
}
