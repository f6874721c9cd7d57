package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"
	"github.com/spf13/cobra"

	"github.com/lmb-freiburg/irocs/internal/config"
	"github.com/lmb-freiburg/irocs/internal/db"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
	"github.com/lmb-freiburg/irocs/internal/pointio"
	"github.com/lmb-freiburg/irocs/internal/report"
	"github.com/lmb-freiburg/irocs/internal/shell"
)

var (
	fitName        string
	fitNoSave      bool
	fitCoordsOut   string
	fitMeshOut     string
	fitProfileOut  string
	fitNormalized  bool
	meshLatitudes  int
	meshLongitudes int

	fitCmd = &cobra.Command{
		Use:   "fit <points>",
		Short: "Fit a shell model to a point cloud and store it",
		Long: `Fit reads an XYZ or CSV point cloud, fits the shell model and stores it
in the model database. The coordinates of the input points, the fitted
surface and a radius profile can be written in the same run.`,
		Args: cobra.ExactArgs(1),
		RunE: runFit,
	}
)

func init() {
	f := fitCmd.Flags()
	f.StringVar(&fitName, "name", "", "model name (defaults to the file name)")
	f.BoolVar(&fitNoSave, "no-save", false, "do not store the model")
	f.StringVar(&fitCoordsOut, "coords", "", "write shell coordinates of the input points to this CSV")
	f.BoolVar(&fitNormalized, "normalized", false, "normalize the radial coordinate by the local cross-section")
	f.StringVar(&fitMeshOut, "mesh", "", "write the fitted surface to this .obj or .stl file")
	f.StringVar(&fitProfileOut, "profile", "", "write a radius profile plot to this .png file")
	addMeshFlags(fitCmd)
}

func addMeshFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&meshLatitudes, "lat", 64, "surface rings along the axis")
	cmd.Flags().IntVar(&meshLongitudes, "lon", 32, "surface vertices per ring")
}

// fitPoints runs a fit with the configured timeout, logging progress.
func fitPoints(ctx context.Context, points []r3.Vector, cfg *config.TuningConfig) (*shell.Transform, error) {
	params := cfg.ToParams()
	params.Progress = &monitoring.LogProgress{Prefix: "fit", Every: 50}

	ctx, cancel := context.WithTimeout(ctx, cfg.GetFitTimeout())
	defer cancel()

	start := time.Now()
	t, err := shell.Fit(ctx, points, params)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("[fit] %d points -> %d control points, length %.3f in %s",
		len(points), t.Len(), t.TotalLength(), time.Since(start).Round(time.Millisecond))
	return t, nil
}

func runFit(cmd *cobra.Command, args []string) error {
	cfg, err := loadTuning(cmd)
	if err != nil {
		return err
	}
	points, err := pointio.ReadPointsFile(osFS, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()
	t, err := fitPoints(ctx, points, cfg)
	if err != nil {
		return err
	}

	name := fitName
	if name == "" {
		name = filepath.Base(args[0])
	}
	if !fitNoSave {
		database, err := openDB()
		if err != nil {
			return err
		}
		defer database.Close()

		paramsJSON, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		rec := &db.ModelRecord{
			Name:       name,
			SourcePath: args[0],
			PointCount: len(points),
			ParamsJSON: string(paramsJSON),
		}
		if err := database.SaveModel(ctx, rec, t); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), rec.ID)
	}

	return writeOutputs(ctx, t, points, name)
}

// writeOutputs writes whichever of the optional fit outputs were requested.
func writeOutputs(ctx context.Context, t *shell.Transform, points []r3.Vector, name string) error {
	if fitCoordsOut != "" {
		coords, err := t.MapPoints(ctx, points, fitNormalized)
		if err != nil {
			return err
		}
		if err := pointio.WriteCoordinatesFile(osFS, fitCoordsOut, points, coords); err != nil {
			return err
		}
	}
	if fitMeshOut != "" {
		m, err := t.Surface(meshLatitudes, meshLongitudes)
		if err != nil {
			return err
		}
		if err := pointio.WriteMeshFile(osFS, fitMeshOut, m); err != nil {
			return err
		}
	}
	if fitProfileOut != "" {
		p, err := report.NewProfile(t, 200)
		if err != nil {
			return err
		}
		if err := report.SaveProfilePNG(osFS, fitProfileOut, p, name); err != nil {
			return err
		}
	}
	return nil
}
