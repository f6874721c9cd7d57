package main

import (
	"github.com/golang/geo/r3"
	"github.com/spf13/cobra"

	"github.com/lmb-freiburg/irocs/internal/monitoring"
	"github.com/lmb-freiburg/irocs/internal/pointio"
	"github.com/lmb-freiburg/irocs/internal/synth"
)

var (
	synthOut  string
	synthTube = synth.Tube{Direction: r3.Vector{X: 1}}

	synthCmd = &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic tube point cloud",
		Long: `Synth samples points on a tube with an elliptical cross-section whose
axis is straight or a circular arc, for trying out fits.`,
		Args: cobra.NoArgs,
		RunE: runSynth,
	}
)

func init() {
	f := synthCmd.Flags()
	f.StringVarP(&synthOut, "out", "o", "", "output .xyz or .csv file (required)")
	f.Float64Var(&synthTube.Length, "length", 100, "axis arc length")
	f.Float64Var(&synthTube.RA, "ra", 5, "first semi-axis")
	f.Float64Var(&synthTube.RB, "rb", 5, "second semi-axis")
	f.Float64Var(&synthTube.Angle, "angle", 0, "cross-section orientation in radians")
	f.Float64Var(&synthTube.Curvature, "curvature", 0, "axis curvature, 0 for a straight tube")
	f.IntVar(&synthTube.Points, "points", 5000, "number of points")
	f.Float64Var(&synthTube.Jitter, "jitter", 0, "uniform noise per coordinate")
	f.Int64Var(&synthTube.Seed, "seed", 1, "random seed")
	synthCmd.MarkFlagRequired("out")
}

func runSynth(cmd *cobra.Command, args []string) error {
	pts, err := synthTube.Generate()
	if err != nil {
		return err
	}
	if err := pointio.WritePointsFile(osFS, synthOut, pts); err != nil {
		return err
	}
	monitoring.Logf("[synth] wrote %d points to %s", len(pts), synthOut)
	return nil
}
