package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmb-freiburg/irocs/internal/db"
	"github.com/lmb-freiburg/irocs/internal/pointio"
	"github.com/lmb-freiburg/irocs/internal/report"
	"github.com/lmb-freiburg/irocs/internal/security"
	"github.com/lmb-freiburg/irocs/internal/shell"
)

var (
	coordsOut        string
	coordsNormalized bool
	meshOut          string
	listLimit        int
	reportDir        string

	coordsCmd = &cobra.Command{
		Use:   "coords <model-id> <points>",
		Short: "Map points into the shell coordinates of a stored model",
		Args:  cobra.ExactArgs(2),
		RunE:  runCoords,
	}

	meshCmd = &cobra.Command{
		Use:   "mesh <model-id>",
		Short: "Export the fitted surface of a stored model as OBJ or STL",
		Args:  cobra.ExactArgs(1),
		RunE:  runMesh,
	}

	modelsCmd = &cobra.Command{
		Use:   "models",
		Short: "Manage stored models",
	}
	modelsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored models, newest first",
		Args:  cobra.NoArgs,
		RunE:  runModelsList,
	}
	modelsShowCmd = &cobra.Command{
		Use:   "show <model-id>",
		Short: "Print a model record and its cross-section summary as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelsShow,
	}
	modelsDeleteCmd = &cobra.Command{
		Use:   "delete <model-id>",
		Short: "Delete a stored model",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelsDelete,
	}
	modelsReportCmd = &cobra.Command{
		Use:   "report <model-id>",
		Short: "Write an HTML report and a profile PNG for a stored model",
		Args:  cobra.ExactArgs(1),
		RunE:  runModelsReport,
	}
)

func init() {
	coordsCmd.Flags().StringVarP(&coordsOut, "out", "o", "", "output CSV (required)")
	coordsCmd.Flags().BoolVar(&coordsNormalized, "normalized", false, "normalize the radial coordinate by the local cross-section")
	coordsCmd.MarkFlagRequired("out")

	meshCmd.Flags().StringVarP(&meshOut, "out", "o", "", "output .obj or .stl file (required)")
	meshCmd.MarkFlagRequired("out")
	addMeshFlags(meshCmd)

	modelsListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum number of models, 0 for all")

	modelsReportCmd.Flags().StringVar(&reportDir, "dir", ".", "directory the report files are written to")
	addMeshFlags(modelsReportCmd)

	modelsCmd.AddCommand(modelsListCmd, modelsShowCmd, modelsDeleteCmd, modelsReportCmd)
}

// loadModel opens the database and loads one model.
func loadModel(ctx context.Context, id string) (*shell.Transform, *db.ModelRecord, error) {
	database, err := openDB()
	if err != nil {
		return nil, nil, err
	}
	defer database.Close()
	return database.LoadModel(ctx, id)
}

func runCoords(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	t, _, err := loadModel(ctx, args[0])
	if err != nil {
		return err
	}
	points, err := pointio.ReadPointsFile(osFS, args[1])
	if err != nil {
		return err
	}
	coords, err := t.MapPoints(ctx, points, coordsNormalized)
	if err != nil {
		return err
	}
	return pointio.WriteCoordinatesFile(osFS, coordsOut, points, coords)
}

func runMesh(cmd *cobra.Command, args []string) error {
	t, _, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	m, err := t.Surface(meshLatitudes, meshLongitudes)
	if err != nil {
		return err
	}
	return pointio.WriteMeshFile(osFS, meshOut, m)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	models, err := database.ListModels(cmd.Context(), listLimit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tPOINTS\tCONTROL POINTS\tLENGTH")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.3f\n",
			m.ID, m.Name, m.Created().Format(time.RFC3339), m.PointCount, m.ControlPoints, m.TotalLength)
	}
	return tw.Flush()
}

func runModelsShow(cmd *cobra.Command, args []string) error {
	t, rec, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	p, err := report.NewProfile(t, 2)
	if err != nil {
		return err
	}
	out := struct {
		*db.ModelRecord
		Summary report.Summary `json:"summary"`
	}{rec, p.Summary}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runModelsDelete(cmd *cobra.Command, args []string) error {
	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	return database.DeleteModel(cmd.Context(), args[0])
}

func runModelsReport(cmd *cobra.Command, args []string) error {
	t, rec, err := loadModel(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	p, err := report.NewProfile(t, 200)
	if err != nil {
		return err
	}
	m, err := t.Surface(meshLatitudes, meshLongitudes)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(reportDir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	base := security.SanitizeFilename(rec.Name)
	htmlPath, err := security.ResolveWithin(reportDir, base+".html")
	if err != nil {
		return err
	}
	pngPath, err := security.ResolveWithin(reportDir, base+"-profile.png")
	if err != nil {
		return err
	}

	f, err := osFS.Create(htmlPath)
	if err != nil {
		return err
	}
	if err := report.RenderReportHTML(f, p, m, rec.Name); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := report.SaveProfilePNG(osFS, pngPath, p, rec.Name); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Clean(htmlPath))
	fmt.Fprintln(cmd.OutOrStdout(), filepath.Clean(pngPath))
	return nil
}
