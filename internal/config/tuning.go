package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/shell"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for fit parameters.
// The schema matches the /api/params endpoint so the same JSON can be used
// for both the CLI and the HTTP server.
type TuningConfig struct {
	// Sampling
	StepLength   *float64 `json:"step_length,omitempty"`
	MarginLength *float64 `json:"margin_length,omitempty"`

	// Initial axis overrides, [x, y, z]
	ReferencePoint *[3]float64 `json:"reference_point,omitempty"`
	AxisDirection  *[3]float64 `json:"axis_direction,omitempty"`

	// Iteration counts
	AxisIterations    *int `json:"axis_iterations,omitempty"`
	EllipseIterations *int `json:"ellipse_iterations,omitempty"`

	// Cross-section fitting
	RANSACTrials     *int     `json:"ransac_trials,omitempty"`
	RANSACSampleSize *int     `json:"ransac_sample_size,omitempty"`
	MinWindowPoints  *int     `json:"min_window_points,omitempty"`
	WindowGrowth     *float64 `json:"window_growth,omitempty"`
	InlierThreshold  *float64 `json:"inlier_threshold,omitempty"`

	// Execution
	Seed       *int64  `json:"seed,omitempty"`
	Workers    *int    `json:"workers,omitempty"`
	FitTimeout *string `json:"fit_timeout,omitempty"` // duration string like "5m"

	// Strategies
	FrameStrategy *string `json:"frame_strategy,omitempty"`
	Blending      *string `json:"blending,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrInt64(v int64) *int64       { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to the
// value its Get* accessor falls back to.
func DefaultTuningConfig() *TuningConfig {
	c := EmptyTuningConfig()
	return &TuningConfig{
		StepLength:        ptrFloat64(c.GetStepLength()),
		MarginLength:      ptrFloat64(c.GetMarginLength()),
		AxisIterations:    ptrInt(c.GetAxisIterations()),
		EllipseIterations: ptrInt(c.GetEllipseIterations()),
		RANSACTrials:      ptrInt(c.GetRANSACTrials()),
		RANSACSampleSize:  ptrInt(c.GetRANSACSampleSize()),
		MinWindowPoints:   ptrInt(c.GetMinWindowPoints()),
		WindowGrowth:      ptrFloat64(c.GetWindowGrowth()),
		InlierThreshold:   ptrFloat64(c.GetInlierThreshold()),
		Seed:              ptrInt64(c.GetSeed()),
		Workers:           ptrInt(c.GetWorkers()),
		FitTimeout:        ptrString(c.GetFitTimeout().String()),
		FrameStrategy:     ptrString(string(c.GetFrameStrategy())),
		Blending:          ptrString(string(c.GetBlending())),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTuningConfig(data)
}

// ParseTuningConfig parses and validates a JSON tuning document.
func ParseTuningConfig(data []byte) (*TuningConfig, error) {
	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/irocs/
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a new config with the fields set in o layered over c.
// Neither input is modified.
func (c *TuningConfig) Merge(o *TuningConfig) *TuningConfig {
	out := EmptyTuningConfig()
	for _, layer := range []*TuningConfig{c, o} {
		if layer == nil {
			continue
		}
		// Omitted fields leave out untouched.
		data, err := json.Marshal(layer)
		if err != nil {
			continue
		}
		_ = json.Unmarshal(data, out)
	}
	return out
}

// Validate checks that the configuration values are valid. Cross-field
// constraints are checked again by shell.Params.Validate.
func (c *TuningConfig) Validate() error {
	if c.StepLength != nil && !(*c.StepLength > 0) {
		return fmt.Errorf("step_length must be positive, got %g", *c.StepLength)
	}
	if c.MarginLength != nil && *c.MarginLength < 0 {
		return fmt.Errorf("margin_length must be non-negative, got %g", *c.MarginLength)
	}
	for name, v := range map[string]*int{
		"axis_iterations":    c.AxisIterations,
		"ellipse_iterations": c.EllipseIterations,
		"ransac_trials":      c.RANSACTrials,
		"min_window_points":  c.MinWindowPoints,
	} {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, *v)
		}
	}
	if c.RANSACSampleSize != nil && *c.RANSACSampleSize < 5 {
		return fmt.Errorf("ransac_sample_size must be at least 5, got %d", *c.RANSACSampleSize)
	}
	if c.WindowGrowth != nil && !(*c.WindowGrowth > 1) {
		return fmt.Errorf("window_growth must be greater than 1, got %g", *c.WindowGrowth)
	}
	if c.InlierThreshold != nil && !(*c.InlierThreshold > 0) {
		return fmt.Errorf("inlier_threshold must be positive, got %g", *c.InlierThreshold)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.AxisDirection != nil && *c.AxisDirection == [3]float64{} {
		return fmt.Errorf("axis_direction must be non-zero")
	}

	// Validate FitTimeout can be parsed if set
	if c.FitTimeout != nil && *c.FitTimeout != "" {
		if _, err := time.ParseDuration(*c.FitTimeout); err != nil {
			return fmt.Errorf("invalid fit_timeout '%s': %w", *c.FitTimeout, err)
		}
	}

	if c.FrameStrategy != nil {
		switch shell.FrameStrategy(*c.FrameStrategy) {
		case shell.FrameParallelTransport, shell.FrameFixedReference:
		default:
			return fmt.Errorf("unknown frame_strategy %q", *c.FrameStrategy)
		}
	}
	if c.Blending != nil {
		switch shell.BlendPolicy(*c.Blending) {
		case shell.BlendGaussian, shell.BlendNearestSegment:
		default:
			return fmt.Errorf("unknown blending %q", *c.Blending)
		}
	}
	return nil
}

// ToParams converts the configuration into fit parameters. Unset fields
// take their defaults.
func (c *TuningConfig) ToParams() shell.Params {
	p := shell.DefaultParams(c.GetStepLength(), c.GetMarginLength())
	p.AxisIterations = c.GetAxisIterations()
	p.EllipseIterations = c.GetEllipseIterations()
	p.RANSACTrials = c.GetRANSACTrials()
	p.RANSACSampleSize = c.GetRANSACSampleSize()
	p.MinWindowPoints = c.GetMinWindowPoints()
	p.WindowGrowth = c.GetWindowGrowth()
	p.InlierThreshold = c.GetInlierThreshold()
	p.Seed = c.GetSeed()
	p.Workers = c.GetWorkers()
	p.Frames = c.GetFrameStrategy()
	p.Blending = c.GetBlending()
	if c.ReferencePoint != nil {
		v := vector(*c.ReferencePoint)
		p.ReferencePoint = &v
	}
	if c.AxisDirection != nil {
		v := vector(*c.AxisDirection)
		p.AxisDirection = &v
	}
	return p
}

func vector(a [3]float64) r3.Vector {
	return r3.Vector{X: a[0], Y: a[1], Z: a[2]}
}

// GetStepLength returns the step_length value or the default.
func (c *TuningConfig) GetStepLength() float64 {
	if c.StepLength == nil {
		return 10 // default, in point cloud units
	}
	return *c.StepLength
}

// GetMarginLength returns the margin_length value or the default.
func (c *TuningConfig) GetMarginLength() float64 {
	if c.MarginLength == nil {
		return 20
	}
	return *c.MarginLength
}

// GetAxisIterations returns the axis_iterations value or the default.
func (c *TuningConfig) GetAxisIterations() int {
	if c.AxisIterations == nil {
		return 5
	}
	return *c.AxisIterations
}

// GetEllipseIterations returns the ellipse_iterations value or the default.
func (c *TuningConfig) GetEllipseIterations() int {
	if c.EllipseIterations == nil {
		return 2
	}
	return *c.EllipseIterations
}

// GetRANSACTrials returns the ransac_trials value or the default.
func (c *TuningConfig) GetRANSACTrials() int {
	if c.RANSACTrials == nil {
		return 300
	}
	return *c.RANSACTrials
}

// GetRANSACSampleSize returns the ransac_sample_size value or the default.
func (c *TuningConfig) GetRANSACSampleSize() int {
	if c.RANSACSampleSize == nil {
		return 6
	}
	return *c.RANSACSampleSize
}

// GetMinWindowPoints returns the min_window_points value or the default.
func (c *TuningConfig) GetMinWindowPoints() int {
	if c.MinWindowPoints == nil {
		return 20
	}
	return *c.MinWindowPoints
}

// GetWindowGrowth returns the window_growth value or the default.
func (c *TuningConfig) GetWindowGrowth() float64 {
	if c.WindowGrowth == nil {
		return 1.5
	}
	return *c.WindowGrowth
}

// GetInlierThreshold returns the inlier_threshold value or the default.
func (c *TuningConfig) GetInlierThreshold() float64 {
	if c.InlierThreshold == nil {
		return 0.05
	}
	return *c.InlierThreshold
}

// GetSeed returns the seed value or the default.
func (c *TuningConfig) GetSeed() int64 {
	if c.Seed == nil {
		return 1
	}
	return *c.Seed
}

// GetWorkers returns the workers value or the default (0: one per CPU).
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetFitTimeout parses and returns the FitTimeout as a time.Duration.
// Zero means no timeout.
func (c *TuningConfig) GetFitTimeout() time.Duration {
	if c.FitTimeout == nil || *c.FitTimeout == "" {
		return 10 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.FitTimeout)
	if err != nil {
		return 10 * time.Minute // default on parse error
	}
	return d
}

// GetFrameStrategy returns the frame_strategy value or the default.
func (c *TuningConfig) GetFrameStrategy() shell.FrameStrategy {
	if c.FrameStrategy == nil {
		return shell.FrameParallelTransport
	}
	return shell.FrameStrategy(*c.FrameStrategy)
}

// GetBlending returns the blending value or the default.
func (c *TuningConfig) GetBlending() shell.BlendPolicy {
	if c.Blending == nil {
		return shell.BlendGaussian
	}
	return shell.BlendPolicy(*c.Blending)
}
