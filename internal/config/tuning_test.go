package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/shell"
)

func TestDefaultTuningConfig(t *testing.T) {
	cfg := DefaultTuningConfig()

	// Test that defaults are set via pointers
	if cfg.StepLength == nil || *cfg.StepLength != 10 {
		t.Errorf("Expected StepLength 10, got %v", cfg.StepLength)
	}
	if cfg.RANSACTrials == nil || *cfg.RANSACTrials != 300 {
		t.Errorf("Expected RANSACTrials 300, got %v", cfg.RANSACTrials)
	}
	if cfg.FitTimeout == nil || *cfg.FitTimeout != "10m0s" {
		t.Errorf("Expected FitTimeout '10m0s', got %v", cfg.FitTimeout)
	}
	if cfg.FrameStrategy == nil || *cfg.FrameStrategy != "parallel_transport" {
		t.Errorf("Expected FrameStrategy parallel_transport, got %v", cfg.FrameStrategy)
	}
	if cfg.ReferencePoint != nil || cfg.AxisDirection != nil {
		t.Errorf("Expected no axis overrides, got %v %v", cfg.ReferencePoint, cfg.AxisDirection)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestEmptyConfigMatchesShellDefaults(t *testing.T) {
	got := EmptyTuningConfig().ToParams()
	want := shell.DefaultParams(10, 20)
	if got.AxisIterations != want.AxisIterations {
		t.Errorf("AxisIterations = %d, want %d", got.AxisIterations, want.AxisIterations)
	}
	if got.EllipseIterations != want.EllipseIterations {
		t.Errorf("EllipseIterations = %d, want %d", got.EllipseIterations, want.EllipseIterations)
	}
	if got.RANSACTrials != want.RANSACTrials || got.RANSACSampleSize != want.RANSACSampleSize {
		t.Errorf("RANSAC = %d/%d, want %d/%d", got.RANSACTrials, got.RANSACSampleSize, want.RANSACTrials, want.RANSACSampleSize)
	}
	if got.MinWindowPoints != want.MinWindowPoints || got.WindowGrowth != want.WindowGrowth {
		t.Errorf("window = %d/%g, want %d/%g", got.MinWindowPoints, got.WindowGrowth, want.MinWindowPoints, want.WindowGrowth)
	}
	if got.InlierThreshold != want.InlierThreshold {
		t.Errorf("InlierThreshold = %g, want %g", got.InlierThreshold, want.InlierThreshold)
	}
	if got.Frames != want.Frames || got.Blending != want.Blending {
		t.Errorf("strategies = %s/%s, want %s/%s", got.Frames, got.Blending, want.Frames, want.Blending)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Expected params to validate, got %v", err)
	}
}

func TestLoadTuningConfig(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "step_length": 2.5,
  "margin_length": 5,
  "axis_iterations": 3,
  "ransac_trials": 100,
  "fit_timeout": "30s",
  "frame_strategy": "fixed_reference",
  "blending": "nearest_segment",
  "reference_point": [1, 2, 3],
  "axis_direction": [0, 0, 1]
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("LoadTuningConfig failed: %v", err)
	}

	if cfg.GetStepLength() != 2.5 {
		t.Errorf("Expected StepLength 2.5, got %v", cfg.GetStepLength())
	}
	if cfg.GetAxisIterations() != 3 {
		t.Errorf("Expected AxisIterations 3, got %d", cfg.GetAxisIterations())
	}
	if cfg.GetFitTimeout() != 30*time.Second {
		t.Errorf("Expected FitTimeout 30s, got %v", cfg.GetFitTimeout())
	}
	// Omitted fields fall back to defaults.
	if cfg.GetEllipseIterations() != 2 {
		t.Errorf("Expected EllipseIterations 2, got %d", cfg.GetEllipseIterations())
	}
	if cfg.GetInlierThreshold() != 0.05 {
		t.Errorf("Expected InlierThreshold 0.05, got %v", cfg.GetInlierThreshold())
	}

	p := cfg.ToParams()
	if p.StepLength != 2.5 || p.MarginLength != 5 {
		t.Errorf("Expected step 2.5 margin 5, got %v %v", p.StepLength, p.MarginLength)
	}
	if p.Frames != shell.FrameFixedReference {
		t.Errorf("Expected fixed_reference frames, got %s", p.Frames)
	}
	if p.Blending != shell.BlendNearestSegment {
		t.Errorf("Expected nearest_segment blending, got %s", p.Blending)
	}
	if p.ReferencePoint == nil || *p.ReferencePoint != (r3.Vector{X: 1, Y: 2, Z: 3}) {
		t.Errorf("Expected reference point (1,2,3), got %v", p.ReferencePoint)
	}
	if p.AxisDirection == nil || *p.AxisDirection != (r3.Vector{Z: 1}) {
		t.Errorf("Expected axis direction (0,0,1), got %v", p.AxisDirection)
	}
}

func TestLoadTuningConfigErrors(t *testing.T) {
	tmpDir := t.TempDir()

	write := func(name, body string) string {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte(body), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"wrong extension", write("config.yaml", "{}"), ".json extension"},
		{"missing file", filepath.Join(tmpDir, "missing.json"), "failed to stat"},
		{"bad json", write("bad.json", "{not json"), "failed to parse"},
		{"bad value", write("neg.json", `{"step_length": -1}`), "step_length"},
		{"bad timeout", write("timeout.json", `{"fit_timeout": "soon"}`), "fit_timeout"},
		{"bad strategy", write("frames.json", `{"frame_strategy": "frenet"}`), "frame_strategy"},
		{"too large", write("big.json", `{"seed": 1}`+strings.Repeat(" ", 1024*1024)), "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTuningConfig(tt.path)
			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		cfg   *TuningConfig
		valid bool
	}{
		{"empty", EmptyTuningConfig(), true},
		{"zero margin", &TuningConfig{MarginLength: ptrFloat64(0)}, true},
		{"zero step", &TuningConfig{StepLength: ptrFloat64(0)}, false},
		{"negative margin", &TuningConfig{MarginLength: ptrFloat64(-1)}, false},
		{"no axis iterations", &TuningConfig{AxisIterations: ptrInt(0)}, false},
		{"no ellipse iterations", &TuningConfig{EllipseIterations: ptrInt(0)}, false},
		{"small sample", &TuningConfig{RANSACSampleSize: ptrInt(4)}, false},
		{"flat growth", &TuningConfig{WindowGrowth: ptrFloat64(1)}, false},
		{"zero threshold", &TuningConfig{InlierThreshold: ptrFloat64(0)}, false},
		{"negative workers", &TuningConfig{Workers: ptrInt(-1)}, false},
		{"zero axis", &TuningConfig{AxisDirection: &[3]float64{}}, false},
		{"unknown blending", &TuningConfig{Blending: ptrString("cubic")}, false},
		{"nearest segment", &TuningConfig{Blending: ptrString("nearest_segment")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid, got %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected error, got nil")
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := DefaultTuningConfig()
	override := &TuningConfig{StepLength: ptrFloat64(4), Seed: ptrInt64(99)}

	merged := base.Merge(override)
	if merged.GetStepLength() != 4 {
		t.Errorf("Expected StepLength 4, got %v", merged.GetStepLength())
	}
	if merged.GetSeed() != 99 {
		t.Errorf("Expected Seed 99, got %d", merged.GetSeed())
	}
	if merged.GetRANSACTrials() != 300 {
		t.Errorf("Expected RANSACTrials 300, got %d", merged.GetRANSACTrials())
	}
	// Inputs are untouched.
	if *base.StepLength != 10 {
		t.Errorf("Expected base StepLength 10, got %v", *base.StepLength)
	}
	if merged.StepLength == override.StepLength {
		t.Errorf("Expected merged config not to alias the override")
	}

	if got := base.Merge(nil).GetStepLength(); got != 10 {
		t.Errorf("Expected Merge(nil) to keep StepLength 10, got %v", got)
	}
}

func TestGetFitTimeoutFallback(t *testing.T) {
	cfg := &TuningConfig{FitTimeout: ptrString("garbage")}
	if cfg.GetFitTimeout() != 10*time.Minute {
		t.Errorf("Expected fallback timeout 10m, got %v", cfg.GetFitTimeout())
	}
	cfg = &TuningConfig{FitTimeout: ptrString("0s")}
	if cfg.GetFitTimeout() != 0 {
		t.Errorf("Expected zero timeout, got %v", cfg.GetFitTimeout())
	}
}

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := MustLoadDefaultConfig()
	def := DefaultTuningConfig()

	// The defaults file and the Get* fallbacks must agree.
	if cfg.GetStepLength() != def.GetStepLength() {
		t.Errorf("StepLength: file %v, code %v", cfg.GetStepLength(), def.GetStepLength())
	}
	if cfg.GetMarginLength() != def.GetMarginLength() {
		t.Errorf("MarginLength: file %v, code %v", cfg.GetMarginLength(), def.GetMarginLength())
	}
	if cfg.GetRANSACTrials() != def.GetRANSACTrials() {
		t.Errorf("RANSACTrials: file %d, code %d", cfg.GetRANSACTrials(), def.GetRANSACTrials())
	}
	if cfg.GetFitTimeout() != def.GetFitTimeout() {
		t.Errorf("FitTimeout: file %v, code %v", cfg.GetFitTimeout(), def.GetFitTimeout())
	}
	if cfg.GetFrameStrategy() != def.GetFrameStrategy() || cfg.GetBlending() != def.GetBlending() {
		t.Errorf("strategies: file %s/%s, code %s/%s", cfg.GetFrameStrategy(), cfg.GetBlending(), def.GetFrameStrategy(), def.GetBlending())
	}
}
