package monitoring

import (
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger used by the fitter and its
// collaborators. It defaults to log.Printf but may be replaced by SetLogger.
// Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Progress receives coarse progress notifications from long-running fits.
// Stage names are stable strings such as "axis" or "ellipse"; done counts
// completed units out of total within that stage.
type Progress interface {
	Stage(stage string, done, total int)
}

// LogProgress reports progress through Logf, at most once per stage change
// or every Every units.
type LogProgress struct {
	Prefix string
	Every  int

	mu        sync.Mutex
	lastStage string
}

// Stage implements Progress.
func (p *LogProgress) Stage(stage string, done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	every := p.Every
	if every <= 0 {
		every = 1
	}
	if stage == p.lastStage && done != total && done%every != 0 {
		return
	}
	p.lastStage = stage
	Logf("[%s] %s: %d/%d", p.prefix(), stage, done, total)
}

func (p *LogProgress) prefix() string {
	if p.Prefix == "" {
		return "fit"
	}
	return p.Prefix
}

// ProgressFunc adapts a plain function to Progress.
type ProgressFunc func(stage string, done, total int)

// Stage implements Progress.
func (f ProgressFunc) Stage(stage string, done, total int) { f(stage, done, total) }
