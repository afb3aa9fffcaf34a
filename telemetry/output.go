package telemetry

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/snow/components"
	"github.com/pthm-cable/snow/config"
)

// StateExt is the file extension of binary solver states.
const StateExt = ".snow"

// OutputManager handles run output: tick and perf CSV logs, particle frame
// CSVs and state file naming.
type OutputManager struct {
	dir       string
	framesDir string
	ticksFile *os.File
	perfFile  *os.File

	// Track if headers have been written
	ticksHeaderWritten bool
	perfHeaderWritten  bool
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	framesDir := filepath.Join(dir, "frames")
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir, framesDir: framesDir}

	f, err := os.Create(filepath.Join(dir, "ticks.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating ticks.csv: %w", err)
	}
	om.ticksFile = f

	f, err = os.Create(filepath.Join(dir, "perf.csv"))
	if err != nil {
		om.ticksFile.Close()
		return nil, fmt.Errorf("creating perf.csv: %w", err)
	}
	om.perfFile = f

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTickStats appends a record to ticks.csv.
func (om *OutputManager) WriteTickStats(stats TickStats) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.ticksFile, []TickStats{stats}, &om.ticksHeaderWritten); err != nil {
		return fmt.Errorf("writing tick stats: %w", err)
	}
	return nil
}

// WritePerf appends a performance record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int) error {
	if om == nil {
		return nil
	}
	if err := appendCSV(om.perfFile, []PerfStatsCSV{stats.ToCSV(windowEnd)}, &om.perfHeaderWritten); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// WriteFrame writes every particle to frames/frame-<tick>.csv.
func (om *OutputManager) WriteFrame(tick int, particles []components.Particle) error {
	if om == nil {
		return nil
	}
	path := om.FramePath(tick)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating frame: %w", err)
	}
	if err := gocsv.Marshal(ParticleRecords(particles), f); err != nil {
		f.Close()
		return fmt.Errorf("writing frame %d: %w", tick, err)
	}
	return f.Close()
}

// FramePath returns the particle CSV path for a tick.
func (om *OutputManager) FramePath(tick int) string {
	return filepath.Join(om.framesDir, fmt.Sprintf("frame-%06d.csv", tick))
}

// StatePath returns the binary state path for a tick.
func (om *OutputManager) StatePath(tick int) string {
	return filepath.Join(om.dir, fmt.Sprintf("frame-%d%s", tick, StateExt))
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, f := range []*os.File{om.ticksFile, om.perfFile} {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// appendCSV writes records, with a header only on the first call.
func appendCSV(f *os.File, records any, headerWritten *bool) error {
	if !*headerWritten {
		if err := gocsv.Marshal(records, f); err != nil {
			return err
		}
		*headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, f)
}
