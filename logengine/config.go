// Package logengine wires the intake queue, flush worker, adaptive pacer,
// quarantine sink and query engine into the public surface a host
// application embeds: add(log), keyset-paginated queries, flush-progress
// introspection, and start/stop control over the background worker.
package logengine

import (
	"fmt"

	"github.com/neehar-mavuduru/logengine/archive"
	"github.com/neehar-mavuduru/logengine/intake"
	"github.com/neehar-mavuduru/logengine/pacer"
)

// Config configures an Engine. The zero value is invalid; use DefaultConfig
// and override only what differs.
type Config struct {
	BaseDir       string        // root directory for per-day store files
	QuarantineDir string        // directory for failed-flush sidecars
	QueueCapacity int           // per-buffer intake capacity
	Pacer         pacer.Config  // adaptive pacing thresholds
	Archive       *archive.Config // optional: archive sealed stores to GCS
}

// DefaultConfig returns a Config rooted at baseDir, with quarantine sidecars
// written into the same directory as the day-store files, default intake
// capacity and default pacing, and archiving disabled.
func DefaultConfig(baseDir string) Config {
	return Config{
		BaseDir:       baseDir,
		QuarantineDir: baseDir,
		QueueCapacity: intake.DefaultCapacity,
		Pacer:         pacer.DefaultConfig(),
		Archive:       nil,
	}
}

// Validate fills in zero-valued fields with their defaults and checks the
// fields that have no sane default.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("logengine: BaseDir is required")
	}
	if c.QuarantineDir == "" {
		c.QuarantineDir = c.BaseDir
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = intake.DefaultCapacity
	}
	if c.Pacer.PollInterval <= 0 {
		c.Pacer = pacer.DefaultConfig()
	}
	if c.Archive != nil {
		if err := c.Archive.Validate(); err != nil {
			return fmt.Errorf("logengine: Archive config: %w", err)
		}
	}
	return nil
}
