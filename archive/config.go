// Package archive optionally ships sealed (no-longer-written-to) day-store
// files to Google Cloud Storage, using a chunked-parallel-upload and
// multi-level compose strategy for completed log files. Nothing in this
// package is reachable from the hot ingest path:
// a day-store is only ever handed to it after the calendar day it belongs to
// has rolled over, keeping live logs entirely local.
package archive

import (
	"fmt"
	"time"
)

// Config configures an Uploader.
type Config struct {
	Bucket              string        // GCS bucket name (required)
	ObjectPrefix        string        // object prefix, e.g. "logengine/"
	ChunkSize           int           // parallel-upload chunk size in bytes
	MaxChunksPerCompose int           // GCS compose fan-in limit
	MaxRetries          int           // retry attempts per file
	RetryDelay          time.Duration // delay between retries
	GRPCPoolSize        int           // gRPC connection pool size
	DeleteAfterUpload   bool          // remove the local file once archived
}

// DefaultConfig returns baseline defaults for bucket.
func DefaultConfig(bucket string) Config {
	return Config{
		Bucket:              bucket,
		ObjectPrefix:        "",
		ChunkSize:           32 * 1024 * 1024,
		MaxChunksPerCompose: 32,
		MaxRetries:          3,
		RetryDelay:          5 * time.Second,
		GRPCPoolSize:        64,
		DeleteAfterUpload:   false,
	}
}

// Validate checks c and fills in zero-valued fields with their defaults.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("logengine/archive: Bucket is required")
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 32 * 1024 * 1024
	}
	if c.MaxChunksPerCompose <= 0 {
		c.MaxChunksPerCompose = 32
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.GRPCPoolSize <= 0 {
		c.GRPCPoolSize = 64
	}
	return nil
}
