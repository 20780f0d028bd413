package archive

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/neehar-mavuduru/logengine/store"
)

// Stats tracks cumulative upload activity across an Uploader's lifetime.
type Stats struct {
	TotalFiles     int64
	Successful     int64
	Failed         int64
	TotalBytes     int64
	ComposeRetries int64 // compose attempts beyond the first, across all uploads
}

// Uploader archives sealed day-store files to GCS via chunked parallel
// upload, composed back into a single object per store file.
type Uploader struct {
	cfg    Config
	client *storage.Client

	mu    sync.Mutex
	stats Stats
}

// NewUploader creates an Uploader from cfg, dialing GCS immediately.
func NewUploader(ctx context.Context, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx, option.WithGRPCConnectionPool(cfg.GRPCPoolSize))
	if err != nil {
		return nil, fmt.Errorf("logengine/archive: create storage client: %w", err)
	}
	return &Uploader{cfg: cfg, client: client}, nil
}

// Close releases the underlying GCS client.
func (u *Uploader) Close() error {
	return u.client.Close()
}

// Stats returns a snapshot of cumulative upload activity.
func (u *Uploader) Stats() Stats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// ArchiveClosedStores archives every day-store file under baseDir whose
// date is strictly before today (local), i.e. every store no longer being
// written to. It is meant to be called once per day, after rollover, by the
// engine's lifecycle control.
func (u *Uploader) ArchiveClosedStores(ctx context.Context, baseDir string, today time.Time) error {
	dates, err := store.ListDates(baseDir)
	if err != nil {
		return fmt.Errorf("logengine/archive: list store dates: %w", err)
	}

	var firstErr error
	for _, date := range closedDates(dates, today) {
		path := store.Path(baseDir, date)
		if err := u.uploadFileWithRetry(ctx, path); err != nil {
			log.Printf("[logengine archive] failed to archive %s: %v", path, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if u.cfg.DeleteAfterUpload {
			if err := os.Remove(path); err != nil {
				log.Printf("[logengine archive] archived %s but could not delete local copy: %v", path, err)
			}
		}
	}
	return firstErr
}

// closedDates filters dates to those strictly before today's local
// calendar date — the day-store files no longer being written to and
// therefore safe to archive.
func closedDates(dates []time.Time, today time.Time) []time.Time {
	y, m, d := today.Date()
	todayMidnight := time.Date(y, m, d, 0, 0, 0, 0, today.Location())

	var out []time.Time
	for _, date := range dates {
		if date.Before(todayMidnight) {
			out = append(out, date)
		}
	}
	return out
}

func (u *Uploader) uploadFileWithRetry(ctx context.Context, filePath string) error {
	info, statErr := os.Stat(filePath)
	var size int64
	if statErr == nil {
		size = info.Size()
	}

	var lastErr error
	for attempt := 0; attempt <= u.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.cfg.RetryDelay):
			}
		}

		err := u.uploadFile(ctx, filePath)
		if err == nil {
			u.mu.Lock()
			u.stats.TotalFiles++
			u.stats.Successful++
			u.stats.TotalBytes += size
			u.mu.Unlock()
			return nil
		}
		lastErr = err
		if attempt < u.cfg.MaxRetries {
			log.Printf("[logengine archive] upload attempt %d/%d failed for %s: %v", attempt+1, u.cfg.MaxRetries+1, filePath, err)
		}
	}

	u.mu.Lock()
	u.stats.TotalFiles++
	u.stats.Failed++
	u.mu.Unlock()
	return fmt.Errorf("upload failed after %d attempts: %w", u.cfg.MaxRetries+1, lastErr)
}

func (u *Uploader) uploadFile(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", filePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}

	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}

	object := u.objectName(filePath)
	return u.uploadParallel(ctx, object, buf)
}

func (u *Uploader) objectName(filePath string) string {
	name := filepath.Base(filePath)
	if u.cfg.ObjectPrefix != "" {
		return u.cfg.ObjectPrefix + name
	}
	return name
}

// uploadParallel splits buf into chunkSize pieces, uploads each as its own
// temporary object concurrently, then composes them into the final object
// in order, using the same parallel-chunk-upload-then-compose strategy as
// other GCS log shippers.
func (u *Uploader) uploadParallel(ctx context.Context, object string, buf []byte) error {
	chunkSize := u.cfg.ChunkSize
	numChunks := (len(buf) + chunkSize - 1) / chunkSize
	if numChunks == 0 {
		numChunks = 1
	}
	tempPrefix := fmt.Sprintf("%s.tmp.%d", object, time.Now().UnixNano())

	type result struct {
		err error
	}
	results := make([]result, numChunks)

	var wg sync.WaitGroup
	for i := 0; i < numChunks; i++ {
		offset := i * chunkSize
		end := offset + chunkSize
		if end > len(buf) || numChunks == 1 {
			end = len(buf)
		}

		wg.Add(1)
		go func(idx int, data []byte) {
			defer wg.Done()
			chunkObject := fmt.Sprintf("%s.chunk.%d", tempPrefix, idx)
			w := u.client.Bucket(u.cfg.Bucket).Object(chunkObject).NewWriter(ctx)
			w.ContentType = "application/octet-stream"
			if _, err := w.Write(data); err != nil {
				results[idx] = result{err: fmt.Errorf("write chunk %d: %w", idx, err)}
				return
			}
			if err := w.Close(); err != nil {
				results[idx] = result{err: fmt.Errorf("close chunk %d: %w", idx, err)}
			}
		}(i, buf[offset:end])
	}
	wg.Wait()

	chunkObjects := make([]string, numChunks)
	for i := 0; i < numChunks; i++ {
		if results[i].err != nil {
			u.cleanupTempChunks(ctx, tempPrefix, numChunks)
			return results[i].err
		}
		chunkObjects[i] = fmt.Sprintf("%s.chunk.%d", tempPrefix, i)
	}

	if err := u.composeWithRetry(ctx, object, chunkObjects); err != nil {
		u.cleanupTempChunks(ctx, tempPrefix, numChunks)
		return fmt.Errorf("compose %s: %w", object, err)
	}

	u.cleanupTempChunks(ctx, tempPrefix, numChunks)
	return nil
}

func (u *Uploader) cleanupTempChunks(ctx context.Context, prefix string, numChunks int) {
	bkt := u.client.Bucket(u.cfg.Bucket)
	for i := 0; i < numChunks; i++ {
		_ = bkt.Object(fmt.Sprintf("%s.chunk.%d", prefix, i)).Delete(ctx)
	}
}

// composeWithRetry composes chunkObjects into object, retrying transient GCS
// failures under the same MaxRetries/RetryDelay policy uploadFileWithRetry
// uses for the initial upload, rather than failing an otherwise-successful
// chunk upload on one flaky compose call.
func (u *Uploader) composeWithRetry(ctx context.Context, object string, chunkObjects []string) error {
	var lastErr error
	for attempt := 0; attempt <= u.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			u.mu.Lock()
			u.stats.ComposeRetries++
			u.mu.Unlock()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(u.cfg.RetryDelay):
			}
		}
		if err := u.compose(ctx, object, chunkObjects); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("compose failed after %d attempts: %w", u.cfg.MaxRetries+1, lastErr)
}

// compose composes chunkObjects into object, working around GCS's
// MaxChunksPerCompose source limit by composing in intermediate groups
// when a store file produced more chunks than that limit allows.
func (u *Uploader) compose(ctx context.Context, object string, chunkObjects []string) error {
	if len(chunkObjects) <= u.cfg.MaxChunksPerCompose {
		return u.composeOnce(ctx, object, chunkObjects)
	}

	var intermediate []string
	for i := 0; i < len(chunkObjects); i += u.cfg.MaxChunksPerCompose {
		end := i + u.cfg.MaxChunksPerCompose
		if end > len(chunkObjects) {
			end = len(chunkObjects)
		}
		group := chunkObjects[i:end]
		intermediateObj := fmt.Sprintf("%s.intermediate.%d", object, i/u.cfg.MaxChunksPerCompose)

		if err := u.composeOnce(ctx, intermediateObj, group); err != nil {
			u.deleteObjects(ctx, intermediate)
			return fmt.Errorf("compose intermediate %s: %w", intermediateObj, err)
		}
		intermediate = append(intermediate, intermediateObj)
	}

	err := u.compose(ctx, object, intermediate)
	u.deleteObjects(ctx, intermediate)
	return err
}

func (u *Uploader) composeOnce(ctx context.Context, object string, chunkObjects []string) error {
	if len(chunkObjects) == 0 {
		return fmt.Errorf("no chunks to compose")
	}
	if len(chunkObjects) > u.cfg.MaxChunksPerCompose {
		return fmt.Errorf("too many chunks (%d), max is %d", len(chunkObjects), u.cfg.MaxChunksPerCompose)
	}

	bkt := u.client.Bucket(u.cfg.Bucket)
	dst := bkt.Object(object)

	sources := make([]*storage.ObjectHandle, len(chunkObjects))
	for i, chunkObj := range chunkObjects {
		sources[i] = bkt.Object(chunkObj)
	}

	composer := dst.ComposerFrom(sources...)
	composer.ContentType = "application/octet-stream"
	if _, err := composer.Run(ctx); err != nil {
		return fmt.Errorf("compose failed: %w", err)
	}
	return nil
}

func (u *Uploader) deleteObjects(ctx context.Context, objects []string) {
	bkt := u.client.Bucket(u.cfg.Bucket)
	for _, obj := range objects {
		if err := bkt.Object(obj).Delete(ctx); err != nil {
			log.Printf("[logengine archive] cleanup of %s failed: %v", obj, err)
		}
	}
}
