// Package fetcher defines the contract of the external downloading
// collaborator. The queue core never talks to yt-dlp directly; it hands a
// URL, output options and a progress sink to a Fetcher and waits for the
// terminal outcome.
package fetcher

import (
	"context"
	"time"

	"github.com/ykarpov/dlqueue/internal/domain"
)

// ProgressEvent is one observation from an in-flight fetch.
type ProgressEvent struct {
	Percent         float64
	DownloadedBytes int64
	TotalBytes      int64
	CurrentFile     string
}

// ProgressSink receives progress events. Implementations must be fast and
// non-blocking; the fetch goroutine calls it inline.
type ProgressSink func(ProgressEvent)

// Metadata is the result of probing a URL without downloading it.
type Metadata struct {
	Title              string        `json:"title"`
	Duration           time.Duration `json:"duration"`
	AvailableQualities []string      `json:"available_qualities"`
}

// Fetcher is the external downloading collaborator. Fetch blocks until the
// download finishes, fails, or ctx is cancelled; it honors cancellation
// cooperatively within a bounded time. The returned paths are the files
// produced by a successful fetch.
type Fetcher interface {
	Fetch(ctx context.Context, url string, opts domain.Options, sink ProgressSink) ([]string, error)
	Probe(ctx context.Context, url string) (*Metadata, error)
}
