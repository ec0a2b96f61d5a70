package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/ykarpov/dlqueue/internal/domain"
)

const progressInterval = 500 * time.Millisecond

// qualityPresets is what the shells offer; yt-dlp resolves the actual
// format at fetch time.
var qualityPresets = []string{"best", "1080p", "720p", "480p", "worst"}

// YTDLPFetcher drives downloads through the yt-dlp binary. Partial files
// are continued, so a task restored with a checkpoint resumes rather than
// restarting.
type YTDLPFetcher struct {
	downloadDir string
}

// NewYTDLPFetcher creates a fetcher writing into downloadDir by default.
func NewYTDLPFetcher(downloadDir string) *YTDLPFetcher {
	return &YTDLPFetcher{downloadDir: downloadDir}
}

// Fetch runs one download attempt. Cancelling ctx stops the underlying
// yt-dlp process.
func (f *YTDLPFetcher) Fetch(ctx context.Context, url string, opts domain.Options, sink ProgressSink) ([]string, error) {
	dir := opts.OutputDir
	if dir == "" {
		dir = f.downloadDir
	}

	dl := ytdlp.New().
		Continue().
		RestrictFilenames().
		Format(formatSelector(opts))

	if opts.Playlist {
		dl = dl.Output(dir + "/%(playlist_title)s/%(title)s.%(ext)s")
	} else {
		dl = dl.NoPlaylist().Output(dir + "/%(title)s.%(ext)s")
	}

	if opts.AudioOnly {
		dl = dl.ExtractAudio().AudioFormat("mp3")
	}

	dl.ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
		ev := ProgressEvent{
			DownloadedBytes: int64(update.DownloadedBytes),
			TotalBytes:      int64(update.TotalBytes),
		}
		if update.TotalBytes > 0 {
			ev.Percent = float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
		}
		if update.Info != nil && update.Info.Title != nil {
			ev.CurrentFile = *update.Info.Title
		}
		sink(ev)
	})

	result, err := dl.Run(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp fetch failed: %w", err)
	}

	return extractPaths(result), nil
}

// Probe asks yt-dlp for metadata without downloading.
func (f *YTDLPFetcher) Probe(ctx context.Context, url string) (*Metadata, error) {
	dl := ytdlp.New().
		SkipDownload().
		NoPlaylist().
		DumpJSON()

	result, err := dl.Run(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("yt-dlp probe failed: %w", err)
	}

	meta := &Metadata{AvailableQualities: qualityPresets}

	info, err := result.GetExtractedInfo()
	if err == nil && len(info) > 0 {
		if info[0].Title != nil {
			meta.Title = *info[0].Title
		}
		if info[0].Duration != nil {
			meta.Duration = time.Duration(*info[0].Duration * float64(time.Second))
		}
	}

	return meta, nil
}

func extractPaths(result *ytdlp.Result) []string {
	if result == nil {
		return nil
	}

	info, err := result.GetExtractedInfo()
	if err != nil {
		return nil
	}

	var paths []string
	for _, entry := range info {
		if entry.Filename != nil && *entry.Filename != "" {
			paths = append(paths, *entry.Filename)
		}
	}
	return paths
}

func formatSelector(opts domain.Options) string {
	if opts.AudioOnly {
		return "bestaudio/best"
	}

	switch opts.Quality {
	case "", "best":
		return "best[height<=1080]/best"
	case "worst":
		return "worst"
	default:
		height := strings.TrimSuffix(opts.Quality, "p")
		return fmt.Sprintf("best[height<=%s]/best", height)
	}
}
