package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/imbecility/vkr-gateway/pkg/endpoints"
)

// Downloader saves a chosen media URL to OutputDir.
type Downloader struct {
	Client       endpoints.HTTPClient
	OutputDir    string
	ShowProgress bool
	// Progress receives the console progress bar (defaults to stdout).
	Progress io.Writer
}

type ProgressWriter struct {
	Total      int64
	Downloaded int64
	LastPrint  time.Time
	Out        io.Writer
	Name       string
}

func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n := len(p)
	pw.Downloaded += int64(n)

	if time.Since(pw.LastPrint) > 100*time.Millisecond {
		pw.printProgress()
		pw.LastPrint = time.Now()
	}
	return n, nil
}

func (pw *ProgressWriter) printProgress() {
	mb := float64(pw.Downloaded) / 1024 / 1024

	if pw.Total > 0 {
		percent := float64(pw.Downloaded) / float64(pw.Total) * 100
		totalMb := float64(pw.Total) / 1024 / 1024
		fmt.Fprintf(pw.Out, "\r[%s] %.2f%% (%.2f/%.2f MB)   ", pw.Name, percent, mb, totalMb)
	} else {
		fmt.Fprintf(pw.Out, "\r[%s] Downloading... %.2f MB   ", pw.Name, mb)
	}
}

// Save downloads mediaURL as filename. The data goes to a ".part" file that is
// renamed once complete, so a failed download never leaves a truncated file behind.
func (d *Downloader) Save(ctx context.Context, mediaURL, filename string) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	if err := os.MkdirAll(d.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	finalPath := filepath.Join(d.OutputDir, filename)
	partPath := finalPath + ".part"

	slog.Debug("Starting direct download", "url", mediaURL, "file", filename)
	if err := d.downloadFile(ctx, mediaURL, partPath, filename); err != nil {
		if rerr := os.Remove(partPath); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			slog.Error("Error removing partial file", "error", rerr)
		}
		return "", err
	}
	if d.ShowProgress {
		fmt.Fprintln(d.progressOut())
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to finalize download: %w", err)
	}
	return finalPath, nil
}

func (d *Downloader) progressOut() io.Writer {
	if d.Progress != nil {
		return d.Progress
	}
	return os.Stdout
}

func (d *Downloader) downloadFile(ctx context.Context, url string, fpath string, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		cerr := Body.Close()
		if cerr != nil {
			slog.Warn("Error closing response body", "error", cerr)
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	out, err := os.Create(fpath)
	if err != nil {
		return err
	}
	defer func(out *os.File) {
		ferr := out.Close()
		if ferr != nil {
			slog.Error("Error closing file", "error", ferr)
		}
	}(out)

	var source io.Reader = resp.Body

	if d.ShowProgress {
		pw := &ProgressWriter{
			Total:     resp.ContentLength, // can be -1
			Name:      name,
			LastPrint: time.Now(),
			Out:       d.progressOut(),
		}
		source = &progressReaderWrapper{
			Reader: resp.Body,
			Pw:     pw,
		}
	}

	_, err = io.Copy(out, source)
	return err
}

type progressReaderWrapper struct {
	io.Reader
	Pw *ProgressWriter
}

func (p *progressReaderWrapper) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	if n > 0 {
		_, perr := p.Pw.Write(b[:n])
		if perr != nil {
			return 0, perr
		}
	}
	return n, err
}
