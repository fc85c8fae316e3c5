// Package raster converts an HTML document into a device-ready BMP by
// driving a headless Chromium instance and post-processing its screenshot.
//
// Each render owns a dedicated browser process with a scoped lifetime: the
// process is torn down when the call returns, on success, failure, timeout,
// and caller cancellation alike. A weighted semaphore caps how many browser
// processes run at once.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/image/bmp"
	"golang.org/x/sync/semaphore"

	appLog "tinker/internal/log"
)

// ErrRenderFailed marks any failure inside the pipeline: browser launch,
// navigation, capture, conversion, or timeout. It aborts only the current
// render request.
var ErrRenderFailed = errors.New("raster: render failed")

// Default render parameters. 640x384 matches the target embedded panel.
const (
	DefaultWidth         = 640
	DefaultHeight        = 384
	DefaultTimeout       = 30 * time.Second
	DefaultSettleDelay   = 500 * time.Millisecond
	DefaultMaxConcurrent = 2
)

// Options configures a Pipeline.
type Options struct {
	// Timeout bounds one whole render, browser launch included.
	Timeout time.Duration
	// SettleDelay is how long to wait after the document is ready before
	// capturing, for layouts with deliberately delayed content.
	SettleDelay time.Duration
	// Mono selects 1-bit black/white output instead of 8-bit grayscale.
	Mono bool
	// MaxConcurrent caps simultaneous browser processes.
	MaxConcurrent int64
}

// Pipeline rasterizes HTML documents into monochrome bitmaps.
type Pipeline struct {
	opts Options
	sem  *semaphore.Weighted
}

// NewPipeline creates a Pipeline, filling zero options with defaults.
func NewPipeline(opts Options) *Pipeline {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	return &Pipeline{
		opts: opts,
		sem:  semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// Result holds both encodings of one capture. PNG is kept for the preview
// endpoint; BMP is what the panel consumes.
type Result struct {
	BMP []byte
	PNG []byte
}

// Rasterize renders the document at the given viewport and returns the BMP
// bytes. Zero width/height select the panel defaults.
func (p *Pipeline) Rasterize(ctx context.Context, htmlDoc string, width, height int) (Result, error) {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}

	// Admission: blocks until a browser slot frees up or the caller gives up.
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("%w: admission: %v", ErrRenderFailed, err)
	}
	defer p.sem.Release(1)

	started := time.Now()

	pngBytes, err := p.capture(ctx, htmlDoc, width, height)
	if err != nil {
		return Result{}, err
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		return Result{}, fmt.Errorf("%w: decode screenshot: %v", ErrRenderFailed, err)
	}

	gray := Grayscale(img)
	if p.opts.Mono {
		Threshold(gray, monoCutoff)
	}

	var out bytes.Buffer
	if err := bmp.Encode(&out, gray); err != nil {
		return Result{}, fmt.Errorf("%w: encode bmp: %v", ErrRenderFailed, err)
	}

	appLog.Info("render complete",
		"width", width,
		"height", height,
		"mono", p.opts.Mono,
		"bytes", out.Len(),
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	return Result{BMP: out.Bytes(), PNG: pngBytes}, nil
}

// capture launches a browser, loads the document from a data URI (no
// external URL, no subresources, so no relaxed security flags), and takes a
// full screenshot at the requested viewport.
func (p *Pipeline) capture(parent context.Context, htmlDoc string, width, height int) ([]byte, error) {
	ctx, cancelTimeout := context.WithTimeout(parent, p.opts.Timeout)
	defer cancelTimeout()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	// Canceling the allocator kills the browser process; the defers run on
	// every exit path, which is the teardown guarantee.
	defer cancelAlloc()

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))

	var shot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(p.opts.SettleDelay),
		chromedp.FullScreenshot(&shot, 100),
	}

	if err := chromedp.Run(tabCtx, tasks); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRenderFailed, err)
	}
	return shot, nil
}
