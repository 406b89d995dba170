// Package batch scans many cover images or PDFs with a pool of workers.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"
)

// FileScanner resolves the ISBN in one file.
type FileScanner interface {
	ScanImageFile(ctx context.Context, path string) (string, error)
}

// Config controls file discovery and concurrency.
type Config struct {
	Recursive       bool
	IncludePatterns []string
	ExcludePatterns []string
	// Workers <= 0 uses one worker per CPU.
	Workers int
}

// Item is the outcome for one file.
type Item struct {
	Path string
	ISBN string
	Err  error
}

// Result holds the items in input order.
type Result struct {
	Items       []Item
	Duration    time.Duration
	WorkerCount int
}

// Failed counts the items without an ISBN.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// ProcessBatch discovers the files named by args and scans them.
func ProcessBatch(ctx context.Context, s FileScanner, args []string, config Config) (*Result, error) {
	files, err := Discover(args, config.Recursive, config.IncludePatterns, config.ExcludePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to discover image files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no image files found")
	}

	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(files))

	start := time.Now()
	items := scanParallel(ctx, s, files, workers)
	duration := time.Since(start)

	slog.Debug("Batch scan finished", "files", len(files), "workers", workers, "duration", duration)
	return &Result{Items: items, Duration: duration, WorkerCount: workers}, nil
}

// scanParallel fans paths out to workers. Items keep the order of paths.
func scanParallel(ctx context.Context, s FileScanner, paths []string, workers int) []Item {
	items := make([]Item, len(paths))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				key, err := s.ScanImageFile(ctx, paths[i])
				items[i] = Item{Path: paths[i], ISBN: key, Err: err}
			}
		}()
	}

	for i := range paths {
		if ctx.Err() != nil {
			items[i] = Item{Path: paths[i], Err: ctx.Err()}
			continue
		}
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return items
}
