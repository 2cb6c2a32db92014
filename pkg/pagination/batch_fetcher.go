package pagination

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel requests
	MaxConcurrency int
	// Timeout per page fetch
	Timeout time.Duration
	// MaxPages caps the pages fetched; zero fetches all
	MaxPages int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 4,
		Timeout:        30 * time.Second,
	}
}

// PageFetcher fetches a single page and returns its items and the total
// page count. Pages start at 1.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, page int) (items []T, totalPages int, err error)
}

// PageResult represents the result of fetching a single page
type PageResult[T any] struct {
	PageNumber int
	Items      []T
	Error      error
}

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher[T any] struct {
	fetcher PageFetcher[T]
	config  Config
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher[T any](fetcher PageFetcher[T], config Config) *BatchFetcher[T] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &BatchFetcher[T]{
		fetcher: fetcher,
		config:  config,
	}
}

// FetchAll fetches every page and returns the items in page order.
func (bf *BatchFetcher[T]) FetchAll(ctx context.Context) ([]T, error) {
	pages, err := bf.FetchAllPages(ctx)
	if err != nil {
		return nil, err
	}

	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var items []T
	for _, n := range numbers {
		items = append(items, pages[n]...)
	}
	return items, nil
}

// FetchAllPages fetches all pages in parallel using a worker pool.
// Returns map of pageNumber -> items. On failure the pages fetched so far
// are returned together with the error.
func (bf *BatchFetcher[T]) FetchAllPages(ctx context.Context) (map[int][]T, error) {
	start := time.Now()

	// Fetch first page to get total page count
	firstCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
	firstItems, totalPages, err := bf.fetcher.FetchPage(firstCtx, 1)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch first page: %w", err)
	}
	if bf.config.MaxPages > 0 && totalPages > bf.config.MaxPages {
		totalPages = bf.config.MaxPages
	}

	results := map[int][]T{1: firstItems}

	// Single page optimization
	if totalPages <= 1 {
		log.Debug().
			Int("pages", 1).
			Dur("duration", time.Since(start)).
			Msg("Fetch complete (single page)")
		return results, nil
	}

	log.Info().
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	pageQueue := make(chan int, totalPages-1)
	pageResults := make(chan PageResult[T], bf.config.MaxConcurrency)

	// Fill page queue (skip page 1, already fetched)
	for page := 2; page <= totalPages; page++ {
		pageQueue <- page
	}
	close(pageQueue)

	workers := bf.config.MaxConcurrency
	if workers > totalPages-1 {
		workers = totalPages - 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go bf.worker(ctx, pageQueue, pageResults, &wg, i)
	}

	// Close results channel when all workers done
	go func() {
		wg.Wait()
		close(pageResults)
	}()

	var firstErr error
	for result := range pageResults {
		if result.Error != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("page %d: %w", result.PageNumber, result.Error)
				stop()
			}
			continue
		}
		results[result.PageNumber] = result.Items

		// Progress logging every 50 pages
		if len(results)%50 == 0 {
			log.Info().
				Int("fetched", len(results)).
				Int("total", totalPages).
				Float64("progress_pct", float64(len(results))/float64(totalPages)*100).
				Msg("Fetch progress")
		}
	}

	if firstErr == nil {
		if err := ctx.Err(); err != nil && len(results) < totalPages {
			firstErr = err
		}
	}
	if firstErr != nil {
		log.Warn().
			Err(firstErr).
			Int("fetched_pages", len(results)).
			Int("total_pages", totalPages).
			Msg("Page fetch failed - returning partial results")
		return results, fmt.Errorf("partial data (%d/%d pages): %w", len(results), totalPages, firstErr)
	}

	log.Info().
		Int("pages", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return results, nil
}

// worker processes pages from the queue
func (bf *BatchFetcher[T]) worker(ctx context.Context, pageQueue <-chan int, results chan<- PageResult[T], wg *sync.WaitGroup, workerID int) {
	defer wg.Done()
	pagesProcessed := 0

	for pageNum := range pageQueue {
		// Check context cancellation
		if ctx.Err() != nil {
			log.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return
		}

		// Fetch page with timeout
		pageCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
		items, _, err := bf.fetcher.FetchPage(pageCtx, pageNum)
		cancel()

		// The collector drains results until all workers are done
		results <- PageResult[T]{PageNumber: pageNum, Items: items, Error: err}
		if err != nil {
			return
		}
		pagesProcessed++
	}

	if pagesProcessed > 0 {
		log.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
}
