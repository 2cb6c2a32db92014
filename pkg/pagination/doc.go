// Package pagination provides parallel batch fetching for paged search
// results.
//
// A paged search states its page count in the first page. This package
// fetches that page, then distributes the remaining pages over a bounded
// worker pool so a large result set does not open one connection per page.
//
// Example usage:
//
//	pages := client.NewPageFetcher(c, resource.Get("search", q), nil,
//		xmlstream.Elements[Hit]("hit"))
//	fetcher := pagination.NewBatchFetcher[Hit](pages, pagination.DefaultConfig())
//	hits, err := fetcher.FetchAll(ctx)
//
// The batch fetcher:
//   - Fetches the first page to determine the total page count
//   - Spawns a worker pool (default 4 workers)
//   - Distributes the remaining pages across workers
//   - Collects results with progress logging
//   - Stops at the first failed page and returns the pages fetched so far
package pagination
