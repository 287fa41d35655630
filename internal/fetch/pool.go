// Package fetch downloads article content for batches of URLs with a
// bounded amount of parallelism. Individual failures never fail the
// batch; callers inspect per-URL results.
package fetch

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/xiy/webrecall/internal/extract"
)

// Result is the outcome of fetching one URL.
type Result struct {
	Index   int
	URL     string
	OK      bool
	Article extract.Article
	Err     error
}

// ProgressFunc is called after each URL completes, successful or not.
type ProgressFunc func(done, total int, url string)

// Pool fetches pages with at most Concurrency requests in flight.
type Pool struct {
	client      *http.Client
	concurrency int
	timeout     time.Duration
	logger      *log.Logger
}

// NewPool builds a fetch pool. A nil client falls back to a default
// http.Client; the per-URL timeout is enforced via request context.
func NewPool(client *http.Client, concurrency int, timeout time.Duration, logger *log.Logger) *Pool {
	if client == nil {
		client = &http.Client{}
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		client:      client,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
	}
}

// FetchAll downloads every URL and returns results in input order.
// The batch stops early only when ctx is cancelled.
func (p *Pool) FetchAll(ctx context.Context, urls []string, onProgress ProgressFunc) []Result {
	results := make([]Result, len(urls))

	var (
		done     atomic.Int64
		progress sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = Result{Index: i, URL: url, Err: gctx.Err()}
				return nil
			}

			fetchCtx := gctx
			if p.timeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(gctx, p.timeout)
				defer cancel()
			}

			art, err := extract.FetchPage(fetchCtx, p.client, url)
			if err != nil {
				p.logger.Debug("fetch failed", "url", url, "error", err)
				results[i] = Result{Index: i, URL: url, Err: err}
			} else {
				results[i] = Result{Index: i, URL: url, OK: true, Article: art}
			}

			n := int(done.Add(1))
			if onProgress != nil {
				progress.Lock()
				onProgress(n, len(urls), url)
				progress.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait()
	return results
}
