package passes

import (
	"context"
	"runtime"
	"sync"
)

// BatchResult holds the outcome for one request of a batch.
type BatchResult struct {
	NORADID int     `json:"norad_id"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// FindVisibleBatch runs one search per request, each satellite in its own
// goroutine bounded by a semaphore of runtime.NumCPU(). Results keep the
// order of reqs.
func (s *Searcher) FindVisibleBatch(ctx context.Context, reqs []Request) []BatchResult {
	results := make([]BatchResult, len(reqs))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i, req := range reqs {
		if req.Elements != nil {
			results[i].NORADID = req.Elements.NORADID
		}
		wg.Add(1)
		go func(idx int, r Request) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx].Error = "cancelled"
				return
			}

			res, err := s.FindVisible(ctx, r)
			results[idx].Result = res
			if err != nil {
				results[idx].Error = err.Error()
			}
		}(i, req)
	}

	wg.Wait()
	return results
}
