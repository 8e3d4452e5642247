package providers

import (
	"context"
	"sync"
	"time"

	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/sync/errgroup"
)

// FetchTopCandidates asks every named provider for its best match in
// parallel and returns whatever succeeded, keyed by provider id. A provider
// that errors or times out is logged and omitted; one bad source never
// sinks the rest. Unregistered ids are skipped the same way.
func FetchTopCandidates(ctx context.Context, registry *Registry, ids []string, hint BookHint, timeout time.Duration) map[string]*metadata.CandidateMetadata {
	log := logger.FromContext(ctx)

	var mu sync.Mutex
	results := make(map[string]*metadata.CandidateMetadata, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		client, err := registry.Client(id)
		if err != nil {
			log.Warn("skipping unregistered provider", logger.Data{"provider": id})
			continue
		}

		g.Go(func() error {
			fetchCtx := gctx
			if timeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(gctx, timeout)
				defer cancel()
			}

			cm, err := client.FetchTopCandidate(fetchCtx, hint)
			if err != nil {
				log.Warn("provider fetch failed", logger.Data{"provider": id, "error": err.Error()})
				return nil
			}
			if cm == nil {
				return nil
			}
			if cm.Provider == "" {
				cm.Provider = id
			}

			mu.Lock()
			results[id] = cm
			mu.Unlock()
			return nil
		})
	}

	// Fetch errors are swallowed per provider, so this never returns one.
	_ = g.Wait()

	return results
}
