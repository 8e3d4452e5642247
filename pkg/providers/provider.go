package providers

import (
	"context"
	"sort"
	"sync"

	"github.com/hondanahq/hondana/pkg/metadata"
	"github.com/pkg/errors"
)

// ErrNotRegistered is returned when a fetch names a provider id with no
// registered client.
var ErrNotRegistered = errors.New("provider is not registered")

// BookHint carries the identifying fields a client can search with. ISBNs
// and ASINs take precedence over title searches when present.
type BookHint struct {
	Title      string
	AuthorName string
	ISBN13     *string
	ISBN10     *string
	ASIN       *string
}

// Client fetches candidate metadata from one external source. FetchTopCandidate
// returns the best match or nil when the source has nothing; FetchCandidateList
// returns ranked matches for interactive selection.
type Client interface {
	ID() string
	RateLimited() bool
	FetchTopCandidate(ctx context.Context, hint BookHint) (*metadata.CandidateMetadata, error)
	FetchCandidateList(ctx context.Context, hint BookHint) ([]*metadata.CandidateMetadata, error)
}

// Registry holds the configured clients keyed by provider id.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, client := range clients {
		r.clients[client.ID()] = client
	}
	return r
}

// Register adds or replaces a client.
func (r *Registry) Register(client Client) {
	r.mu.Lock()
	r.clients[client.ID()] = client
	r.mu.Unlock()
}

// Client returns the client for a provider id.
func (r *Registry) Client(id string) (Client, error) {
	r.mu.RLock()
	client, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(ErrNotRegistered, id)
	}
	return client, nil
}

// IDs returns the registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
