package chat

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru"
)

// clientIDPattern is what a client-generated message id must look like to be kept.
var clientIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,64}$`)

func validClientID(id string) bool { return clientIDPattern.MatchString(id) }

// RecentIDs remembers the last N message ids relayed in this process so a
// replayed client id is caught. Older ids fall out of the window.
type RecentIDs struct {
	cache *lru.Cache
}

func NewRecentIDs(size int) (*RecentIDs, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &RecentIDs{cache: c}, nil
}

// Claim records id and reports whether it was new. Check and insert are atomic.
func (r *RecentIDs) Claim(id string) bool {
	seen, _ := r.cache.ContainsOrAdd(id, struct{}{})
	return !seen
}

func (r *RecentIDs) Len() int { return r.cache.Len() }
