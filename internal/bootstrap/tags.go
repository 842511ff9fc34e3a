package bootstrap

import (
	"sync"
	"time"

	"github.com/gonano/nanod/internal/nanotype"
)

// TagKind distinguishes the two outbound request shapes the schedulers
// issue: a block range pull, or an account-info-by-hash dependency
// lookup.
type TagKind int

const (
	TagKindBlocks TagKind = iota
	TagKindAccountInfo
)

// Tag is one outstanding bootstrap request, tagged with a random u64
// id, target account, and deadline.
type Tag struct {
	ID             uint64
	Kind           TagKind
	Account        nanotype.Account
	Start          nanotype.Hash
	StartIsAccount bool
	Count          uint32
	Deadline       time.Time
	ChannelID      string
	issuedAt       time.Time
}

// OrderedTags tracks outstanding requests by id in issue order; the
// timeout thread's PurgeExpired walks the whole order list on each call.
type OrderedTags struct {
	mu    sync.Mutex
	byID  map[uint64]*Tag
	order []uint64
}

func NewOrderedTags() *OrderedTags {
	return &OrderedTags{byID: make(map[uint64]*Tag)}
}

func (t *OrderedTags) Insert(tag *Tag) {
	tag.issuedAt = time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[tag.ID] = tag
	t.order = append(t.order, tag.ID)
}

// Match removes and returns the tag for id, the reply-correlation
// step that matches a reply back to its request.
func (t *OrderedTags) Match(id uint64) (*Tag, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tag, ok := t.byID[id]
	if ok {
		delete(t.byID, id)
	}
	return tag, ok
}

func (t *OrderedTags) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// PurgeExpired drops and returns every tag whose deadline has passed.
func (t *OrderedTags) PurgeExpired(now time.Time) []*Tag {
	t.mu.Lock()
	defer t.mu.Unlock()
	var expired []*Tag
	live := t.order[:0]
	for _, id := range t.order {
		tag, ok := t.byID[id]
		if !ok {
			continue
		}
		if now.After(tag.Deadline) {
			expired = append(expired, tag)
			delete(t.byID, id)
			continue
		}
		live = append(live, id)
	}
	t.order = live
	return expired
}
