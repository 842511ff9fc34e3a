package bootstrap

import (
	"math"
	"sync"

	"github.com/gonano/nanod/internal/fairqueue"
	"github.com/gonano/nanod/internal/nanotype"
)

// Default priority tunables for AccountSets: priority_up multiplies by
// a configured factor up to a cap; priority_down divides or removes;
// priority_set inserts at default priority.
const (
	DefaultPriority        = 2.0
	PriorityIncreaseFactor = 2.0
	PriorityDecreaseFactor = 4.0
	PriorityMax            = 32.0
	priorityRemoveFloor    = 0.25
)

// AccountSets tracks which accounts the priority scheduler should pull
// next, and which are blocked waiting on a missing dependency. Account
// selection reuses internal/fairqueue's weighted round robin (one
// origin per account, a single sentinel value per origin) rather than
// a second priority-queue implementation.
type AccountSets struct {
	mu         sync.Mutex
	priorities map[nanotype.Account]float64
	queue      *fairqueue.Queue[struct{}, struct{}, nanotype.Account]

	blockedByAccount map[nanotype.Account]nanotype.Hash
	blockedByHash    map[nanotype.Hash]map[nanotype.Account]bool
}

func NewAccountSets() *AccountSets {
	return &AccountSets{
		priorities:       make(map[nanotype.Account]float64),
		queue:            fairqueue.New[struct{}, struct{}, nanotype.Account](1),
		blockedByAccount: make(map[nanotype.Account]nanotype.Hash),
		blockedByHash:    make(map[nanotype.Hash]map[nanotype.Account]bool),
	}
}

func weightFor(p float64) int {
	w := int(math.Round(p))
	if w < 1 {
		w = 1
	}
	return w
}

// Contains reports whether account is already tracked, either
// prioritized or blocked, so the database scheduler can skip it.
func (a *AccountSets) Contains(account nanotype.Account) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.priorities[account]; ok {
		return true
	}
	_, ok := a.blockedByAccount[account]
	return ok
}

// PrioritySet inserts account at the default priority if it is
// untracked.
func (a *AccountSets) PrioritySet(account nanotype.Account) {
	a.mu.Lock()
	if _, blocked := a.blockedByAccount[account]; blocked {
		a.mu.Unlock()
		return
	}
	if _, ok := a.priorities[account]; ok {
		a.mu.Unlock()
		return
	}
	a.priorities[account] = DefaultPriority
	a.mu.Unlock()
	a.queue.SetPriority(account, weightFor(DefaultPriority))
	a.queue.Push(struct{}{}, struct{}{}, account)
}

// PriorityUp multiplies account's priority by PriorityIncreaseFactor,
// capped at PriorityMax (e.g. a peer confirmed one of its blocks).
func (a *AccountSets) PriorityUp(account nanotype.Account) {
	a.mu.Lock()
	p, ok := a.priorities[account]
	if !ok {
		a.mu.Unlock()
		a.PrioritySet(account)
		return
	}
	p *= PriorityIncreaseFactor
	if p > PriorityMax {
		p = PriorityMax
	}
	a.priorities[account] = p
	a.mu.Unlock()
	a.queue.SetPriority(account, weightFor(p))
}

// PriorityDown divides account's priority by PriorityDecreaseFactor,
// removing it entirely once it falls below priorityRemoveFloor (e.g. a
// request for it failed or returned nothing new).
func (a *AccountSets) PriorityDown(account nanotype.Account) {
	a.mu.Lock()
	p, ok := a.priorities[account]
	if !ok {
		a.mu.Unlock()
		return
	}
	p /= PriorityDecreaseFactor
	if p < priorityRemoveFloor {
		delete(a.priorities, account)
		a.mu.Unlock()
		a.queue.RemoveBy(account)
		return
	}
	a.priorities[account] = p
	a.mu.Unlock()
	a.queue.SetPriority(account, weightFor(p))
}

// Block moves account out of the priority set to wait on dependency,
// held in a map keyed both by account and by the missing hash.
func (a *AccountSets) Block(account nanotype.Account, dependency nanotype.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.priorities, account)
	a.blockedByAccount[account] = dependency
	set, ok := a.blockedByHash[dependency]
	if !ok {
		set = make(map[nanotype.Account]bool)
		a.blockedByHash[dependency] = set
	}
	set[account] = true
	a.queue.RemoveBy(account)
}

// Unblock returns every account waiting on hash to the priority set,
// called once that hash is successfully inserted.
func (a *AccountSets) Unblock(hash nanotype.Hash) []nanotype.Account {
	a.mu.Lock()
	waiting := a.blockedByHash[hash]
	delete(a.blockedByHash, hash)
	var unblocked []nanotype.Account
	for account := range waiting {
		if dep, ok := a.blockedByAccount[account]; ok && dep == hash {
			delete(a.blockedByAccount, account)
			unblocked = append(unblocked, account)
		}
	}
	a.mu.Unlock()
	for _, account := range unblocked {
		a.PrioritySet(account)
	}
	return unblocked
}

// NextPriority pops one account for the priority scheduler to request
// from. The caller MUST call Release once the request for this
// account has concluded (successfully or not) so the account becomes
// eligible again — resetting its scheduling timestamp.
func (a *AccountSets) NextPriority() (nanotype.Account, float64, bool) {
	_, _, account, ok := a.queue.PopNext()
	if !ok {
		return nanotype.Account{}, 0, false
	}
	a.mu.Lock()
	p := a.priorities[account]
	a.mu.Unlock()
	return account, p, true
}

// Release re-enqueues account for a future scheduling turn, provided
// it is still tracked (PriorityDown/Block may have removed it while
// the request was outstanding).
func (a *AccountSets) Release(account nanotype.Account) {
	a.mu.Lock()
	p, ok := a.priorities[account]
	a.mu.Unlock()
	if !ok {
		return
	}
	a.queue.SetPriority(account, weightFor(p))
	a.queue.Push(struct{}{}, struct{}{}, account)
}

// NextBlockedHash returns an arbitrary dependency hash with at least
// one account waiting on it, for the dependency scheduler.
func (a *AccountSets) NextBlockedHash() (nanotype.Hash, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for hash := range a.blockedByHash {
		return hash, true
	}
	return nanotype.Hash{}, false
}

func (a *AccountSets) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.priorities)
}

func (a *AccountSets) BlockedLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.blockedByAccount)
}
