package nanotype

// BlockStatus is the canonical per-block insertion outcome — a
// design-level outcome, not an exception. It satisfies error so
// callers that want Go-idiomatic propagation (AddBlocking's result)
// can return it directly, while callers that want to switch on the
// outcome (the block processor's side-effect table) compare it by
// value.
type BlockStatus int

const (
	Progress BlockStatus = iota
	BadSignature
	Old
	NegativeSpend
	Fork
	Unreceivable
	GapPrevious
	GapSource
	GapEpochOpenPending
	OpenedBurnAccount
	BalanceMismatch
	RepresentativeMismatch
	BlockPosition
	InsufficientWork
)

var blockStatusNames = map[BlockStatus]string{
	Progress:            "progress",
	BadSignature:        "bad_signature",
	Old:                 "old",
	NegativeSpend:       "negative_spend",
	Fork:                "fork",
	Unreceivable:        "unreceivable",
	GapPrevious:         "gap_previous",
	GapSource:           "gap_source",
	GapEpochOpenPending: "gap_epoch_open_pending",
	OpenedBurnAccount:   "opened_burn_account",
	BalanceMismatch:     "balance_mismatch",
	RepresentativeMismatch: "representative_mismatch",
	BlockPosition:       "block_position",
	InsufficientWork:    "insufficient_work",
}

func (s BlockStatus) String() string {
	if name, ok := blockStatusNames[s]; ok {
		return name
	}
	return "unknown_status"
}

// Error satisfies the error interface so BlockStatus values other than
// Progress can be returned and compared with errors.Is/==.
func (s BlockStatus) Error() string { return s.String() }

// IsGap reports whether the status is one of the Gap* dependency-wait
// outcomes that get staged in the unchecked map.
func (s BlockStatus) IsGap() bool {
	switch s {
	case GapPrevious, GapSource, GapEpochOpenPending:
		return true
	default:
		return false
	}
}

// BlockSource tags where a candidate block came from, driving the fair
// queue's priority defaults.
type BlockSource int

const (
	SourceUnknown BlockSource = iota
	SourceLive
	SourceLiveOriginator
	SourceBootstrap
	SourceBootstrapLegacy
	SourceUnchecked
	SourceLocal
	SourceForced
)

func (s BlockSource) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceLiveOriginator:
		return "live_originator"
	case SourceBootstrap:
		return "bootstrap"
	case SourceBootstrapLegacy:
		return "bootstrap_legacy"
	case SourceUnchecked:
		return "unchecked"
	case SourceLocal:
		return "local"
	case SourceForced:
		return "forced"
	default:
		return "unknown"
	}
}

// ElectionBehavior classifies an election's slot-accounting bucket and
// request cadence.
type ElectionBehavior int

const (
	BehaviorManual ElectionBehavior = iota
	BehaviorPriority
	BehaviorHinted
	BehaviorOptimistic
)

func (b ElectionBehavior) String() string {
	switch b {
	case BehaviorManual:
		return "manual"
	case BehaviorPriority:
		return "priority"
	case BehaviorHinted:
		return "hinted"
	case BehaviorOptimistic:
		return "optimistic"
	default:
		return "unknown"
	}
}

// ElectionState is a node in an election's lifecycle state machine.
type ElectionState int

const (
	StatePassive ElectionState = iota
	StateActive
	StateConfirmed
	StateExpiredConfirmed
	StateExpiredUnconfirmed
	StateCancelled
)

func (s ElectionState) String() string {
	switch s {
	case StatePassive:
		return "passive"
	case StateActive:
		return "active"
	case StateConfirmed:
		return "confirmed"
	case StateExpiredConfirmed:
		return "expired_confirmed"
	case StateExpiredUnconfirmed:
		return "expired_unconfirmed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s ElectionState) IsTerminal() bool {
	switch s {
	case StateExpiredConfirmed, StateExpiredUnconfirmed, StateCancelled:
		return true
	default:
		return false
	}
}
