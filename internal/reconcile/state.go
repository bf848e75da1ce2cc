package reconcile

// State is the load state of a scope.
type State int

const (
	Unloaded State = iota
	CacheHydrated
	Reconciling
	Settled
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case CacheHydrated:
		return "cache_hydrated"
	case Reconciling:
		return "reconciling"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// Status is the sync status shown to users.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Worst returns the most severe of the given statuses, for summarizing
// several scopes in one indicator.
func Worst(statuses ...Status) Status {
	rank := map[Status]int{
		StatusIdle:    0,
		StatusSynced:  1,
		StatusSyncing: 2,
		StatusOffline: 3,
		StatusError:   4,
	}
	worst := StatusIdle
	for _, s := range statuses {
		if rank[s] > rank[worst] {
			worst = s
		}
	}
	return worst
}
