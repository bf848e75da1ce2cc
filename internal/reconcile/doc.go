// Package reconcile implements the local-first synchronization engine that
// sits between a scope's local cache and the remote store.
//
// Overview
//
// Every scope (an actor's plan list, or one plan's word sets) is owned by one
// Engine. Reads are served from the in-memory projection, which is hydrated
// from the local cache before any network I/O. Mutations are applied to the
// projection and the cache immediately, queued as pending mutations, and
// flushed to the remote store in the background.
//
//	   Mutate ──► projection ──► cache
//	                 │
//	                 ▼
//	        pending queue (one entry per target, last write wins)
//	                 │  debounce (3s)
//	                 ▼
//	        flush: one in-flight write per target, retries with backoff
//	                 │
//	                 ▼
//	            remote store ──► Refresh ──► merge ──► projection
//
// States
//
//	Unloaded ──Start──► CacheHydrated ──fetch──► Reconciling ──ok──► Settled
//	                                                  ▲                 │
//	                                                  └────Refresh──────┘
//
// HasPending is tracked separately from the state.
//
// Merge rule
//
// The remote list is authoritative for which ids exist, except for ids with
// a pending mutation or a local change newer than the last successful fetch.
// Those keep their local value until the next fetch observes the write.
//
// Failure handling
//
// Transient failures retry with exponential backoff (base 1s, cap 30s,
// jitter ±20%). After MaxAttempts the mutation stays queued, marked
// exhausted, and the scope's status becomes StatusError. Only an explicit
// remote rejection rolls the optimistic change back.
//
// Usage
//
//	eng := reconcile.New(reconcile.DefaultConfig(), scope, adapter, localCache, store)
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	err := eng.Mutate(func(tx *reconcile.Tx[words.Membership]) error {
//	    tx.Put("ability-1", words.Completed)
//	    return nil
//	})
package reconcile
