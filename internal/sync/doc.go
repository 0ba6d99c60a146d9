// Package sync reconciles the local cache with the remote store.
//
// Overview
//
// Two directions are supported:
//
//	Remote store                      Local cache
//	  users/{id}          --pull-->     users/ + current_user_id
//	  matches             --pull-->     matches/      (replace all)
//	  reports (by user)   --pull-->     reports/      (marked synced)
//	  pointHistory        --pull-->     pointHistory/ (replace all)
//	  rewardItems         --pull-->     rewardItems/  (replace all)
//	  reports             <--push--     unsynced reports
//
// Only one reconciliation runs at a time. A second request while one is
// in flight fails immediately with ErrAlreadySyncing and leaves the
// running one untouched.
//
// Status
//
// Progress is published as Status values on channels returned by
// Subscribe:
//
//	Idle -> Syncing(p) -> Completed(t) | Failed(err)
//
// Usage
//
//	coord := sync.New(store, localCache, nil)
//	updates, cancel := coord.Subscribe()
//	defer cancel()
//
//	result, err := coord.SyncAllData(ctx, userID)
//	if errors.Is(err, sync.ErrAlreadySyncing) {
//	    // another sync is running
//	}
//
// Push is best effort: every unsynced report is attempted, failures are
// logged, and only reports that reached the remote store leave the
// unsynced set.
package sync
