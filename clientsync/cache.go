package clientsync

import (
	"slices"
	"sync"

	"github.com/golang/glog"

	"golang.org/x/exp/maps"
)

// optimistic query cache
//
// the cache owns three pieces of state:
// - the server snapshot, authoritative, replaced wholesale on each ingestion
// - the combined snapshot, which is always exactly the server snapshot with
//   all pending speculative edits replayed in mutation id order. reads
//   observe the combined snapshot only.
// - the ordered list of pending speculative edits
//
// replay rebuilds the combined snapshot from scratch rather than patching it
// incrementally. correctness over micro-efficiency: snapshot sizes are
// bounded by the active subscription count.

type MutationId uint64

type optimisticUpdateEntry struct {
	mutationId MutationId
	update     OptimisticUpdateFunction
}

type OptimisticQueryCache struct {
	// allows concurrent readers. writers are serialized against each other
	// and against readers, so a reader never observes a partially rebuilt
	// combined snapshot.
	stateLock sync.RWMutex

	serverSnapshot   map[QueryToken]*QueryResult
	combinedSnapshot map[QueryToken]*QueryResult
	pendingUpdates   []*optimisticUpdateEntry
	nextMutationId   MutationId
}

func NewOptimisticQueryCache() *OptimisticQueryCache {
	return &OptimisticQueryCache{
		serverSnapshot:   map[QueryToken]*QueryResult{},
		combinedSnapshot: map[QueryToken]*QueryResult{},
		pendingUpdates:   []*optimisticUpdateEntry{},
	}
}

// applies the speculative edit into the combined snapshot in place and
// registers it for replay until its mutation id is reported completed
// returns the assigned mutation id and the set of tokens the edit modified
func (self *OptimisticQueryCache) ApplyOptimisticUpdate(update OptimisticUpdateFunction) (MutationId, map[QueryToken]bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	mutationId := self.nextMutationId
	self.nextMutationId += 1

	store := newOptimisticLocalStore(self.combinedSnapshot)
	update(store)

	self.pendingUpdates = append(self.pendingUpdates, &optimisticUpdateEntry{
		mutationId: mutationId,
		update:     update,
	})

	modifiedTokens := store.ModifiedTokens()
	glog.V(2).Infof("[cache]apply m(%d) modified=%d pending=%d\n", mutationId, len(modifiedTokens), len(self.pendingUpdates))
	return mutationId, modifiedTokens
}

// replaces the server snapshot wholesale, drops edits owned by completed
// mutations, and replays the remaining edits in ascending mutation id order
// returns the authoritative changed-token set, the before/after diff of the
// combined snapshot
func (self *OptimisticQueryCache) IngestServerResults(
	serverSnapshot map[QueryToken]*QueryResult,
	completedMutationIds map[MutationId]bool,
) map[QueryToken]bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.serverSnapshot = maps.Clone(serverSnapshot)
	if self.serverSnapshot == nil {
		self.serverSnapshot = map[QueryToken]*QueryResult{}
	}
	changedTokens := self.replay(completedMutationIds)
	glog.V(2).Infof("[cache]ingest changed=%d pending=%d\n", len(changedTokens), len(self.pendingUpdates))
	return changedTokens
}

// reports mutations as completed without a new server snapshot
// drops their edits and replays the rest over the current server snapshot.
// the mutation caller uses this on mutation failure too, so a failed
// mutation does not leave a permanent speculative artifact.
func (self *OptimisticQueryCache) CompleteMutations(completedMutationIds map[MutationId]bool) map[QueryToken]bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	changedTokens := self.replay(completedMutationIds)
	glog.V(2).Infof("[cache]complete changed=%d pending=%d\n", len(changedTokens), len(self.pendingUpdates))
	return changedTokens
}

// single-token variant of ingestion. patches one entry in the server
// snapshot, then performs the same full replay rebuild.
// returns whether that token's combined value changed
func (self *OptimisticQueryCache) UpdateServerResult(token QueryToken, result *QueryResult) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if result == nil {
		delete(self.serverSnapshot, token)
	} else {
		self.serverSnapshot[token] = result
	}
	changedTokens := self.replay(nil)
	return changedTokens[token]
}

// must be called with the state lock held for writing
func (self *OptimisticQueryCache) replay(completedMutationIds map[MutationId]bool) map[QueryToken]bool {
	if 0 < len(completedMutationIds) {
		self.pendingUpdates = slices.DeleteFunc(self.pendingUpdates, func(entry *optimisticUpdateEntry) bool {
			return completedMutationIds[entry.mutationId]
		})
	}

	combinedSnapshot := maps.Clone(self.serverSnapshot)
	if combinedSnapshot == nil {
		combinedSnapshot = map[QueryToken]*QueryResult{}
	}
	// pendingUpdates is insertion ordered, which is ascending mutation id
	for _, entry := range self.pendingUpdates {
		store := newOptimisticLocalStore(combinedSnapshot)
		entry.update(store)
	}

	changedTokens := diffSnapshots(self.combinedSnapshot, combinedSnapshot)
	self.combinedSnapshot = combinedSnapshot
	return changedTokens
}

// a token is changed if it is present in exactly one of the two snapshots,
// or present in both with a different serialized payload or presence
func diffSnapshots(before map[QueryToken]*QueryResult, after map[QueryToken]*QueryResult) map[QueryToken]bool {
	changedTokens := map[QueryToken]bool{}
	for token, beforeResult := range before {
		afterResult, ok := after[token]
		if !ok || !beforeResult.samePayload(afterResult) {
			changedTokens[token] = true
		}
	}
	for token := range after {
		if _, ok := before[token]; !ok {
			changedTokens[token] = true
		}
	}
	return changedTokens
}

func (self *OptimisticQueryCache) GetQueryResult(token QueryToken) *QueryResult {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	return self.combinedSnapshot[token]
}

func (self *OptimisticQueryCache) GetAllQueryResults(name string) []*QueryResult {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	results := []*QueryResult{}
	for token, result := range self.combinedSnapshot {
		if token.Name == name {
			results = append(results, result)
		}
	}
	slices.SortFunc(results, func(a *QueryResult, b *QueryResult) int {
		return compareStrings(a.Token().String(), b.Token().String())
	})
	return results
}

func (self *OptimisticQueryCache) PendingMutationIds() []MutationId {
	self.stateLock.RLock()
	defer self.stateLock.RUnlock()

	mutationIds := make([]MutationId, 0, len(self.pendingUpdates))
	for _, entry := range self.pendingUpdates {
		mutationIds = append(mutationIds, entry.mutationId)
	}
	return mutationIds
}

// resets all cache state. used on logout and session teardown.
func (self *OptimisticQueryCache) Clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.serverSnapshot = map[QueryToken]*QueryResult{}
	self.combinedSnapshot = map[QueryToken]*QueryResult{}
	self.pendingUpdates = []*optimisticUpdateEntry{}
}

func compareStrings(a string, b string) int {
	if a < b {
		return -1
	} else if b < a {
		return 1
	} else {
		return 0
	}
}
