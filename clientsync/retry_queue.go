package clientsync

import (
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/golang/glog"
)

// durable fifo of not-yet-acknowledged mutations
//
// bounded capacity with oldest-drop eviction. the whole queue persists as
// one serialized blob through the store interface. processing is single
// flight: successful entries are removed, failed entries are retained for
// the next pass. there is no per-entry retry count or backoff. a full-queue
// reattempt is the only retry unit.

type QueueStore interface {
	Save(queueBlob []byte) error
	// returns ok = false when no blob has been saved
	Load() (queueBlob []byte, ok bool, err error)
}

type MemoryQueueStore struct {
	mutex   sync.Mutex
	blob    []byte
	present bool
}

func NewMemoryQueueStore() *MemoryQueueStore {
	return &MemoryQueueStore{}
}

func (self *MemoryQueueStore) Save(queueBlob []byte) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.blob = slices.Clone(queueBlob)
	self.present = true
	return nil
}

func (self *MemoryQueueStore) Load() ([]byte, bool, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if !self.present {
		return nil, false, nil
	}
	return slices.Clone(self.blob), true, nil
}

type MutationQueueEntry struct {
	EntryId     Id              `json:"entry_id"`
	Name        string          `json:"name"`
	EncodedArgs json.RawMessage `json:"encoded_args,omitempty"`
	EnqueueTime time.Time       `json:"enqueue_time"`
}

type MutationRetryQueueSettings struct {
	Capacity int `env:"CLIENTSYNC_MUTATION_QUEUE_CAPACITY"`
}

func DefaultMutationRetryQueueSettings() *MutationRetryQueueSettings {
	return &MutationRetryQueueSettings{
		Capacity: 256,
	}
}

type MutationRetryQueue struct {
	store    QueueStore
	settings *MutationRetryQueueSettings

	stateLock  sync.Mutex
	entries    []*MutationQueueEntry
	processing bool
}

func NewMutationRetryQueueWithDefaults(store QueueStore) *MutationRetryQueue {
	return NewMutationRetryQueue(store, DefaultMutationRetryQueueSettings())
}

// restores previously persisted entries from the store if present
func NewMutationRetryQueue(store QueueStore, settings *MutationRetryQueueSettings) *MutationRetryQueue {
	retryQueue := &MutationRetryQueue{
		store:    store,
		settings: settings,
		entries:  []*MutationQueueEntry{},
	}
	if store != nil {
		queueBlob, ok, err := store.Load()
		if err != nil {
			glog.Infof("[queue]load error = %s\n", err)
		} else if ok {
			entries := []*MutationQueueEntry{}
			if err := json.Unmarshal(queueBlob, &entries); err != nil {
				glog.Infof("[queue]decode error = %s\n", err)
			} else {
				retryQueue.entries = entries
			}
		}
	}
	return retryQueue
}

func (self *MutationRetryQueue) Add(name string, encodedArgs []byte) *MutationQueueEntry {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	entry := &MutationQueueEntry{
		EntryId:     NewId(),
		Name:        name,
		EncodedArgs: encodedArgs,
		EnqueueTime: time.Now(),
	}
	self.entries = append(self.entries, entry)
	for self.settings.Capacity < len(self.entries) {
		// evict oldest
		self.entries = self.entries[1:]
	}
	self.persist()
	return entry
}

func (self *MutationRetryQueue) Remove(entryId Id) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	i := slices.IndexFunc(self.entries, func(entry *MutationQueueEntry) bool {
		return entry.EntryId == entryId
	})
	if i < 0 {
		return false
	}
	self.entries = slices.Delete(self.entries, i, i+1)
	self.persist()
	return true
}

func (self *MutationRetryQueue) Entries() []*MutationQueueEntry {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return slices.Clone(self.entries)
}

func (self *MutationRetryQueue) Size() int {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return len(self.entries)
}

type ProcessEntryFunction func(entry *MutationQueueEntry) error

// processes the queue in fifo order
// successful entries are removed, failed entries retained in order.
// returns false if a processing pass is already running.
func (self *MutationRetryQueue) Process(processEntry ProcessEntryFunction) bool {
	self.stateLock.Lock()
	if self.processing {
		self.stateLock.Unlock()
		return false
	}
	self.processing = true
	entries := slices.Clone(self.entries)
	self.stateLock.Unlock()

	processedEntryIds := map[Id]bool{}
	for _, entry := range entries {
		if err := processEntry(entry); err == nil {
			processedEntryIds[entry.EntryId] = true
		} else {
			glog.V(2).Infof("[queue]retained %s (%s) = %s\n", entry.EntryId, entry.Name, err)
		}
	}

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.processing = false
	if 0 < len(processedEntryIds) {
		self.entries = slices.DeleteFunc(self.entries, func(entry *MutationQueueEntry) bool {
			return processedEntryIds[entry.EntryId]
		})
		self.persist()
	}
	return true
}

func (self *MutationRetryQueue) Clear() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.entries = []*MutationQueueEntry{}
	self.persist()
}

// must be called with the state lock held
func (self *MutationRetryQueue) persist() {
	if self.store == nil {
		return
	}
	queueBlob, err := json.Marshal(self.entries)
	if err != nil {
		glog.Infof("[queue]encode error = %s\n", err)
		return
	}
	if err := self.store.Save(queueBlob); err != nil {
		glog.Infof("[queue]save error = %s\n", err)
	}
}
