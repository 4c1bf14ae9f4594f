package clientsync

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestLocalStoreLoadingRoundtrip(t *testing.T) {
	working := map[QueryToken]*QueryResult{}
	store := newOptimisticLocalStore(working)

	store.SetQuery("q", nil, nil)

	// loading reads as nothing, not as a decode error
	_, ok := GetQuery[[]string](store, "q", nil)
	assert.Equal(t, false, ok)

	token := NewQueryToken("q", nil)
	assert.Equal(t, true, working[token].IsLoading())
	assert.Equal(t, map[QueryToken]bool{token: true}, store.ModifiedTokens())
}

func TestLocalStoreReadAfterWrite(t *testing.T) {
	working := map[QueryToken]*QueryResult{}
	store := newOptimisticLocalStore(working)

	store.SetQuery("q", nil, []string{"a"})
	items, ok := GetQuery[[]string](store, "q", nil)
	assert.Equal(t, true, ok)
	assert.Equal(t, []string{"a"}, items)
}

func TestLocalStoreDecodeFailureReadsAbsent(t *testing.T) {
	token := NewQueryToken("q", nil)
	working := map[QueryToken]*QueryResult{
		token: NewQueryResult("q", nil, []byte(`"not a list"`)),
	}
	store := newOptimisticLocalStore(working)

	_, ok := GetQuery[[]string](store, "q", nil)
	assert.Equal(t, false, ok)
}

func TestLocalStoreEncodeFailureDegradesToLoading(t *testing.T) {
	working := map[QueryToken]*QueryResult{}
	store := newOptimisticLocalStore(working)

	// a channel cannot marshal. the write degrades to loading instead of
	// failing the host mutation.
	store.SetQuery("q", nil, make(chan int))

	token := NewQueryToken("q", nil)
	assert.Equal(t, true, working[token].IsLoading())
}

func TestLocalStoreGetAllQueries(t *testing.T) {
	working := map[QueryToken]*QueryResult{}
	store := newOptimisticLocalStore(working)

	pageOne := map[string]Value{"page": IntValue(1)}
	pageTwo := map[string]Value{"page": IntValue(2)}
	store.SetQuery("items", pageOne, []string{"a"})
	store.SetQuery("items", pageTwo, []string{"b"})
	store.SetQuery("other", nil, []string{"c"})

	variants := GetAllQueries[[]string](store, "items")
	assert.Equal(t, 2, len(variants))
	for _, variant := range variants {
		assert.Equal(t, true, variant.Present)
		assert.Equal(t, 1, len(variant.Value))
	}
}
