package clientsync

// a transient read/write view over the cache's live working snapshot, created
// fresh for each application of one speculative edit. writes go directly into
// the working map, so edits applied later in the same replay pass observe the
// writes of earlier edits. the edit procedure must be a pure function of the
// store view: replay re-runs it from scratch against a new base snapshot.

type OptimisticUpdateFunction func(store *OptimisticLocalStore)

type OptimisticLocalStore struct {
	working        map[QueryToken]*QueryResult
	modifiedTokens map[QueryToken]bool
}

func newOptimisticLocalStore(working map[QueryToken]*QueryResult) *OptimisticLocalStore {
	return &OptimisticLocalStore{
		working:        working,
		modifiedTokens: map[QueryToken]bool{},
	}
}

// writes the value into the working snapshot at (name, args)
// a nil value clears the entry to the loading state
// an encode failure degrades to the loading state. an update procedure
// cannot fail its host mutation.
func (self *OptimisticLocalStore) SetQuery(name string, args map[string]Value, value any) {
	result := EncodeQueryResult(name, args, value)
	token := result.Token()
	self.working[token] = result
	self.modifiedTokens[token] = true
}

func (self *OptimisticLocalStore) queryResult(token QueryToken) *QueryResult {
	return self.working[token]
}

func (self *OptimisticLocalStore) allQueryResults(name string) []*QueryResult {
	results := []*QueryResult{}
	for token, result := range self.working {
		if token.Name == name {
			results = append(results, result)
		}
	}
	return results
}

func (self *OptimisticLocalStore) ModifiedTokens() map[QueryToken]bool {
	modifiedTokens := map[QueryToken]bool{}
	for token := range self.modifiedTokens {
		modifiedTokens[token] = true
	}
	return modifiedTokens
}

// looks up (name, args) in the working snapshot, which may already reflect
// earlier edits in the same replay pass
// returns false if the entry is absent, loading, or does not decode to T
func GetQuery[T any](store *OptimisticLocalStore, name string, args map[string]Value) (T, bool) {
	token := NewQueryToken(name, args)
	return DecodeQueryResult[T](store.queryResult(token))
}

type QueryVariant[T any] struct {
	Args    map[string]Value
	Value   T
	Present bool
}

// linear scan of the working snapshot filtering by name
// supports bulk updates across paginated variants of one query
func GetAllQueries[T any](store *OptimisticLocalStore, name string) []QueryVariant[T] {
	variants := []QueryVariant[T]{}
	for _, result := range store.allQueryResults(name) {
		value, ok := DecodeQueryResult[T](result)
		variants = append(variants, QueryVariant[T]{
			Args:    result.Args,
			Value:   value,
			Present: ok,
		})
	}
	return variants
}
