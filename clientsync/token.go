package clientsync

import (
	"fmt"
)

// canonical identity for a (query name, arguments) pair
// note nil arguments and an empty argument map both canonicalize to `name#{}`.
// callers that rely on that distinction share a cache key.

// comparable
type QueryToken struct {
	Name          string
	canonicalArgs string
}

func NewQueryToken(name string, args map[string]Value) QueryToken {
	return QueryToken{
		Name:          name,
		canonicalArgs: MapValue(args).CanonicalString(),
	}
}

func (self QueryToken) CanonicalArgs() string {
	return self.canonicalArgs
}

func (self QueryToken) String() string {
	return fmt.Sprintf("%s#%s", self.Name, self.canonicalArgs)
}
