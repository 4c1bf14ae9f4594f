package clientsync

import (
	"bytes"
	"encoding/json"
)

// a value slot for one query token
// the payload is kept in its serialized form so the cache does not need to
// know concrete result types. consumers decode on read with a target type.
// an absent payload means loading, which is a real state and not an error.

type QueryResult struct {
	Name string
	Args map[string]Value

	payload []byte
	present bool
}

func NewQueryResult(name string, args map[string]Value, payload []byte) *QueryResult {
	return &QueryResult{
		Name:    name,
		Args:    args,
		payload: payload,
		present: true,
	}
}

func NewLoadingQueryResult(name string, args map[string]Value) *QueryResult {
	return &QueryResult{
		Name: name,
		Args: args,
	}
}

func EncodeQueryResult(name string, args map[string]Value, value any) *QueryResult {
	if value == nil {
		return NewLoadingQueryResult(name, args)
	}
	payload, err := json.Marshal(value)
	if err != nil {
		// degrade to loading rather than failing the caller
		return NewLoadingQueryResult(name, args)
	}
	return NewQueryResult(name, args, payload)
}

func (self *QueryResult) Token() QueryToken {
	return NewQueryToken(self.Name, self.Args)
}

func (self *QueryResult) Payload() ([]byte, bool) {
	return self.payload, self.present
}

func (self *QueryResult) IsLoading() bool {
	return !self.present
}

func (self *QueryResult) samePayload(result *QueryResult) bool {
	if self.present != result.present {
		return false
	}
	return bytes.Equal(self.payload, result.payload)
}

// returns false if the result is loading or the payload does not decode to T
func DecodeQueryResult[T any](result *QueryResult) (T, bool) {
	var value T
	if result == nil || !result.present {
		return value, false
	}
	if err := json.Unmarshal(result.payload, &value); err != nil {
		return value, false
	}
	return value, true
}
