package clientsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type testTransport struct {
	mutex       sync.Mutex
	executeErrs map[string]error
	bearerToken string
	executed    []string
	// execution blocks until closed, so tests can observe speculative state
	block chan struct{}
}

func newTestTransport() *testTransport {
	return &testTransport{
		executeErrs: map[string]error{},
	}
}

func (self *testTransport) ExecuteMutation(ctx context.Context, name string, args map[string]Value) ([]byte, error) {
	self.mutex.Lock()
	self.executed = append(self.executed, name)
	block := self.block
	err := self.executeErrs[name]
	self.mutex.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return []byte(`{"ok":true}`), nil
}

func (self *testTransport) SetBearerToken(bearerToken string) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.bearerToken = bearerToken
}

func (self *testTransport) getBearerToken() string {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.bearerToken
}

func testClientSettings() *ClientSettings {
	return &ClientSettings{
		MutationTimeout:    1 * time.Second,
		RefreshSettings:    testRefreshSettings(),
		RetryQueueSettings: DefaultMutationRetryQueueSettings(),
	}
}

func TestClientMutateSuccess(t *testing.T) {
	ctx := context.Background()
	transport := newTestTransport()
	transport.block = make(chan struct{})
	client := NewClient(ctx, transport, &testAuthProvider{}, NewMemoryQueueStore(), testClientSettings())
	defer client.Close()

	token := NewQueryToken("items", nil)

	changedCounts := make(chan int, 16)
	unsub := client.AddChangedTokensCallback(func(changedTokens map[QueryToken]bool) {
		changedCounts <- len(changedTokens)
	})
	defer unsub()

	callback, c := NewBlockingClientCallback[[]byte]()
	client.Mutate("appendItem", map[string]Value{"item": StringValue("a")}, appendItemUpdate("a"), callback)

	// the speculative edit is visible immediately
	items, ok := combinedItems(client.Cache(), token)
	assert.Equal(t, true, ok)
	assert.Equal(t, []string{"a"}, items)
	// the speculative application notified a change
	assert.Equal(t, 1, <-changedCounts)

	close(transport.block)
	result := <-c
	assert.Equal(t, result.Error, nil)
	assert.Equal(t, []byte(`{"ok":true}`), result.Result)

	// acknowledged entries leave the retry queue
	assert.Equal(t, 0, client.RetryQueue().Size())
	// the completed mutation's edit is dropped: with no server entry the
	// combined snapshot reverts to empty
	_, ok = combinedItems(client.Cache(), token)
	assert.Equal(t, false, ok)
	assert.Equal(t, 0, len(client.Cache().PendingMutationIds()))
}

func TestClientMutateFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	transport := newTestTransport()
	transport.block = make(chan struct{})
	transport.executeErrs["appendItem"] = errors.New("server rejected")
	client := NewClient(ctx, transport, &testAuthProvider{}, NewMemoryQueueStore(), testClientSettings())
	defer client.Close()

	token := NewQueryToken("items", nil)
	client.IngestServerResults(map[QueryToken]*QueryResult{
		token: EncodeQueryResult("items", nil, []string{"s"}),
	}, nil)

	callback, c := NewBlockingClientCallback[[]byte]()
	client.Mutate("appendItem", nil, appendItemUpdate("a"), callback)

	items, _ := combinedItems(client.Cache(), token)
	assert.Equal(t, []string{"s", "a"}, items)

	close(transport.block)
	result := <-c
	assert.NotEqual(t, result.Error, nil)

	// the failed mutation is still reported completed, so the ui reverts to
	// the best known server truth
	items, _ = combinedItems(client.Cache(), token)
	assert.Equal(t, []string{"s"}, items)
	// the unacknowledged entry stays queued for a later full-queue pass
	assert.Equal(t, 1, client.RetryQueue().Size())
}

func TestClientConcurrentMutations(t *testing.T) {
	ctx := context.Background()
	transport := newTestTransport()
	transport.block = make(chan struct{})
	client := NewClient(ctx, transport, &testAuthProvider{}, NewMemoryQueueStore(), testClientSettings())
	defer client.Close()

	token := NewQueryToken("items", nil)

	// two in-flight edits applied in order, the second reading the first
	callbackX, cX := NewBlockingClientCallback[[]byte]()
	callbackY, cY := NewBlockingClientCallback[[]byte]()
	client.Mutate("appendItem", nil, appendItemUpdate("x"), callbackX)
	client.Mutate("appendItem", nil, appendItemUpdate("y"), callbackY)

	items, _ := combinedItems(client.Cache(), token)
	assert.Equal(t, []string{"x", "y"}, items)

	close(transport.block)
	<-cX
	<-cY
}

func TestClientRefreshPushesBearerToken(t *testing.T) {
	ctx := context.Background()
	transport := newTestTransport()
	authProvider := &testAuthProvider{
		nextCredential: expiringToken(t, 2*time.Hour),
	}
	client := NewClient(ctx, transport, authProvider, NewMemoryQueueStore(), testClientSettings())
	defer client.Close()

	client.RefreshManager().StartMonitoring(expiringToken(t, 10*time.Second))

	ok := waitFor(t, 2*time.Second, func() bool {
		return transport.getBearerToken() == authProvider.nextCredential
	})
	assert.Equal(t, true, ok)
}

func TestClientLogoutOnPermanentRefreshFailure(t *testing.T) {
	ctx := context.Background()
	transport := newTestTransport()
	authProvider := &testAuthProvider{
		refreshErrs: []error{ErrCredentialRejected},
	}
	client := NewClient(ctx, transport, authProvider, NewMemoryQueueStore(), testClientSettings())
	defer client.Close()

	token := NewQueryToken("items", nil)
	client.IngestServerResults(map[QueryToken]*QueryResult{
		token: EncodeQueryResult("items", nil, []string{"s"}),
	}, nil)
	client.RetryQueue().Add("m", nil)

	logoutErrs := make(chan error, 1)
	unsub := client.AddLogoutCallback(func(err error) {
		logoutErrs <- err
	})
	defer unsub()

	client.RefreshManager().StartMonitoring(expiringToken(t, 10*time.Second))

	select {
	case err := <-logoutErrs:
		assert.Equal(t, ErrCredentialRejected, err)
	case <-time.After(2 * time.Second):
		t.Fatal("no logout signal")
	}

	// logout clears session state
	assert.Equal(t, nil, client.Cache().GetQueryResult(token))
	assert.Equal(t, 0, client.RetryQueue().Size())
}
