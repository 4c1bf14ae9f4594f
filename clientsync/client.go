package clientsync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"
)

// the client owns one cache, one refresh manager and one retry queue, and
// wires them to the transport and auth collaborators
//
// a mutation call synchronously applies its speculative edit into the cache,
// then issues the network call, and on completion (success or failure)
// reports the mutation id completed so the cache drops that edit and replays
// the rest. server pushed snapshots flow in through the ingest entry points.

type Transport interface {
	ExecuteMutation(ctx context.Context, name string, args map[string]Value) ([]byte, error)
	// receives the bearer token to use for subsequent requests
	SetBearerToken(bearerToken string)
}

type clientCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleClientCallback[R any] struct {
	callback func(result R, err error)
}

func NewClientCallback[R any](callback func(result R, err error)) clientCallback[R] {
	return &simpleClientCallback[R]{
		callback: callback,
	}
}

func NewNoopClientCallback[R any]() clientCallback[R] {
	return &simpleClientCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleClientCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ClientCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingClientCallback[R any]() (clientCallback[R], chan ClientCallbackResult[R]) {
	c := make(chan ClientCallbackResult[R], 1)
	callback := NewClientCallback[R](func(result R, err error) {
		c <- ClientCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return callback, c
}

type MutateCallback clientCallback[[]byte]

type ChangedTokensFunction func(changedTokens map[QueryToken]bool)

type LogoutFunction func(err error)

type ClientSettings struct {
	MutationTimeout    time.Duration `env:"CLIENTSYNC_MUTATION_TIMEOUT"`
	RefreshSettings    *TokenRefreshSettings
	RetryQueueSettings *MutationRetryQueueSettings
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		MutationTimeout:    15 * time.Second,
		RefreshSettings:    DefaultTokenRefreshSettings(),
		RetryQueueSettings: DefaultMutationRetryQueueSettings(),
	}
}

type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	instanceId Id

	transport Transport
	settings  *ClientSettings

	cache          *OptimisticQueryCache
	refreshManager *TokenRefreshManager
	retryQueue     *MutationRetryQueue

	changedTokenCallbacks *CallbackList[ChangedTokensFunction]
	logoutCallbacks       *CallbackList[LogoutFunction]

	refreshUnsubs []func()
}

func NewClientWithDefaults(
	ctx context.Context,
	transport Transport,
	authProvider AuthProvider,
	queueStore QueueStore,
) *Client {
	return NewClient(ctx, transport, authProvider, queueStore, DefaultClientSettings())
}

func NewClient(
	ctx context.Context,
	transport Transport,
	authProvider AuthProvider,
	queueStore QueueStore,
	settings *ClientSettings,
) *Client {
	cancelCtx, cancel := context.WithCancel(ctx)

	client := &Client{
		ctx:                   cancelCtx,
		cancel:                cancel,
		instanceId:            NewId(),
		transport:             transport,
		settings:              settings,
		cache:                 NewOptimisticQueryCache(),
		refreshManager:        NewTokenRefreshManager(cancelCtx, authProvider, settings.RefreshSettings),
		retryQueue:            NewMutationRetryQueue(queueStore, settings.RetryQueueSettings),
		changedTokenCallbacks: NewCallbackList[ChangedTokensFunction](),
		logoutCallbacks:       NewCallbackList[LogoutFunction](),
	}

	tokenChangedUnsub := client.refreshManager.AddTokenChangedCallback(func(credential string, bearerToken string) {
		client.transport.SetBearerToken(bearerToken)
	})
	refreshFailedUnsub := client.refreshManager.AddRefreshFailedCallback(func(err error) {
		client.logout(err)
	})
	client.refreshUnsubs = []func(){tokenChangedUnsub, refreshFailedUnsub}

	return client
}

func (self *Client) InstanceId() Id {
	return self.instanceId
}

func (self *Client) Cache() *OptimisticQueryCache {
	return self.cache
}

func (self *Client) RefreshManager() *TokenRefreshManager {
	return self.refreshManager
}

func (self *Client) RetryQueue() *MutationRetryQueue {
	return self.retryQueue
}

func (self *Client) AddChangedTokensCallback(changedTokensCallback ChangedTokensFunction) func() {
	callbackId := self.changedTokenCallbacks.Add(changedTokensCallback)
	return func() {
		self.changedTokenCallbacks.Remove(callbackId)
	}
}

func (self *Client) AddLogoutCallback(logoutCallback LogoutFunction) func() {
	callbackId := self.logoutCallbacks.Add(logoutCallback)
	return func() {
		self.logoutCallbacks.Remove(callbackId)
	}
}

func (self *Client) notifyChangedTokens(changedTokens map[QueryToken]bool) {
	if len(changedTokens) == 0 {
		return
	}
	glog.V(2).Infof("[client]changed %s\n", tokenSetString(changedTokens))
	for _, changedTokensCallback := range self.changedTokenCallbacks.Get() {
		changedTokensCallback(changedTokens)
	}
}

// applies the speculative edit synchronously, then executes the mutation on
// the transport. the mutation is always reported completed to the cache,
// on success and on failure, so a failed mutation's speculative edit is
// dropped on the next replay (rollback-on-error). the execution error is
// propagated to the callback.
func (self *Client) Mutate(
	name string,
	args map[string]Value,
	update OptimisticUpdateFunction,
	callback MutateCallback,
) MutationId {
	mutationId, modifiedTokens := self.cache.ApplyOptimisticUpdate(update)
	self.notifyChangedTokens(modifiedTokens)

	encodedArgs, err := json.Marshal(MapValue(args))
	if err != nil {
		encodedArgs = nil
	}
	entry := self.retryQueue.Add(name, encodedArgs)

	go func() {
		mutateCtx, mutateCancel := context.WithTimeout(self.ctx, self.settings.MutationTimeout)
		defer mutateCancel()

		payload, err := self.transport.ExecuteMutation(mutateCtx, name, args)
		if err == nil {
			self.retryQueue.Remove(entry.EntryId)
		} else {
			glog.V(2).Infof("[client]mutation %s m(%d) failed = %s\n", name, mutationId, err)
		}

		changedTokens := self.cache.CompleteMutations(map[MutationId]bool{
			mutationId: true,
		})
		self.notifyChangedTokens(changedTokens)

		callback.Result(payload, err)
	}()

	return mutationId
}

// bulk resync from the server
func (self *Client) IngestServerResults(
	serverSnapshot map[QueryToken]*QueryResult,
	completedMutationIds map[MutationId]bool,
) {
	changedTokens := self.cache.IngestServerResults(serverSnapshot, completedMutationIds)
	self.notifyChangedTokens(changedTokens)
}

// single subscription push
func (self *Client) UpdateServerResult(token QueryToken, result *QueryResult) {
	if self.cache.UpdateServerResult(token, result) {
		self.notifyChangedTokens(map[QueryToken]bool{
			token: true,
		})
	}
}

func (self *Client) logout(err error) {
	glog.Infof("[client]logout = %v\n", err)
	self.refreshManager.StopMonitoring()
	self.cache.Clear()
	self.retryQueue.Clear()
	for _, logoutCallback := range self.logoutCallbacks.Get() {
		logoutCallback(err)
	}
}

// session teardown initiated by the app
func (self *Client) Logout() {
	self.logout(nil)
}

func (self *Client) Close() {
	self.cancel()
	for _, unsub := range self.refreshUnsubs {
		unsub()
	}
	self.refreshManager.Close()
}
