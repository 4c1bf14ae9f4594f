package clientsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang/glog"
)

// keeps a bearer credential fresh for a long-lived connection without
// interrupting in-flight requests
//
// the manager runs on a single logical timeline. at most one refresh is ever
// in flight, enforced cooperatively by the in-progress guard. scheduling uses
// one-shot runtime timers (monotonic deadline scheduling), never a blocking
// sleep, so a scheduled refresh still fires at approximately the correct
// wall time across process suspend/resume. cancellation is logical: a fired
// but stale timer callback checks the generation before acting.

type AuthProvider interface {
	// exchanges the current credential for a new one
	// returns ErrRefreshUnsupported when proactive refresh is not available
	RefreshCredential(ctx context.Context, credential string) (string, error)
	ExtractBearerToken(credential string) (string, error)
}

// receives the new credential and its bearer token after a successful refresh
type TokenChangedFunction func(credential string, bearerToken string)

// receives the terminal error after a permanent failure or retry exhaustion
// the owning client uses this to drive logout
type RefreshFailedFunction func(err error)

type TokenRefreshSettings struct {
	// refresh this long before actual credential expiry
	ExpiryLeeway time.Duration `env:"CLIENTSYNC_REFRESH_LEEWAY"`
	// wait before refreshing a token already inside the leeway window.
	// covers refreshing right after a network loss/reconnect, where an
	// immediate attempt would hit a still resetting tls stack.
	StabilizationDelay time.Duration `env:"CLIENTSYNC_REFRESH_STABILIZATION_DELAY"`
	MaxRetries         int           `env:"CLIENTSYNC_REFRESH_MAX_RETRIES"`
	// backoff doubles per attempt from this base
	BaseRetryDelay time.Duration `env:"CLIENTSYNC_REFRESH_BASE_RETRY_DELAY"`
}

func DefaultTokenRefreshSettings() *TokenRefreshSettings {
	return &TokenRefreshSettings{
		ExpiryLeeway:       60 * time.Second,
		StabilizationDelay: 3 * time.Second,
		MaxRetries:         3,
		BaseRetryDelay:     2 * time.Second,
	}
}

type TokenRefreshManager struct {
	ctx    context.Context
	cancel context.CancelFunc

	authProvider AuthProvider
	settings     *TokenRefreshSettings

	stateLock    sync.Mutex
	credential   string
	monitorTimer *time.Timer
	refreshing   bool
	// bumped on every start/stop. scheduled callbacks carry the generation
	// they were armed under and take no action if it has moved on.
	generation uint64

	tokenChangedCallbacks  *CallbackList[TokenChangedFunction]
	refreshFailedCallbacks *CallbackList[RefreshFailedFunction]
}

func NewTokenRefreshManagerWithDefaults(ctx context.Context, authProvider AuthProvider) *TokenRefreshManager {
	return NewTokenRefreshManager(ctx, authProvider, DefaultTokenRefreshSettings())
}

func NewTokenRefreshManager(ctx context.Context, authProvider AuthProvider, settings *TokenRefreshSettings) *TokenRefreshManager {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &TokenRefreshManager{
		ctx:                    cancelCtx,
		cancel:                 cancel,
		authProvider:           authProvider,
		settings:               settings,
		tokenChangedCallbacks:  NewCallbackList[TokenChangedFunction](),
		refreshFailedCallbacks: NewCallbackList[RefreshFailedFunction](),
	}
}

func (self *TokenRefreshManager) AddTokenChangedCallback(tokenChangedCallback TokenChangedFunction) func() {
	callbackId := self.tokenChangedCallbacks.Add(tokenChangedCallback)
	return func() {
		self.tokenChangedCallbacks.Remove(callbackId)
	}
}

func (self *TokenRefreshManager) AddRefreshFailedCallback(refreshFailedCallback RefreshFailedFunction) func() {
	callbackId := self.refreshFailedCallbacks.Add(refreshFailedCallback)
	return func() {
		self.refreshFailedCallbacks.Remove(callbackId)
	}
}

// begins monitoring the credential for proactive refresh
// cancels any previously scheduled refresh. if no expiry can be decoded from
// the bearer token, stays idle: the session then relies on reactive
// 401-driven reauth.
func (self *TokenRefreshManager) StartMonitoring(credential string) {
	if self.ctx.Err() != nil {
		return
	}

	self.stateLock.Lock()
	self.generation += 1
	generation := self.generation
	self.stopMonitorTimer()
	self.credential = credential
	self.stateLock.Unlock()

	self.monitor(credential, generation)
}

func (self *TokenRefreshManager) monitor(credential string, generation uint64) {
	bearerToken, err := self.authProvider.ExtractBearerToken(credential)
	if err != nil {
		glog.Infof("[refresh]no bearer token = %s\n", err)
		return
	}
	expiry, ok := ExtractTokenExpiry(bearerToken)
	if !ok {
		glog.V(2).Infof("[refresh]no expiry known, not scheduling\n")
		return
	}

	timeUntilRefresh := max(0, time.Until(expiry)-self.settings.ExpiryLeeway)
	var delay time.Duration
	if timeUntilRefresh == 0 {
		// already inside the leeway window. wait for the network to
		// stabilize instead of refreshing immediately.
		delay = self.settings.StabilizationDelay
	} else {
		delay = timeUntilRefresh
	}
	glog.V(2).Infof("[refresh]monitor expiry=%s refresh in %s\n", expiry, delay)

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	if generation != self.generation {
		return
	}
	self.monitorTimer = time.AfterFunc(delay, func() {
		self.performRefreshWithRetry(generation, 0)
	})
}

func (self *TokenRefreshManager) performRefreshWithRetry(generation uint64, attempt int) {
	if self.ctx.Err() != nil {
		return
	}

	self.stateLock.Lock()
	if generation != self.generation {
		self.stateLock.Unlock()
		return
	}
	if self.refreshing {
		// at most one refresh in flight
		self.stateLock.Unlock()
		return
	}
	self.refreshing = true
	credential := self.credential
	self.stateLock.Unlock()

	nextCredential, err := self.authProvider.RefreshCredential(self.ctx, credential)

	if err == nil {
		self.stateLock.Lock()
		self.refreshing = false
		if generation != self.generation {
			self.stateLock.Unlock()
			return
		}
		self.credential = nextCredential
		self.generation += 1
		nextGeneration := self.generation
		self.stopMonitorTimer()
		self.stateLock.Unlock()

		bearerToken, _ := self.authProvider.ExtractBearerToken(nextCredential)
		for _, tokenChangedCallback := range self.tokenChangedCallbacks.Get() {
			tokenChangedCallback(nextCredential, bearerToken)
		}
		// re-arm the cycle for the new credential
		self.monitor(nextCredential, nextGeneration)
		return
	}

	if errors.Is(err, ErrRefreshUnsupported) {
		self.stateLock.Lock()
		self.refreshing = false
		self.stateLock.Unlock()
		glog.Infof("[refresh]not supported, stopping proactive refresh\n")
		return
	}

	if IsTransientRefreshError(err) && attempt < self.settings.MaxRetries {
		retryDelay := self.settings.BaseRetryDelay << attempt
		glog.Infof("[refresh]transient error on attempt %d, retry in %s = %s\n", attempt, retryDelay, err)

		self.stateLock.Lock()
		self.refreshing = false
		if generation != self.generation {
			self.stateLock.Unlock()
			return
		}
		self.monitorTimer = time.AfterFunc(retryDelay, func() {
			self.performRefreshWithRetry(generation, attempt+1)
		})
		self.stateLock.Unlock()
		return
	}

	// permanent failure or retries exhausted
	self.stateLock.Lock()
	self.refreshing = false
	stale := generation != self.generation
	self.stateLock.Unlock()
	if stale {
		return
	}
	glog.Infof("[refresh]permanent failure on attempt %d = %s\n", attempt, err)
	for _, refreshFailedCallback := range self.refreshFailedCallbacks.Get() {
		refreshFailedCallback(err)
	}
}

// cancels any scheduled refresh and clears the tracked credential
// callable from any state. idempotent. guarantees no subsequent refresh
// attempt takes action, including one already dispatched.
func (self *TokenRefreshManager) StopMonitoring() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.generation += 1
	self.stopMonitorTimer()
	self.credential = ""
	self.refreshing = false
}

// must be called with the state lock held
func (self *TokenRefreshManager) stopMonitorTimer() {
	if self.monitorTimer != nil {
		self.monitorTimer.Stop()
		self.monitorTimer = nil
	}
}

func (self *TokenRefreshManager) Credential() string {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	return self.credential
}

func (self *TokenRefreshManager) Close() {
	self.StopMonitoring()
	self.cancel()
}
