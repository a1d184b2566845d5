package bootstrap

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/memorylane/internal/config"
	"github.com/teemow/memorylane/internal/google"
)

type fakeAPI struct {
	availableAfter int32 // Available returns true from this call on; <0 never
	hang           bool  // Available and Init block until ctx is done
	calls          atomic.Int32
	inits          atomic.Int32
	initErr        error
	gotKey         atomic.Value
}

func (f *fakeAPI) Available(ctx context.Context) bool {
	n := f.calls.Add(1)
	if f.hang && f.availableAfter < 0 {
		<-ctx.Done()
		return false
	}
	return f.availableAfter >= 0 && n >= f.availableAfter
}

func (f *fakeAPI) Init(ctx context.Context, apiKey string, _ []string) error {
	f.inits.Add(1)
	f.gotKey.Store(apiKey)
	if f.hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.initErr
}

type fakeIdentity struct {
	availableAfter int32
	calls          atomic.Int32
	inits          atomic.Int32
	initErr        error
	gotConfig      atomic.Value
}

func (f *fakeIdentity) Available(context.Context) bool {
	n := f.calls.Add(1)
	return f.availableAfter >= 0 && n >= f.availableAfter
}

func (f *fakeIdentity) InitTokenClient(cfg google.TokenClientConfig) (google.TokenRequester, error) {
	f.inits.Add(1)
	f.gotConfig.Store(cfg)
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &nopTokenClient{}, nil
}

type nopTokenClient struct{}

func (*nopTokenClient) SetCallback(func(google.TokenResponse))                   {}
func (*nopTokenClient) RequestAccessToken(context.Context, google.Prompt) error { return nil }

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *fakeRecorder) RecordBootstrap(_ context.Context, outcome string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func validConfig() config.Config {
	return config.Config{
		ClientID:      "client-id-1234567890",
		APIKey:        "api-key-1234567890",
		SpreadsheetID: "spreadsheet-123",
	}
}

func newTestLoader(store *config.Store, api *fakeAPI, identity *fakeIdentity) *Loader {
	return NewLoader(Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  DefaultMaxAttempts,
		RedirectURL:  "http://127.0.0.1:8080/oauth2/callback",
	}, store, api, identity, nil)
}

// loadOnce runs Load and counts onReady invocations until it settles.
func loadOnce(t *testing.T, l *Loader) int32 {
	t.Helper()
	var fired atomic.Int32
	done := make(chan struct{})
	l.Load(context.Background(), func() {
		fired.Add(1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("onReady was not called")
	}
	// Give a second, erroneous invocation the chance to show up.
	time.Sleep(10 * time.Millisecond)
	return fired.Load()
}

func TestLoad_ReadyAndConfigured(t *testing.T) {
	api := &fakeAPI{availableAfter: 1}
	identity := &fakeIdentity{availableAfter: 1}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	assert.Equal(t, int32(1), loadOnce(t, l))

	state := l.State()
	assert.True(t, state.Ready())
	assert.False(t, state.Degraded)
	assert.True(t, state.ClientLibraryInitialized)
	assert.True(t, state.IdentityLibraryInitialized)
	assert.Equal(t, int32(1), api.inits.Load())
	assert.Equal(t, int32(1), identity.inits.Load())
	assert.Equal(t, "api-key-1234567890", api.gotKey.Load())
	assert.NotNil(t, l.TokenClient())

	cfg := identity.gotConfig.Load().(google.TokenClientConfig)
	assert.Equal(t, "client-id-1234567890", cfg.ClientID)
	assert.Equal(t, google.DefaultOAuthScopes, cfg.Scopes)
	assert.NotNil(t, cfg.Callback, "a placeholder callback is registered")
}

func TestLoad_TimeoutIsDegradedButReady(t *testing.T) {
	api := &fakeAPI{availableAfter: -1}
	identity := &fakeIdentity{availableAfter: -1}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	assert.Equal(t, int32(1), loadOnce(t, l))

	state := l.State()
	assert.True(t, state.Ready())
	assert.True(t, state.Degraded)
	assert.Equal(t, OutcomeTimeout, state.Reason)
	// The shared deadline may end the wait a tick before the last attempt.
	assert.Positive(t, state.Attempts)
	assert.LessOrEqual(t, state.Attempts, DefaultMaxAttempts)
	assert.LessOrEqual(t, api.calls.Load(), int32(DefaultMaxAttempts))
	assert.Zero(t, api.inits.Load())
	assert.Zero(t, identity.inits.Load())
	assert.Nil(t, l.TokenClient())
}

func TestLoad_OneLibraryMissingTimesOut(t *testing.T) {
	api := &fakeAPI{availableAfter: 1}
	identity := &fakeIdentity{availableAfter: -1}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	state := l.LoadAndWait(context.Background())
	assert.True(t, state.Degraded)
	assert.Equal(t, OutcomeTimeout, state.Reason)
	assert.Zero(t, api.inits.Load())
}

func TestLoad_LibrariesAppearLate(t *testing.T) {
	api := &fakeAPI{availableAfter: 3}
	identity := &fakeIdentity{availableAfter: 5}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	state := l.LoadAndWait(context.Background())
	assert.False(t, state.Degraded)
	assert.Equal(t, 5, state.Attempts)
}

func TestLoad_InvalidConfigSkipsInitialization(t *testing.T) {
	api := &fakeAPI{availableAfter: 1}
	identity := &fakeIdentity{availableAfter: 1}
	l := newTestLoader(config.NewStore(config.Config{ClientID: "short"}), api, identity)

	assert.Equal(t, int32(1), loadOnce(t, l))

	state := l.State()
	assert.True(t, state.Ready())
	assert.True(t, state.Degraded)
	assert.Equal(t, OutcomeInvalidConfig, state.Reason)
	assert.False(t, state.IdentityLibraryInitialized)
	assert.Zero(t, api.inits.Load())
	assert.Zero(t, identity.inits.Load())
}

func TestLoad_InitFailureStillSignalsReady(t *testing.T) {
	api := &fakeAPI{availableAfter: 1, initErr: errors.New("discovery failed")}
	identity := &fakeIdentity{availableAfter: 1}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	assert.Equal(t, int32(1), loadOnce(t, l))

	state := l.State()
	assert.True(t, state.Ready())
	assert.True(t, state.Degraded)
	assert.Equal(t, OutcomeInitFailed, state.Reason)
	assert.False(t, state.ClientLibraryInitialized)
	assert.True(t, state.IdentityLibraryInitialized)
	assert.NotNil(t, l.TokenClient())

	// Only the failed library is retried.
	api.initErr = nil
	state = l.LoadAndWait(context.Background())
	assert.False(t, state.Degraded)
	assert.Equal(t, int32(2), api.inits.Load())
	assert.Equal(t, int32(1), identity.inits.Load())
}

func TestLoad_Idempotent(t *testing.T) {
	api := &fakeAPI{availableAfter: 1}
	identity := &fakeIdentity{availableAfter: 1}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	assert.Equal(t, int32(1), loadOnce(t, l))
	assert.Equal(t, int32(1), loadOnce(t, l), "onReady fires again on a repeated Load")

	assert.Equal(t, int32(1), api.inits.Load())
	assert.Equal(t, int32(1), identity.inits.Load())
}

func TestLoad_ConcurrentCallersInitializeOnce(t *testing.T) {
	api := &fakeAPI{availableAfter: 3}
	identity := &fakeIdentity{availableAfter: 3}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.LoadAndWait(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), api.inits.Load())
	assert.Equal(t, int32(1), identity.inits.Load())
}

func TestLoad_DegradedThenConfigured(t *testing.T) {
	store := config.NewStore(config.Config{})
	api := &fakeAPI{availableAfter: 1}
	identity := &fakeIdentity{availableAfter: 1}
	l := newTestLoader(store, api, identity)

	state := l.LoadAndWait(context.Background())
	require.True(t, state.Degraded)

	store.Set(validConfig())
	state = l.LoadAndWait(context.Background())
	assert.False(t, state.Degraded)
	assert.True(t, state.IdentityLibraryInitialized)
	assert.Equal(t, int32(1), identity.inits.Load())
}

func TestReset(t *testing.T) {
	api := &fakeAPI{availableAfter: 1}
	identity := &fakeIdentity{availableAfter: 1}
	l := newTestLoader(config.NewStore(validConfig()), api, identity)

	l.LoadAndWait(context.Background())
	l.Reset()
	assert.Equal(t, State{}, l.State())
	assert.Nil(t, l.TokenClient())

	l.LoadAndWait(context.Background())
	assert.Equal(t, int32(2), api.inits.Load())
	assert.Equal(t, int32(2), identity.inits.Load())
}

func TestLoad_Cancelled(t *testing.T) {
	api := &fakeAPI{availableAfter: -1}
	identity := &fakeIdentity{availableAfter: -1}
	l := NewLoader(Config{PollInterval: time.Hour}, config.NewStore(validConfig()), api, identity, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state := l.LoadAndWait(ctx)
	assert.True(t, state.Degraded)
	assert.Equal(t, OutcomeCancelled, state.Reason)
}

func TestLoad_RecordsOutcome(t *testing.T) {
	rec := &fakeRecorder{}
	l := newTestLoader(config.NewStore(validConfig()), &fakeAPI{availableAfter: 1}, &fakeIdentity{availableAfter: 1})
	l.SetRecorder(rec)

	l.LoadAndWait(context.Background())
	assert.Equal(t, []string{OutcomeReady}, rec.outcomes)
}

func TestLoad_UnresponsiveAvailabilityBoundedByBudget(t *testing.T) {
	api := &fakeAPI{availableAfter: -1, hang: true}
	identity := &fakeIdentity{availableAfter: 1}
	l := NewLoader(Config{
		PollInterval: 50 * time.Millisecond,
		MaxAttempts:  2,
	}, config.NewStore(validConfig()), api, identity, nil)

	start := time.Now()
	state := l.LoadAndWait(context.Background())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, time.Second, "wait must end at the 100ms budget")
	assert.True(t, state.Ready())
	assert.True(t, state.Degraded)
	assert.Equal(t, OutcomeTimeout, state.Reason)
	assert.Equal(t, int32(0), api.inits.Load())
}

func TestLoad_HangingInitBoundedByInitTimeout(t *testing.T) {
	api := &fakeAPI{availableAfter: 1, hang: true}
	identity := &fakeIdentity{availableAfter: 1}
	l := NewLoader(Config{
		PollInterval: time.Millisecond,
		MaxAttempts:  DefaultMaxAttempts,
		InitTimeout:  50 * time.Millisecond,
	}, config.NewStore(validConfig()), api, identity, nil)

	var fired atomic.Int32
	done := make(chan struct{})
	start := time.Now()
	l.Load(context.Background(), func() {
		fired.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("onReady was not called after a hanging initialization")
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), fired.Load())

	state := l.State()
	assert.Equal(t, OutcomeInitFailed, state.Reason)
	assert.False(t, state.ClientLibraryInitialized)
	assert.True(t, state.IdentityLibraryInitialized)
}
