package model

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notflix/aiservice/internal/device"
)

type fakeRuntime struct {
	artifact string
	closed   atomic.Bool
}

func (f *fakeRuntime) Close() error {
	f.closed.Store(true)
	return nil
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) count(s string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Count(b.buf.String(), s)
}

func testLogger(buf *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func langCandidates(m map[string][]string) CandidatesFunc[Lang] {
	return func(key Lang) ([]string, error) {
		return m[string(key)], nil
	}
}

func TestAcquireLoadsOncePerKeyUnderConcurrency(t *testing.T) {
	var logs syncBuffer
	var loads atomic.Int32
	release := make(chan struct{})

	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		loads.Add(1)
		<-release
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("filter", langCandidates(map[string][]string{"en": {"en_core_web_sm"}}), load, WithLogger(testLogger(&logs)))

	const callers = 10
	handles := make([]*Handle[*fakeRuntime], callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Acquire(context.Background(), "en")
			assert.NoError(t, err)
			handles[i] = h
		}()
	}

	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Equal(t, 1, logs.count(`msg="loading model"`))
	for _, h := range handles {
		assert.Same(t, handles[0], h)
	}

	again, err := r.Acquire(context.Background(), "en")
	require.NoError(t, err)
	assert.Same(t, handles[0], again)
	assert.Equal(t, int32(1), loads.Load())
}

func TestAcquireFallsBackThroughCandidates(t *testing.T) {
	var logs syncBuffer
	var tried []string
	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		tried = append(tried, artifact)
		if artifact == "es_core_news_lg" {
			return nil, errors.New("not installed")
		}
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("filter", langCandidates(map[string][]string{"es": {"es_core_news_lg", "es_core_news_sm"}}), load,
		WithLogger(testLogger(&logs)), WithPlacement(device.CUDA))

	h, err := r.Acquire(context.Background(), "es")
	require.NoError(t, err)

	assert.Equal(t, []string{"es_core_news_lg", "es_core_news_sm"}, tried)
	assert.Equal(t, "es_core_news_sm", h.Artifact)
	assert.Equal(t, "es_core_news_sm", h.Runtime().artifact)
	assert.Equal(t, device.CUDA, h.Device)
	assert.Equal(t, 2, logs.count(`msg="loading model"`))
	assert.Equal(t, 1, logs.count(`msg="model candidate failed" family=filter key=es candidate=es_core_news_lg`))
}

func TestFailedLoadIsNotCached(t *testing.T) {
	var attempts atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)

	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		attempts.Add(1)
		if fail.Load() {
			return nil, errors.New("artifact missing")
		}
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("filter", langCandidates(map[string][]string{"de": {"de_core_news_lg", "de_core_news_sm"}}), load,
		WithLogger(testLogger(&syncBuffer{})))

	_, err := r.Acquire(context.Background(), "de")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	var unavailable *ModelUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "filter", unavailable.Family)
	assert.Equal(t, "de", unavailable.Key)
	assert.Equal(t, []string{"de_core_news_lg", "de_core_news_sm"}, unavailable.Candidates)
	assert.Contains(t, err.Error(), "artifact missing")
	assert.Empty(t, r.Resident())

	fail.Store(false)
	h, err := r.Acquire(context.Background(), "de")
	require.NoError(t, err)
	assert.Equal(t, "de_core_news_lg", h.Artifact)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestAcquireWithoutCandidates(t *testing.T) {
	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		t.Fatal("load must not be called")
		return nil, nil
	}
	r := NewRegistry("filter", langCandidates(nil), load, WithLogger(testLogger(&syncBuffer{})))

	_, err := r.Acquire(context.Background(), "xx")
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestUnrelatedKeysDoNotBlockEachOther(t *testing.T) {
	slow := make(chan struct{})
	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		if key == "es" {
			<-slow
		}
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("filter", langCandidates(map[string][]string{"es": {"es"}, "en": {"en"}}), load,
		WithLogger(testLogger(&syncBuffer{})))
	defer close(slow)

	go func() { _, _ = r.Acquire(context.Background(), "es") }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	h, err := r.Acquire(ctx, "en")
	require.NoError(t, err)
	assert.Equal(t, "en", h.Key)
}

func TestAcquireHonoursContextWhileLoading(t *testing.T) {
	release := make(chan struct{})
	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		<-release
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("transcription", langCandidates(map[string][]string{"": {"tiny"}}), load,
		WithLogger(testLogger(&syncBuffer{})))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Acquire(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	h, err := r.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "tiny", h.Artifact)
}

func TestPreloadAndResident(t *testing.T) {
	load := func(ctx context.Context, key Pair, artifact string, _ device.Kind) (*fakeRuntime, error) {
		if key.Source == "xx" {
			return nil, errors.New("no such model")
		}
		return &fakeRuntime{artifact: artifact}, nil
	}
	candidates := func(key Pair) ([]string, error) {
		return []string{"opus-mt-" + key.String()}, nil
	}
	r := NewRegistry("translation", candidates, load, WithLogger(testLogger(&syncBuffer{})))

	err := r.Preload(context.Background(), NewPair("es", "en"), NewPair("EN", "es"), NewPair("xx", "en"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	resident := r.Resident()
	require.Len(t, resident, 2)
	assert.Equal(t, "en-es", resident[0].Key)
	assert.Equal(t, "es-en", resident[1].Key)
}

func TestCloseReleasesRuntimes(t *testing.T) {
	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("filter", langCandidates(map[string][]string{"en": {"en"}}), load, WithLogger(testLogger(&syncBuffer{})))

	h, err := r.Acquire(context.Background(), "en")
	require.NoError(t, err)

	require.NoError(t, r.Close())
	assert.True(t, h.Runtime().closed.Load())

	_, err = r.Acquire(context.Background(), "en")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestHandleDoNeverOverlaps(t *testing.T) {
	load := func(ctx context.Context, key Pair, artifact string, _ device.Kind) (*fakeRuntime, error) {
		return &fakeRuntime{artifact: artifact}, nil
	}
	r := NewRegistry("translation", func(Pair) ([]string, error) { return []string{"m"}, nil }, load,
		WithLogger(testLogger(&syncBuffer{})))

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := r.Acquire(context.Background(), NewPair("es", "en"))
			require.NoError(t, err)
			err = h.Do(context.Background(), func(*fakeRuntime) error {
				n := inside.Add(1)
				if n > maxInside.Load() {
					maxInside.Store(n)
				}
				time.Sleep(2 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
}

func TestSharedLockSpansKeys(t *testing.T) {
	load := func(ctx context.Context, key Lang, artifact string, _ device.Kind) (*fakeRuntime, error) {
		return &fakeRuntime{artifact: artifact}, nil
	}
	candidates := langCandidates(map[string][]string{"en": {"en"}, "es": {"es"}})

	shared := NewRegistry("filter", candidates, load, WithSharedLock(), WithLogger(testLogger(&syncBuffer{})))
	en, err := shared.Acquire(context.Background(), "en")
	require.NoError(t, err)
	es, err := shared.Acquire(context.Background(), "es")
	require.NoError(t, err)

	require.NoError(t, en.Lock(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, es.Lock(ctx), context.DeadlineExceeded)
	en.Unlock()

	perModel := NewRegistry("filter", candidates, load, WithLogger(testLogger(&syncBuffer{})))
	en, err = perModel.Acquire(context.Background(), "en")
	require.NoError(t, err)
	es, err = perModel.Acquire(context.Background(), "es")
	require.NoError(t, err)

	require.NoError(t, en.Lock(context.Background()))
	require.NoError(t, es.Lock(context.Background()))
	es.Unlock()
	en.Unlock()
}
