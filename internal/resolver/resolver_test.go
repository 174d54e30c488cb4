package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencitations/doi-corrector/internal/reference"
	"github.com/opencitations/doi-corrector/internal/remote"
)

// fakeRegistry answers from a map; DOIs in fail return a transient error.
type fakeRegistry struct {
	name    string
	records map[string]*reference.Metadata
	fail    map[string]bool
	gate    chan struct{} // when set, lookups wait for it or for ctx
	calls   atomic.Int32
}

func (f *fakeRegistry) Name() string { return f.name }

func (f *fakeRegistry) Lookup(ctx context.Context, d string) (*reference.Metadata, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail[d] {
		return nil, &remote.AttemptError{Attempts: 5, Err: fmt.Errorf("%w: 503", remote.ErrTransient)}
	}
	md, ok := f.records[d]
	if !ok {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, d)
	}
	cp := *md
	return &cp, nil
}

func md(d string, refs ...string) *reference.Metadata {
	m := &reference.Metadata{DOI: d, Title: "Title of " + d, Registry: "fake"}
	if refs != nil {
		m.AddReferences(refs...)
	}
	return m
}

func TestResolver_SingleFlight(t *testing.T) {
	reg := &fakeRegistry{
		name:    "fake",
		records: map[string]*reference.Metadata{"10.1000/a": md("10.1000/a")},
		gate:    make(chan struct{}),
	}
	r := New(reg)

	const callers = 20
	var wg sync.WaitGroup
	outcomes := make([]Outcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := "10.1000/A"
			if i%2 == 0 {
				raw = "https://doi.org/10.1000/a"
			}
			outcomes[i] = r.Resolve(context.Background(), raw)
		}(i)
	}

	require.Eventually(t, func() bool { return reg.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(reg.gate)
	wg.Wait()

	assert.Equal(t, int32(1), reg.calls.Load())
	assert.Equal(t, 1, r.Lookups())
	for _, o := range outcomes {
		assert.True(t, o.Found)
		assert.Equal(t, "10.1000/a", o.DOI)
	}
}

func TestResolver_CachesFoundAndNotFound(t *testing.T) {
	reg := &fakeRegistry{name: "fake", records: map[string]*reference.Metadata{"10.1000/a": md("10.1000/a")}}
	r := New(reg)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.Equal(t, StatusFound, r.Resolve(ctx, "10.1000/a").Status())
		out := r.Resolve(ctx, "10.1000/missing")
		assert.Equal(t, StatusNotFound, out.Status())
		assert.NoError(t, out.Err)
		assert.False(t, out.Found)
	}
	assert.Equal(t, int32(2), reg.calls.Load())

	require.NotNil(t, r.Metadata("DOI:10.1000/A"))
	assert.Nil(t, r.Metadata("10.1000/missing"))
	assert.Nil(t, r.Metadata("10.1000/never-asked"))
	assert.Len(t, r.Found(), 1)
}

func TestResolver_FailureDoesNotBlockOthers(t *testing.T) {
	reg := &fakeRegistry{
		name:    "fake",
		records: map[string]*reference.Metadata{"10.1000/a": md("10.1000/a"), "10.1000/b": md("10.1000/b")},
		fail:    map[string]bool{"10.1000/bad": true},
	}
	rec := &statusRecorder{}
	r := New(reg, WithRecorder(rec))

	got := r.ResolveAll(context.Background(), []string{"10.1000/a", "10.1000/bad", "10.1000/B", "10.1000/b", ""}, 2)

	require.Len(t, got, 3)
	assert.Equal(t, StatusFound, got["10.1000/a"].Status())
	assert.Equal(t, StatusFound, got["10.1000/b"].Status())
	bad := got["10.1000/bad"]
	assert.Equal(t, StatusFailed, bad.Status())
	assert.Equal(t, 5, bad.Attempts)
	assert.ErrorIs(t, bad.Err, remote.ErrTransient)
	assert.Equal(t, map[string]int{"found": 2, "failed": 1}, rec.snapshot())
}

func TestResolver_CanceledLookupNotCached(t *testing.T) {
	reg := &fakeRegistry{
		name:    "fake",
		records: map[string]*reference.Metadata{"10.1000/a": md("10.1000/a")},
		gate:    make(chan struct{}),
	}
	r := New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Outcome)
	go func() { done <- r.Resolve(ctx, "10.1000/a") }()
	require.Eventually(t, func() bool { return reg.calls.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	out := <-done
	assert.Equal(t, StatusCanceled, out.Status())
	_, cached := r.Cached("10.1000/a")
	assert.False(t, cached)

	close(reg.gate)
	out = r.Resolve(context.Background(), "10.1000/a")
	assert.True(t, out.Found)
	assert.Equal(t, 2, r.Lookups())
}

func TestResolver_Seed(t *testing.T) {
	reg := &fakeRegistry{name: "fake"}
	r := New(reg)
	r.Seed(md("10.1000/SEEDED"), nil)

	out := r.Resolve(context.Background(), "10.1000/seeded")
	assert.True(t, out.Found)
	assert.Equal(t, int32(0), reg.calls.Load())
}

func TestChain_Order(t *testing.T) {
	crossref := &fakeRegistry{name: "crossref", records: map[string]*reference.Metadata{
		"10.1000/both": md("10.1000/both", "10.2000/x"),
	}}
	meta := &fakeRegistry{name: "oc-meta", records: map[string]*reference.Metadata{
		"10.1000/both":      md("10.1000/both"),
		"10.1000/meta-only": md("10.1000/meta-only"),
	}}
	chain := NewChain(crossref, meta)
	ctx := context.Background()

	got, err := chain.Lookup(ctx, "10.1000/both")
	require.NoError(t, err)
	assert.True(t, got.ReferencesKnown, "first registry wins")
	assert.Equal(t, int32(0), meta.calls.Load())

	got, err = chain.Lookup(ctx, "10.1000/meta-only")
	require.NoError(t, err)
	assert.Equal(t, "10.1000/meta-only", got.DOI)

	_, err = chain.Lookup(ctx, "10.1000/nowhere")
	assert.True(t, remote.IsNotFound(err))
	assert.Equal(t, "crossref,oc-meta", chain.Name())
}

func TestChain_FailureBeatsNotFound(t *testing.T) {
	crossref := &fakeRegistry{name: "crossref", fail: map[string]bool{"10.1000/x": true}}
	meta := &fakeRegistry{name: "oc-meta"}

	_, err := NewChain(crossref, meta).Lookup(context.Background(), "10.1000/x")
	require.Error(t, err)
	assert.False(t, remote.IsNotFound(err))
	assert.ErrorIs(t, err, remote.ErrTransient)
}

func TestChain_FailoverToNextRegistry(t *testing.T) {
	crossref := &fakeRegistry{name: "crossref", fail: map[string]bool{"10.1000/x": true}}
	meta := &fakeRegistry{name: "oc-meta", records: map[string]*reference.Metadata{"10.1000/x": md("10.1000/x")}}

	got, err := NewChain(crossref, meta).Lookup(context.Background(), "10.1000/x")
	require.NoError(t, err)
	assert.Equal(t, "10.1000/x", got.DOI)
}

func TestChain_Augment(t *testing.T) {
	meta := &fakeRegistry{name: "oc-meta", records: map[string]*reference.Metadata{
		"10.1000/x":     md("10.1000/x"),
		"10.1000/known": md("10.1000/known", "10.2000/a"),
	}}
	pdfs := &fakeRegistry{name: "pdf", records: map[string]*reference.Metadata{
		"10.1000/x":     md("10.1000/x", "10.3000/q", "10.3000/p"),
		"10.1000/known": md("10.1000/known", "10.9999/ignored"),
	}}
	chain := NewChain(meta).WithAugmenter(pdfs)

	got, err := chain.Lookup(context.Background(), "10.1000/x")
	require.NoError(t, err)
	assert.True(t, got.ReferencesKnown)
	assert.Equal(t, []string{"10.3000/p", "10.3000/q"}, got.ReferencedDOIs)
	assert.Equal(t, "fake+pdf", got.Registry)

	got, err = chain.Lookup(context.Background(), "10.1000/known")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.2000/a"}, got.ReferencedDOIs, "deposited references are not augmented")
}

func TestChain_LaterRegistrySuppliesReferences(t *testing.T) {
	crossref := &fakeRegistry{name: "crossref", records: map[string]*reference.Metadata{
		"10.1000/a": md("10.1000/a"),
	}}
	meta := &fakeRegistry{name: "oc-meta", records: map[string]*reference.Metadata{
		"10.1000/a": md("10.1000/a"),
	}}
	s2 := &fakeRegistry{name: "s2", records: map[string]*reference.Metadata{
		"10.1000/a": md("10.1000/a", "10.1000/x"),
	}}
	pdfs := &fakeRegistry{name: "pdf"}
	chain := NewChain(crossref, meta, s2).WithAugmenter(pdfs)

	got, err := chain.Lookup(context.Background(), "10.1000/a")
	require.NoError(t, err)
	assert.True(t, got.ReferencesKnown)
	assert.Equal(t, []string{"10.1000/x"}, got.ReferencedDOIs)
	assert.Equal(t, "fake+s2", got.Registry)
	assert.Equal(t, "Title of 10.1000/a", got.Title)
	assert.Equal(t, int32(1), meta.calls.Load())
	assert.Equal(t, int32(1), s2.calls.Load())
	assert.Equal(t, int32(0), pdfs.calls.Load(), "augmenters are not asked once a reference list is found")
}

type statusRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (s *statusRecorder) LookupDone(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts == nil {
		s.counts = map[string]int{}
	}
	s.counts[status]++
}

func (s *statusRecorder) snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]int{}
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}
