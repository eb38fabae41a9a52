package editor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"cvforge/internal/document"
	"cvforge/internal/engine"
)

type fakeRenderer struct {
	mu        sync.Mutex
	calls     int
	gateCall  int           // which call (1-based) should block on gate
	gate      chan struct{} // closed to unblock the gated call
	failCall  int           // which call should fail
	failErr   error
	lastLang  string
	lastToken string
}

func (f *fakeRenderer) Generate(ctx context.Context, doc *document.Document, lang, token string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.lastLang = lang
	f.lastToken = token
	gated := f.gateCall == n
	gate := f.gate
	failing := f.failCall == n
	failErr := f.failErr
	f.mu.Unlock()

	if gated {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-gate:
		}
	}
	if failing {
		return nil, failErr
	}
	return []byte(fmt.Sprintf("pdf-%d", n)), nil
}

func (f *fakeRenderer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// hasArtifact checks for a current artifact without holding a reference.
func hasArtifact(p *Preview) bool {
	a := p.Artifact()
	defer a.Release()
	return a != nil
}

// artifactPDF reads the current artifact bytes and releases the handle.
func artifactPDF(p *Preview) string {
	a := p.Artifact()
	defer a.Release()
	return string(a.Bytes())
}

func startPreview(t *testing.T, store *Store, rend renderer, debounce time.Duration) (*Preview, context.CancelFunc, chan struct{}) {
	t.Helper()
	p := NewPreview(store, rend, nil, debounce,
		func() string { return "en" },
		func() string { return "tok" },
		nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return p, cancel, done
}

func TestPreviewFirstContentRendersImmediately(t *testing.T) {
	store := NewStore(nil)
	rend := &fakeRenderer{}
	p, _, _ := startPreview(t, store, rend, 400*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	if rend.callCount() != 0 {
		t.Fatal("empty document must not render")
	}

	store.Replace(contentDocument())

	// Must land well inside the debounce window: the empty-to-content
	// transition bypasses it.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if hasArtifact(p) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !hasArtifact(p) {
		t.Fatal("first content transition did not render immediately")
	}
	if got := artifactPDF(p); got != "pdf-1" {
		t.Fatalf("artifact: got %q", got)
	}
}

func TestPreviewDebounceCollapsesEdits(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{}
	p, _, _ := startPreview(t, store, rend, 40*time.Millisecond)

	// Startup render for the already-meaningful document.
	waitFor(t, "initial render", func() bool { return rend.callCount() == 1 })

	for i := 0; i < 5; i++ {
		editPhone(store, "1")
		time.Sleep(5 * time.Millisecond)
	}

	waitFor(t, "debounced render", func() bool { return rend.callCount() == 2 })
	time.Sleep(120 * time.Millisecond)
	if got := rend.callCount(); got != 2 {
		t.Fatalf("renders: got %d want 2", got)
	}
	waitFor(t, "new artifact installed", func() bool {
		return artifactPDF(p) == "pdf-2"
	})
}

func TestPreviewIdenticalContentDoesNotRerender(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{}
	_, _, _ = startPreview(t, store, rend, 20*time.Millisecond)
	waitFor(t, "initial render", func() bool { return rend.callCount() == 1 })

	// A fresh copy with identical serialized content must be a no-op.
	store.Replace(store.Document().Clone())
	time.Sleep(120 * time.Millisecond)
	if got := rend.callCount(); got != 1 {
		t.Fatalf("structurally equal document re-rendered: %d calls", got)
	}
}

func TestPreviewAbortIsSilent(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{gateCall: 1, gate: make(chan struct{})}
	p, _, _ := startPreview(t, store, rend, 20*time.Millisecond)

	// First render hangs; a new edit must abort it and issue a fresh one.
	waitFor(t, "first render issued", func() bool { return rend.callCount() == 1 })
	editPhone(store, "1")
	waitFor(t, "superseding render", func() bool { return rend.callCount() == 2 })
	waitFor(t, "second render applied", func() bool {
		return artifactPDF(p) == "pdf-2"
	})

	state := p.State()
	if state.Error != "" {
		t.Fatalf("abort must not surface an error, got %q", state.Error)
	}
	if state.Loading {
		t.Fatal("loading flag stuck after abort")
	}
}

func TestPreviewFailureKeepsPreviousArtifact(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{
		failCall: 2,
		failErr:  &engine.APIError{Status: 500, Detail: "compile error"},
	}
	p, _, _ := startPreview(t, store, rend, 20*time.Millisecond)
	waitFor(t, "initial render", func() bool { return rend.callCount() == 1 })
	waitFor(t, "artifact installed", func() bool { return hasArtifact(p) })

	editPhone(store, "1")
	waitFor(t, "failed render", func() bool { return rend.callCount() == 2 })
	waitFor(t, "error surfaced", func() bool { return p.State().Error != "" })

	if got := p.State().Error; got != "compile error" {
		t.Fatalf("error message: got %q", got)
	}
	if artifactPDF(p) != "pdf-1" {
		t.Fatal("previous artifact must stay visible under the error")
	}
}

func TestPreviewHeldArtifactSurvivesNewRender(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{}
	p, _, _ := startPreview(t, store, rend, 20*time.Millisecond)
	waitFor(t, "initial render", func() bool { return hasArtifact(p) })

	held := p.Artifact()
	editPhone(store, "1")
	waitFor(t, "superseding render installed", func() bool {
		return artifactPDF(p) == "pdf-2"
	})

	// A handle taken before the new render landed must keep its bytes
	// until its holder releases it.
	if got := string(held.Bytes()); got != "pdf-1" {
		t.Fatalf("held handle: got %q want %q", got, "pdf-1")
	}
	held.Release()
	if held.Bytes() != nil {
		t.Fatal("releasing the last reference must free the bytes")
	}
}

func TestPreviewTeardownReleasesArtifact(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{}
	p, cancel, done := startPreview(t, store, rend, 20*time.Millisecond)
	waitFor(t, "artifact installed", func() bool { return hasArtifact(p) })

	held := p.Artifact()
	cancel()
	<-done

	if hasArtifact(p) {
		t.Fatal("teardown must drop the artifact handle")
	}
	if got := string(held.Bytes()); got != "pdf-1" {
		t.Fatalf("teardown revoked a held handle: got %q", got)
	}
	held.Release()
	if held.Bytes() != nil {
		t.Fatal("last release must free the artifact resource")
	}
}

func TestPreviewLangAndTokenForwarded(t *testing.T) {
	store := NewStore(contentDocument())
	rend := &fakeRenderer{}
	_, _, _ = startPreview(t, store, rend, 20*time.Millisecond)
	waitFor(t, "render", func() bool { return rend.callCount() == 1 })

	rend.mu.Lock()
	defer rend.mu.Unlock()
	if rend.lastLang != "en" || rend.lastToken != "tok" {
		t.Fatalf("lang/token: got %q/%q", rend.lastLang, rend.lastToken)
	}
}
