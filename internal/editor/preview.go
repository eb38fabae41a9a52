package editor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cvforge/internal/document"
	"cvforge/internal/engine"
	"cvforge/internal/metrics"
)

// DefaultPreviewDebounce 是编辑停顿后到重渲染预览的等待窗口。
const DefaultPreviewDebounce = time.Second

// renderer is the slice of the engine client the preview needs.
type renderer interface {
	Generate(ctx context.Context, doc *document.Document, lang, token string) ([]byte, error)
}

// Artifact 是一次渲染产物的引用计数句柄。Preview 自己持有一份引用，
// 消费者每次通过 Preview.Artifact() 再取得一份，读完必须 Release。
// 字节只在最后一份引用释放后回收，持有中的句柄不会被新渲染作废。
type Artifact struct {
	mu   sync.Mutex
	data []byte
	refs int
}

func newArtifact(data []byte) *Artifact {
	return &Artifact{data: data, refs: 1}
}

// Bytes returns the rendered PDF, or nil once the last reference has been
// released. Callers must not modify it.
func (a *Artifact) Bytes() []byte {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data
}

// Release drops one reference. The bytes are freed only when the last
// holder lets go; calls on an already drained handle are no-ops.
func (a *Artifact) Release() {
	if a == nil {
		return
	}
	a.mu.Lock()
	if a.refs > 0 {
		a.refs--
		if a.refs == 0 {
			a.data = nil
		}
	}
	a.mu.Unlock()
}

func (a *Artifact) retain() *Artifact {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	a.refs++
	a.mu.Unlock()
	return a
}

// PreviewState 是预览管线对外可见的状态快照。
type PreviewState struct {
	HasArtifact bool
	Loading     bool
	Error       string
}

// Preview 持续把文档状态翻译为渲染产物：首次出现有效内容立即渲染，
// 之后的编辑走去抖窗口；序列化内容未变化则不重渲染。
//
// 并发纪律：任意时刻至多一个在途渲染请求。发起新请求前先 cancel
// 旧请求；被取代请求的 abort 静默处理（不进错误态、不应用结果），
// 真实失败写入错误消息但保留旧产物。旧句柄只在新句柄装好之后释放。
type Preview struct {
	store    *Store
	engine   renderer
	logger   *slog.Logger
	debounce time.Duration
	lang     func() string
	token    func() string
	onUpdate func(PreviewState)

	mu            sync.Mutex
	artifact      *Artifact
	loading       bool
	errMsg        string
	lastRequested []byte
	hadContent    bool
	cancelRender  context.CancelFunc
	seq           uint64
}

// NewPreview 构造预览控制器。debounce <= 0 时用 DefaultPreviewDebounce；
// onUpdate 在每次可见状态变化后（渲染完成、失败、开始加载）被调用，
// 可为 nil。
func NewPreview(store *Store, eng renderer, logger *slog.Logger, debounce time.Duration, lang, token func() string, onUpdate func(PreviewState)) *Preview {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultPreviewDebounce
	}
	if lang == nil {
		lang = func() string { return "fr" }
	}
	if token == nil {
		token = func() string { return "" }
	}
	if onUpdate == nil {
		onUpdate = func(PreviewState) {}
	}
	return &Preview{
		store:    store,
		engine:   eng,
		logger:   logger,
		debounce: debounce,
		lang:     lang,
		token:    token,
		onUpdate: onUpdate,
	}
}

// State returns the current observable snapshot.
func (p *Preview) State() PreviewState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PreviewState{
		HasArtifact: p.artifact != nil,
		Loading:     p.loading,
		Error:       p.errMsg,
	}
}

// Artifact returns a retained handle on the current artifact, or nil before
// the first successful render. The caller must Release the handle when done;
// it stays readable even if a newer render lands in the meantime.
func (p *Preview) Artifact() *Artifact {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.artifact.retain()
}

// SetDebounce 调整后续编辑的去抖窗口，对在途计时不生效。
func (p *Preview) SetDebounce(d time.Duration) {
	if d <= 0 {
		d = DefaultPreviewDebounce
	}
	p.mu.Lock()
	p.debounce = d
	p.mu.Unlock()
}

func (p *Preview) debounceWindow() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.debounce
}

// Run blocks, re-rendering on document changes until ctx is cancelled.
// Teardown is unconditional: in-flight work is aborted and the preview's
// reference on the current artifact dropped regardless of how the last
// render went.
func (p *Preview) Run(ctx context.Context) {
	defer p.teardown()

	watch := p.store.WatchDocument()

	timer := time.NewTimer(p.debounceWindow())
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	// A document that already has content at startup (e.g. restored from
	// a saved résumé) counts as the first content transition.
	p.maybeRender(ctx, true)

	for {
		select {
		case <-ctx.Done():
			return

		case <-watch:
			immediate := p.firstContent()
			if immediate {
				if armed && !timer.Stop() {
					<-timer.C
				}
				armed = false
				p.maybeRender(ctx, false)
				continue
			}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(p.debounceWindow())
			armed = true

		case <-timer.C:
			armed = false
			p.maybeRender(ctx, false)
		}
	}
}

// firstContent reports whether this change is the document's first
// transition from empty to meaningful content (renders bypass the debounce
// exactly once, e.g. right after an import lands).
func (p *Preview) firstContent() bool {
	doc := p.store.Document()
	if !doc.HasContent() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hadContent {
		return false
	}
	p.hadContent = true
	return true
}

// maybeRender issues a render unless the serialized document is identical
// to the last requested snapshot.
func (p *Preview) maybeRender(ctx context.Context, initial bool) {
	doc := p.store.Document()
	if !doc.HasContent() {
		return
	}
	if initial {
		p.mu.Lock()
		p.hadContent = true
		p.mu.Unlock()
	}

	snapshot, err := json.Marshal(doc)
	if err != nil {
		p.logger.Error("marshal document snapshot failed", slog.Any("error", err))
		return
	}

	p.mu.Lock()
	if bytes.Equal(snapshot, p.lastRequested) {
		p.mu.Unlock()
		return
	}
	p.lastRequested = snapshot

	// 先中止旧请求再登记新请求：至多一个在途渲染。
	if p.cancelRender != nil {
		p.cancelRender()
	}
	renderCtx, cancel := context.WithCancel(ctx)
	p.cancelRender = cancel
	p.seq++
	seq := p.seq
	p.loading = true
	p.mu.Unlock()
	p.onUpdate(p.State())

	go func() {
		pdf, err := p.engine.Generate(renderCtx, doc, p.lang(), p.token())
		cancel()

		p.mu.Lock()
		if seq != p.seq {
			// Superseded while in flight; its outcome is void either way.
			p.mu.Unlock()
			return
		}
		p.cancelRender = nil
		p.loading = false

		switch {
		case err == nil:
			old := p.artifact
			p.artifact = newArtifact(pdf)
			p.errMsg = ""
			// Drop our reference only; consumers still reading keep it alive.
			old.Release()
			metrics.ObservePreviewRender(metrics.OutcomeSuccess)
		case engine.IsAbort(err):
			// Benign: a newer edit superseded this render.
			metrics.ObservePreviewRender(metrics.OutcomeAbort)
		default:
			p.errMsg = previewErrorMessage(err)
			p.logger.Warn("preview render failed", slog.Any("error", err))
			metrics.ObservePreviewRender(metrics.OutcomeFailure)
		}
		p.mu.Unlock()
		p.onUpdate(p.State())
	}()
}

func (p *Preview) teardown() {
	p.mu.Lock()
	if p.cancelRender != nil {
		p.cancelRender()
		p.cancelRender = nil
	}
	artifact := p.artifact
	p.artifact = nil
	p.mu.Unlock()
	artifact.Release()
}

func previewErrorMessage(err error) string {
	if engine.IsTimeout(err) {
		return "Preview timed out, please retry"
	}
	var apiErr *engine.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return "Preview generation failed"
}
