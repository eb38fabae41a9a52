package editor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cvforge/internal/document"
	"cvforge/internal/engine"
	"cvforge/internal/metrics"
)

// DefaultAutoSizeDebounce 是内容稳定后到发起推荐请求的等待窗口。
const DefaultAutoSizeDebounce = time.Second

// sizeRecommender is the slice of the engine client the controller needs.
type sizeRecommender interface {
	OptimalSize(ctx context.Context, doc *document.Document, lang string) (engine.OptimalSizeResult, error)
}

// AutoSize 观察文档内容（不含模板字段），在编辑停顿后向引擎请求
// 尺寸推荐，并按需改写文档的模板标识。
//
// 去抖约定：只有最后一次编辑的定时器存活；已经飞出的请求不会被
// 中止，但其结果只在它仍是最新一次请求时才会被应用（序号守卫，
// 防止乱序响应回写旧推荐）。失败仅记日志，推荐值与模板保持不动。
type AutoSize struct {
	store    *Store
	engine   sizeRecommender
	logger   *slog.Logger
	debounce time.Duration
	lang     func() string

	mu          sync.Mutex
	enabled     bool
	recommended document.Density
	inflight    int
	seq         uint64
}

// NewAutoSize 构造控制器；enabled 默认开启，推荐值默认 normal。
// lang 返回当次请求使用的两位语言码。
func NewAutoSize(store *Store, eng sizeRecommender, logger *slog.Logger, debounce time.Duration, lang func() string) *AutoSize {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = DefaultAutoSizeDebounce
	}
	if lang == nil {
		lang = func() string { return "fr" }
	}
	return &AutoSize{
		store:       store,
		engine:      eng,
		logger:      logger,
		debounce:    debounce,
		lang:        lang,
		enabled:     true,
		recommended: document.DensityNormal,
	}
}

// Enabled reports whether the controller issues requests.
func (a *AutoSize) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// SetEnabled toggles the controller. Disabling drops any pending debounce;
// re-enabling arms only on the next content change, never retroactively.
func (a *AutoSize) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
}

// Recommended returns the last recommendation received from the engine.
func (a *AutoSize) Recommended() document.Density {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recommended
}

// Loading reports whether a recommendation request is in flight.
func (a *AutoSize) Loading() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight > 0
}

// Run blocks, watching content changes until ctx is cancelled.
func (a *AutoSize) Run(ctx context.Context) {
	watch := a.store.WatchContent()

	timer := time.NewTimer(a.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			return

		case <-watch:
			if !a.Enabled() {
				continue
			}
			// 新编辑作废旧定时器：只有最后一次编辑的窗口存活。
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(a.debounce)
			armed = true

		case <-timer.C:
			armed = false
			if !a.Enabled() {
				continue
			}
			a.requestRecommendation(ctx)
		}
	}
}

func (a *AutoSize) requestRecommendation(ctx context.Context) {
	doc := a.store.Document()

	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.inflight++
	a.mu.Unlock()
	metrics.ObserveAutoSizeRequest()

	go func() {
		defer func() {
			a.mu.Lock()
			a.inflight--
			a.mu.Unlock()
		}()

		result, err := a.engine.OptimalSize(ctx, doc, a.lang())
		if err != nil {
			if engine.IsAbort(err) {
				return
			}
			// Auto-size is a background convenience: failures are logged
			// and otherwise swallowed; the document stays untouched.
			a.logger.Warn("optimal size request failed", slog.Any("error", err))
			return
		}

		a.mu.Lock()
		stale := seq != a.seq
		if !stale {
			a.recommended = result.OptimalSize
		}
		a.mu.Unlock()
		if stale {
			return
		}

		a.store.Update(func(cur *document.Document) *document.Document {
			if cur.TemplateID == result.TemplateID {
				return cur
			}
			next := cur.Clone()
			next.TemplateID = result.TemplateID
			return next
		})
	}()
}
