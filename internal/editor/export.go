package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"cvforge/internal/document"
	"cvforge/internal/engine"
)

const exportFilenameSuffix = "_CV.pdf"

// QuotaExceededError 表示导出撞到下载限额；Guest 标识匿名账号,
// 以便前端给出不同的升级提示。
type QuotaExceededError struct {
	Guest  bool
	Detail string
}

func (e *QuotaExceededError) Error() string {
	if e.Guest {
		return "Guest download limit reached. Create a free account to get more downloads."
	}
	return "Monthly download limit reached. Upgrade to Premium to get more downloads."
}

// ExportResult 是一次成功导出的产物。
type ExportResult struct {
	Filename string
	PDF      []byte
}

// Exporter 执行用户显式触发的导出：同步、不去抖、不会被后续编辑取消。
type Exporter struct {
	engine         renderer
	logger         *slog.Logger
	onLimitReached func()

	mu      sync.Mutex
	loading bool
}

// NewExporter 构造导出器。onLimitReached 在限额错误时回调（可为 nil），
// 用于弹出升级引导之类的 UI 动作。
func NewExporter(eng renderer, logger *slog.Logger, onLimitReached func()) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		engine:         eng,
		logger:         logger,
		onLimitReached: onLimitReached,
	}
}

// Loading reports whether an export is in progress.
func (e *Exporter) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

// Export renders the document as-is and returns the PDF with its download
// filename. The loading flag is cleared on every path.
func (e *Exporter) Export(ctx context.Context, doc *document.Document, lang, token string) (ExportResult, error) {
	e.mu.Lock()
	e.loading = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.loading = false
		e.mu.Unlock()
	}()

	pdf, err := e.engine.Generate(ctx, doc, lang, token)
	if err != nil {
		var quota *engine.QuotaError
		if errors.As(err, &quota) {
			if e.onLimitReached != nil {
				e.onLimitReached()
			}
			// Audience detection by substring is the documented engine
			// contract; keep it until the engine grows a structured code.
			return ExportResult{}, &QuotaExceededError{
				Guest:  strings.Contains(quota.Detail, "Guest"),
				Detail: quota.Detail,
			}
		}
		e.logger.Warn("export failed", slog.Any("error", err))
		return ExportResult{}, fmt.Errorf("export pdf: %w", err)
	}

	return ExportResult{
		Filename: ExportFilename(doc.Personal.Name),
		PDF:      pdf,
	}, nil
}

// ExportFilename 根据姓名生成下载文件名：压缩空白为下划线并加
// _CV.pdf 后缀；无姓名时退回 CV.pdf。
func ExportFilename(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return "CV.pdf"
	}
	return strings.Join(fields, "_") + exportFilenameSuffix
}
