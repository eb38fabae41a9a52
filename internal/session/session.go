package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cvforge/internal/editor"
)

// Session 是某个用户的服务端编辑会话：持有文档状态与两个去抖控制器，
// 控制器在会话自己的 goroutine 里运行，直到 Close。
type Session struct {
	UserID   uint
	Store    *editor.Store
	AutoSize *editor.AutoSize
	Preview  *editor.Preview
	Exporter *editor.Exporter

	mu    sync.Mutex
	lang  string
	token string

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Lang returns the session's render language.
func (s *Session) Lang() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lang
}

// SetLang 更新渲染语言，对下一次渲染生效。
func (s *Session) SetLang(lang string) {
	s.mu.Lock()
	s.lang = lang
	s.mu.Unlock()
}

// SetToken 记录最近一次请求携带的访问令牌，供后台渲染透传给引擎。
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Session) accessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Close 中止在途渲染并释放当前预览产物。幂等。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// watchTemplate 把模板变化（自动排版结果或手动切换）发布到通知通道。
func (s *Session) watchTemplate(ctx context.Context, logger *slog.Logger, publish func(ctx context.Context, msg any)) {
	watch := s.Store.WatchDocument()
	last := s.Store.Document().TemplateID

	for {
		select {
		case <-ctx.Done():
			return
		case <-watch:
			current := s.Store.Document().TemplateID
			if current == last {
				continue
			}
			last = current
			msg := autoSizeNotifyMessage{
				Type:        "autosize",
				TemplateID:  current,
				Recommended: string(s.AutoSize.Recommended()),
				Enabled:     s.AutoSize.Enabled(),
			}
			publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			publish(publishCtx, msg)
			cancel()
			logger.Debug("template change published", slog.String("template_id", current))
		}
	}
}

type autoSizeNotifyMessage struct {
	Type        string `json:"type"`
	TemplateID  string `json:"template_id"`
	Recommended string `json:"recommended"`
	Enabled     bool   `json:"enabled"`
}

type previewNotifyMessage struct {
	Type        string `json:"type"`
	HasArtifact bool   `json:"has_artifact"`
	Loading     bool   `json:"loading"`
	Error       string `json:"error,omitempty"`
}
