package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"cvforge/internal/config"
	"cvforge/internal/editor"
	"cvforge/internal/engine"
)

// Manager 按用户惰性创建并持有编辑会话。
type Manager struct {
	engine           *engine.Client
	redisClient      *redis.Client
	logger           *slog.Logger
	previewDebounce  time.Duration
	autoSizeDebounce time.Duration
	defaultLang      string

	mu       sync.Mutex
	sessions map[uint]*Session
}

// NewManager 构造会话管理器。
func NewManager(eng *engine.Client, redisClient *redis.Client, logger *slog.Logger, cfg config.EditorConfig) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		engine:           eng,
		redisClient:      redisClient,
		logger:           logger,
		previewDebounce:  cfg.PreviewDebounce(),
		autoSizeDebounce: cfg.AutoSizeDebounce(),
		defaultLang:      cfg.DefaultLang,
		sessions:         make(map[uint]*Session),
	}
}

// Get 返回用户的会话，不存在则创建并启动其控制器。
func (m *Manager) Get(userID uint) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}

	s := m.start(userID)
	m.sessions[userID] = s
	m.logger.Info("editing session created", slog.Uint64("user_id", uint64(userID)))
	return s
}

// Peek 返回用户已有的会话，不会隐式创建。
func (m *Manager) Peek(userID uint) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Close 关闭并移除某个用户的会话。
func (m *Manager) Close(userID uint) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if ok {
		s.Close()
		m.logger.Info("editing session closed", slog.Uint64("user_id", uint64(userID)))
	}
}

// CloseAll 关闭全部会话，用于进程退出。
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[uint]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (m *Manager) start(userID uint) *Session {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		UserID: userID,
		lang:   m.defaultLang,
		cancel: cancel,
	}
	logger := m.logger.With(slog.Uint64("user_id", uint64(userID)))

	s.Store = editor.NewStore(nil)
	s.AutoSize = editor.NewAutoSize(s.Store, m.engine, logger, m.autoSizeDebounce, s.Lang)
	s.Preview = editor.NewPreview(s.Store, m.engine, logger, m.previewDebounce, s.Lang, s.accessToken, func(state editor.PreviewState) {
		m.publishPreview(userID, state)
	})
	s.Exporter = editor.NewExporter(m.engine, logger, nil)

	go s.AutoSize.Run(ctx)
	go s.Preview.Run(ctx)
	go s.watchTemplate(ctx, logger, func(publishCtx context.Context, msg any) {
		m.publish(publishCtx, userID, msg)
	})

	return s
}

func (m *Manager) publishPreview(userID uint, state editor.PreviewState) {
	msg := previewNotifyMessage{
		Type:        "preview",
		HasArtifact: state.HasArtifact,
		Loading:     state.Loading,
		Error:       state.Error,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.publish(ctx, userID, msg)
}

func (m *Manager) publish(ctx context.Context, userID uint, msg any) {
	if m.redisClient == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		m.logger.Error("marshal notify payload failed", slog.Any("error", err))
		return
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := m.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		m.logger.Warn("publish session notification failed",
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
}
