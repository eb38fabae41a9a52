package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cvforge/internal/api/middleware"
	"cvforge/internal/document"
	"cvforge/internal/editor"
	"cvforge/internal/engine"
	"cvforge/internal/session"
)

// SessionHandler 暴露服务端编辑会话：文档替换、设置、状态快照、
// 预览产物与同步导出。
type SessionHandler struct {
	sessions *session.Manager
}

// NewSessionHandler 构造 SessionHandler。
func NewSessionHandler(sessions *session.Manager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionStateResponse struct {
	TemplateID string             `json:"template_id"`
	Density    string             `json:"density"`
	AutoSize   autoSizeStateBody  `json:"autosize"`
	Preview    previewStateBody   `json:"preview"`
	Document   *document.Document `json:"document"`
}

type autoSizeStateBody struct {
	Enabled     bool   `json:"enabled"`
	Recommended string `json:"recommended"`
	Loading     bool   `json:"loading"`
}

type previewStateBody struct {
	HasArtifact bool   `json:"has_artifact"`
	Loading     bool   `json:"loading"`
	Error       string `json:"error,omitempty"`
}

func (h *SessionHandler) session(c *gin.Context) (*session.Session, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return nil, false
	}
	s := h.sessions.Get(userID)
	// 每个请求刷新令牌，后台渲染用最近一次看到的令牌访问引擎。
	s.SetToken(middleware.AccessTokenFromContext(c))
	return s, true
}

// PutDocument 用请求体整体替换会话文档，驱动自动排版与预览管线。
func (h *SessionHandler) PutDocument(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var doc document.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if doc.TemplateID == "" {
		doc.TemplateID = document.DefaultTemplateID
	}

	s.Store.Replace(&doc)
	c.JSON(http.StatusOK, h.stateSnapshot(s))
}

type sessionSettingsRequest struct {
	Lang              *string `json:"lang"`
	AutoSizeEnabled   *bool   `json:"auto_size_enabled"`
	PreviewDebounceMS *int    `json:"preview_debounce_ms"`
}

// PutSettings 更新会话设置：语言、自动排版开关、预览去抖窗口。
func (h *SessionHandler) PutSettings(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	var req sessionSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	// 先整体校验再应用，避免部分字段生效后才报 400。
	if req.Lang != nil && len(*req.Lang) != 2 {
		BadRequest(c, "lang must be a two-letter code")
		return
	}
	if req.PreviewDebounceMS != nil && *req.PreviewDebounceMS <= 0 {
		BadRequest(c, "preview debounce must be positive")
		return
	}

	if req.Lang != nil {
		s.SetLang(*req.Lang)
	}
	if req.AutoSizeEnabled != nil {
		s.AutoSize.SetEnabled(*req.AutoSizeEnabled)
	}
	if req.PreviewDebounceMS != nil {
		s.Preview.SetDebounce(time.Duration(*req.PreviewDebounceMS) * time.Millisecond)
	}

	c.JSON(http.StatusOK, h.stateSnapshot(s))
}

// GetState 返回会话状态快照。
func (h *SessionHandler) GetState(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.stateSnapshot(s))
}

// GetPreview 返回当前预览产物的 PDF 字节。
func (h *SessionHandler) GetPreview(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	artifact := s.Preview.Artifact()
	if artifact == nil {
		NotFound(c, "no preview available")
		return
	}
	// 持有引用直到响应写完，期间完成的渲染不会抽走字节。
	defer artifact.Release()
	c.Data(http.StatusOK, "application/pdf", artifact.Bytes())
}

// PostExport 同步导出当前文档为 PDF 并作为附件返回。
func (h *SessionHandler) PostExport(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}

	result, err := s.Exporter.Export(
		c.Request.Context(),
		s.Store.Document(),
		s.Lang(),
		middleware.AccessTokenFromContext(c),
	)
	if err != nil {
		var quotaErr *editor.QuotaExceededError
		var apiErr *engine.APIError
		switch {
		case errors.As(err, &quotaErr):
			TooManyRequests(c, quotaErr.Error())
		case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
			Error(c, apiErr.Status, apiErr.Detail)
		default:
			Error(c, http.StatusBadGateway, err.Error())
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, "application/pdf", result.PDF)
}

// DeleteSession 关闭会话并释放预览产物。
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	h.sessions.Close(userID)
	c.Status(http.StatusNoContent)
}

func (h *SessionHandler) stateSnapshot(s *session.Session) sessionStateResponse {
	doc := s.Store.Document()
	preview := s.Preview.State()
	return sessionStateResponse{
		TemplateID: doc.TemplateID,
		Density:    string(document.EstimateDensity(doc)),
		AutoSize: autoSizeStateBody{
			Enabled:     s.AutoSize.Enabled(),
			Recommended: string(s.AutoSize.Recommended()),
			Loading:     s.AutoSize.Loading(),
		},
		Preview: previewStateBody{
			HasArtifact: preview.HasArtifact,
			Loading:     preview.Loading,
			Error:       preview.Error,
		},
		Document: doc,
	}
}
