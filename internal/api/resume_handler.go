package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cvforge/internal/api/middleware"
	"cvforge/internal/auth"
	"cvforge/internal/database"
	"cvforge/internal/document"
	"cvforge/internal/tasks"
)

// 每个等级的保存上限；guest/user 上限可配置，premium 固定放宽。
const (
	maxResumesPerPremium  = 100
	maxJSONContentSize    = 100 * 1024
	thumbnailTaskMaxRetry = 5
)

// thumbnailStorage 是删除简历时需要的对象存储切面。
type thumbnailStorage interface {
	DeleteObject(ctx context.Context, objectKey string) error
}

// ResumeHandler 负责保存简历的增删改查与缩略图任务入队。
type ResumeHandler struct {
	db                 *gorm.DB
	asynqClient        *asynq.Client
	storage            thumbnailStorage
	maxResumesPerGuest int
	maxResumesPerUser  int
}

// NewResumeHandler 构造 ResumeHandler。storage 可为 nil（测试场景），
// 此时删除简历不清理缩略图对象。
func NewResumeHandler(db *gorm.DB, asynqClient *asynq.Client, store thumbnailStorage, maxResumesPerGuest, maxResumesPerUser int) *ResumeHandler {
	return &ResumeHandler{
		db:                 db,
		asynqClient:        asynqClient,
		storage:            store,
		maxResumesPerGuest: maxResumesPerGuest,
		maxResumesPerUser:  maxResumesPerUser,
	}
}

var errInvalidResumeID = errors.New("invalid resume id")

type saveResumeRequest struct {
	Title   string         `json:"title" binding:"required"`
	Content datatypes.JSON `json:"content" binding:"required"`
}

type resumeListItem struct {
	ID           uint      `json:"id"`
	Title        string    `json:"title"`
	TemplateID   string    `json:"template_id"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Status       string    `json:"status,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type resumeResponse struct {
	ID           uint           `json:"id"`
	Title        string         `json:"title"`
	Content      datatypes.JSON `json:"content"`
	TemplateID   string         `json:"template_id"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Status       string         `json:"status,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// ListResumes 列出用户全部简历。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var resumes []database.Resume
	if err := h.db.WithContext(c.Request.Context()).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&resumes).Error; err != nil {
		Internal(c, "failed to list resumes")
		return
	}

	items := make([]resumeListItem, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, resumeListItem{
			ID:           r.ID,
			Title:        r.Title,
			TemplateID:   r.TemplateID,
			ThumbnailURL: r.ThumbnailURL,
			Status:       r.Status,
			CreatedAt:    r.CreatedAt,
			UpdatedAt:    r.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, items)
}

// CreateResume 保存一份新的简历，超过等级限额返回 429。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	var req saveResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	claims, _ := middleware.ClaimsFromContext(c)

	doc, ok := h.decodeContent(c, req.Content)
	if !ok {
		return
	}

	ctx := c.Request.Context()

	var count int64
	if err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		Internal(c, "failed to count resumes")
		return
	}

	if msg, limited := h.limitMessage(claims, count); limited {
		TooManyRequests(c, msg)
		return
	}

	resume := database.Resume{
		Title:      req.Title,
		Content:    req.Content,
		TemplateID: doc.TemplateID,
		UserID:     userID,
		Status:     database.ThumbnailPending,
	}

	if err := h.db.WithContext(ctx).Create(&resume).Error; err != nil {
		Internal(c, "failed to create resume")
		return
	}

	h.enqueueThumbnail(c, resume.ID)

	c.JSON(http.StatusCreated, newResumeResponse(resume))
}

// GetResume 返回指定简历。
func (h *ResumeHandler) GetResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	c.JSON(http.StatusOK, newResumeResponse(*resume))
}

// UpdateResume 覆盖指定简历并重新入队缩略图渲染。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	var req saveResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	doc, ok := h.decodeContent(c, req.Content)
	if !ok {
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	ctx := c.Request.Context()
	updates := map[string]any{
		"title":       req.Title,
		"content":     req.Content,
		"template_id": doc.TemplateID,
		"status":      database.ThumbnailPending,
	}
	if err := h.db.WithContext(ctx).Model(resume).Updates(updates).Error; err != nil {
		Internal(c, "failed to update resume")
		return
	}

	if err := h.db.WithContext(ctx).First(resume, resume.ID).Error; err != nil {
		Internal(c, "failed to reload resume")
		return
	}

	h.enqueueThumbnail(c, resume.ID)

	c.JSON(http.StatusOK, newResumeResponse(*resume))
}

// DeleteResume 删除指定简历。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resume, err := h.getResumeForUser(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.respondLookupError(c, err)
		return
	}

	if err := h.db.WithContext(c.Request.Context()).
		Delete(&database.Resume{}, resume.ID).Error; err != nil {
		Internal(c, "failed to delete resume")
		return
	}

	// 行删掉后清理 MinIO 里的缩略图对象；清理失败只记日志，
	// 删除本身已经成功。
	if h.storage != nil && resume.ThumbnailKey != "" {
		if err := h.storage.DeleteObject(c.Request.Context(), resume.ThumbnailKey); err != nil {
			middleware.LoggerFromContext(c).Warn("delete thumbnail object failed",
				slog.String("object_key", resume.ThumbnailKey),
				slog.Any("error", err),
			)
		}
	}

	c.Status(http.StatusNoContent)
}

// decodeContent 校验简历内容的大小与文档结构。
func (h *ResumeHandler) decodeContent(c *gin.Context, content datatypes.JSON) (*document.Document, bool) {
	if len(content) > maxJSONContentSize {
		Error(c, http.StatusRequestEntityTooLarge, "resume content too large")
		return nil, false
	}
	var doc document.Document
	if err := json.Unmarshal(content, &doc); err != nil {
		BadRequest(c, "invalid resume content")
		return nil, false
	}
	if doc.TemplateID == "" {
		doc.TemplateID = document.DefaultTemplateID
	}
	return &doc, true
}

// limitMessage 按等级返回保存限额提示；guest 区别于普通用户的提示语
// 与原有前端约定保持一致。
func (h *ResumeHandler) limitMessage(claims *auth.TokenClaims, count int64) (string, bool) {
	isGuest := claims != nil && claims.IsGuest
	isPremium := claims != nil && claims.IsPremium

	switch {
	case isGuest:
		if count < int64(h.maxResumesPerGuest) {
			return "", false
		}
		return fmt.Sprintf(
			"Guest accounts are limited to %d resume. Create a free account to save more resumes.",
			h.maxResumesPerGuest,
		), true
	case isPremium:
		if count < maxResumesPerPremium {
			return "", false
		}
		return fmt.Sprintf("Maximum number of resumes reached (%d).", maxResumesPerPremium), true
	default:
		if count < int64(h.maxResumesPerUser) {
			return "", false
		}
		return fmt.Sprintf(
			"Maximum number of resumes reached (%d). Upgrade to Premium to save more resumes.",
			h.maxResumesPerUser,
		), true
	}
}

func (h *ResumeHandler) enqueueThumbnail(c *gin.Context, resumeID uint) {
	if h.asynqClient == nil {
		return
	}
	correlationID := middleware.GetCorrelationID(c)
	task, err := tasks.NewThumbnailRenderTask(resumeID, correlationID)
	if err != nil {
		middleware.LoggerFromContext(c).Error("create thumbnail task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(thumbnailTaskMaxRetry)); err != nil {
		// 缩略图是锦上添花，入队失败不影响保存结果。
		middleware.LoggerFromContext(c).Warn("enqueue thumbnail task failed", slog.Any("error", err))
	}
}

func (h *ResumeHandler) respondLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errInvalidResumeID):
		BadRequest(c, "invalid resume id")
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "resume not found")
	default:
		Internal(c, "failed to query resume")
	}
}

func (h *ResumeHandler) getResumeForUser(ctx context.Context, idParam string, userID uint) (*database.Resume, error) {
	resumeID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		return nil, errInvalidResumeID
	}

	var resume database.Resume
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(resumeID), userID).
		First(&resume).Error; err != nil {
		return nil, err
	}

	return &resume, nil
}

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func newResumeResponse(resume database.Resume) resumeResponse {
	return resumeResponse{
		ID:           resume.ID,
		Title:        resume.Title,
		Content:      resume.Content,
		TemplateID:   resume.TemplateID,
		ThumbnailURL: resume.ThumbnailURL,
		Status:       resume.Status,
		CreatedAt:    resume.CreatedAt,
		UpdatedAt:    resume.UpdatedAt,
	}
}
