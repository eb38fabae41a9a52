package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"cvforge/internal/database"
	"cvforge/internal/document"
	"cvforge/internal/engine"
	"cvforge/internal/errcode"
	"cvforge/internal/storage"
	"cvforge/internal/tasks"
)

const thumbnailPresignTTL = 7 * 24 * time.Hour

// ThumbnailTaskHandler 负责消费缩略图渲染任务。
type ThumbnailTaskHandler struct {
	db          *gorm.DB
	storage     *storage.Client
	redisClient *redis.Client
	engine      *engine.Client
	logger      *slog.Logger
	lang        string
}

// NewThumbnailTaskHandler 创建任务处理器。
func NewThumbnailTaskHandler(
	db *gorm.DB,
	storage *storage.Client,
	redisClient *redis.Client,
	eng *engine.Client,
	logger *slog.Logger,
	lang string,
) *ThumbnailTaskHandler {
	return &ThumbnailTaskHandler{
		db:          db,
		storage:     storage,
		redisClient: redisClient,
		engine:      eng,
		logger:      logger,
		lang:        lang,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *ThumbnailTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	log := h.logger

	var payload tasks.ThumbnailRenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("resume_id", int(payload.ResumeID)),
	)
	log.Info("Starting resume thumbnail task...")

	var resume database.Resume
	if err := h.db.WithContext(ctx).First(&resume, payload.ResumeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("resume not found, skipping task")
			return nil
		}
		log.Error("query resume failed", slog.Any("error", err))
		return err
	}

	log = log.With(slog.Uint64("user_id", uint64(resume.UserID)))

	defer func() {
		if retErr == nil {
			return
		}
		if !isFinalAsynqAttempt(ctx) {
			return
		}

		if err := h.db.WithContext(ctx).Model(&resume).Update("status", database.ThumbnailFailed).Error; err != nil {
			log.Error("mark resume thumbnail failed", slog.Any("error", err))
		}

		code := errcode.SystemError
		var apiErr *engine.APIError
		if errors.As(retErr, &apiErr) {
			code = errcode.EngineRefused
		}
		notify := ThumbnailNotifyMessage{
			Type:          "thumbnail",
			Status:        "error",
			ResumeID:      resume.ID,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}
		if err := h.publishThumbnailNotify(ctx, resume.UserID, notify); err != nil {
			log.Error("publish thumbnail error notification failed", slog.Any("error", err))
		}
	}()

	var doc document.Document
	if err := json.Unmarshal(resume.Content, &doc); err != nil {
		log.Error("decode resume content failed", slog.Any("error", err))
		return err
	}

	pdfBytes, err := h.engine.Generate(ctx, &doc, h.lang, "")
	if err != nil {
		log.Error("render thumbnail via engine failed", slog.Any("error", err))
		return err
	}

	objectName := fmt.Sprintf("thumbnails/resume/%d/preview.pdf", resume.ID)
	pdfReader := bytes.NewReader(pdfBytes)
	if _, err := h.storage.UploadFile(ctx, objectName, pdfReader, int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload thumbnail to minio failed", slog.Any("error", err))
		return err
	}

	presignedURL, err := h.storage.GeneratePresignedURL(ctx, objectName, thumbnailPresignTTL)
	if err != nil {
		log.Error("generate thumbnail presigned url failed", slog.Any("error", err))
		return err
	}

	update := map[string]any{
		"thumbnail_key": objectName,
		"thumbnail_url": presignedURL,
		"status":        database.ThumbnailReady,
	}
	if err := h.db.WithContext(ctx).Model(&resume).Updates(update).Error; err != nil {
		log.Error("update resume failed", slog.Any("error", err))
		return err
	}

	notify := ThumbnailNotifyMessage{
		Type:          "thumbnail",
		Status:        "completed",
		ResumeID:      resume.ID,
		CorrelationID: payload.CorrelationID,
		ThumbnailURL:  presignedURL,
		ErrorCode:     errcode.OK,
	}
	if err := h.publishThumbnailNotify(ctx, resume.UserID, notify); err != nil {
		log.Error("publish redis notification failed", slog.Any("error", err))
		return err
	}

	log.Info("Thumbnail task completed successfully.")
	return nil
}

func (h *ThumbnailTaskHandler) publishThumbnailNotify(ctx context.Context, userID uint, notify ThumbnailNotifyMessage) error {
	data, err := json.Marshal(notify)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := fmt.Sprintf("user_notify:%d", userID)
	if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
