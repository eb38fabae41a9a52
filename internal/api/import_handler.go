package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"cvforge/internal/engine"
)

// ImportHandler 负责 PDF 简历导入：病毒扫描后交给排版引擎解析。
type ImportHandler struct {
	engine         *engine.Client
	redisClient    *redis.Client
	logger         *slog.Logger
	clamdAddr      string
	importsPerHour int
}

// NewImportHandler 构造 ImportHandler。
func NewImportHandler(eng *engine.Client, redisClient *redis.Client, logger *slog.Logger, clamdAddr string, importsPerHour int) *ImportHandler {
	return &ImportHandler{
		engine:         eng,
		redisClient:    redisClient,
		logger:         logger,
		clamdAddr:      clamdAddr,
		importsPerHour: importsPerHour,
	}
}

// Import 解析上传的 PDF 并返回带新分区 ID 的文档。
func (h *ImportHandler) Import(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, ok := h.acceptUpload(c, userID)
	if !ok {
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	doc, err := h.engine.Import(c.Request.Context(), file.Filename, reader)
	if err != nil {
		h.respondEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, doc)
}

// ImportStream 以 SSE 把引擎的流式导入事件转发给客户端。
func (h *ImportHandler) ImportStream(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	file, ok := h.acceptUpload(c, userID)
	if !ok {
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Writer.Flush()

	emit := func(ev engine.ImportEvent) {
		writeSSEEvent(c, ev)
	}

	if err := h.engine.ImportStream(c.Request.Context(), file.Filename, reader, emit); err != nil {
		// error 事件已由 emit 转发；其余失败补发一个终止事件。
		var apiErr *engine.APIError
		if !errors.As(err, &apiErr) || apiErr.Status != 0 {
			writeSSEEvent(c, engine.ImportEvent{
				Type:   engine.ImportEventError,
				Detail: "Import failed",
			})
		}
		h.logger.Warn("import stream failed", slog.Any("error", err))
	}
}

// acceptUpload 做频控、取文件并执行 clamd 扫描；失败时已写响应。
func (h *ImportHandler) acceptUpload(c *gin.Context, userID uint) (*multipart.FileHeader, bool) {
	if h.importsPerHour > 0 && h.redisClient != nil {
		count, err := bumpImportCount(c.Request.Context(), h.redisClient, userID)
		if err != nil {
			h.logger.Warn("import rate counter failed", slog.Any("error", err))
		} else if count > int64(h.importsPerHour) {
			TooManyRequests(c, "import limit reached, try again later")
			return nil, false
		}
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return nil, false
	}
	if !strings.EqualFold(strings.TrimSpace(file.Header.Get("Content-Type")), "application/pdf") &&
		!strings.HasSuffix(strings.ToLower(file.Filename), ".pdf") {
		BadRequest(c, "only PDF files are accepted")
		return nil, false
	}

	if h.clamdAddr != "" {
		if ok := h.scanUpload(c, file); !ok {
			return nil, false
		}
	}

	return file, true
}

func (h *ImportHandler) scanUpload(c *gin.Context, file *multipart.FileHeader) bool {
	clamdClient := clamd.NewClamd(h.clamdAddr)

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return false
	}

	abortChan := make(chan bool)
	scanChan, err := clamdClient.ScanStream(reader, abortChan)
	reader.Close()
	if err != nil {
		h.logger.Error("scan file", slog.Any("error", err))
		Internal(c, "failed to scan file")
		return false
	}
	defer close(abortChan)

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			BadRequest(c, "malicious file detected")
			return false
		}
	}
	return true
}

func (h *ImportHandler) respondEngineError(c *gin.Context, err error) {
	var quotaErr *engine.QuotaError
	var apiErr *engine.APIError
	switch {
	case errors.As(err, &quotaErr):
		TooManyRequests(c, quotaErr.Detail)
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		Error(c, apiErr.Status, apiErr.Detail)
	case engine.IsTimeout(err):
		Error(c, http.StatusGatewayTimeout, "import timed out")
	default:
		h.logger.Error("import via engine failed", slog.Any("error", err))
		Error(c, http.StatusBadGateway, "import failed")
	}
}

// writeSSEEvent 把单个导入事件编码为 SSE 帧写出。
func writeSSEEvent(c *gin.Context, ev engine.ImportEvent) {
	var payload any
	switch ev.Type {
	case engine.ImportEventStatus:
		payload = gin.H{"status": ev.Status}
	case engine.ImportEventPersonal:
		payload = ev.Personal
	case engine.ImportEventSection:
		payload = ev.Section
	case engine.ImportEventComplete:
		payload = ev.Document
	case engine.ImportEventError:
		payload = gin.H{"detail": ev.Detail}
	default:
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Type, data)
	c.Writer.Flush()
}
