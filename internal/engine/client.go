package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"cvforge/internal/document"
)

const (
	generatePath     = "generate"
	optimalSizePath  = "optimal-size"
	importPath       = "import"
	importStreamPath = "import-stream"

	// DefaultTimeout caps every engine round trip, independent of any
	// debounce timers upstream.
	DefaultTimeout = 15 * time.Second

	maxErrorBody = 8 * 1024
)

// Client 封装对外部排版引擎的 HTTP 调用：渲染、最优尺寸推荐与导入。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 构造引擎客户端。timeout <= 0 时使用 DefaultTimeout。
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// renderPayload 是引擎各端点共用的请求体：序列化文档加两位语言码。
type renderPayload struct {
	*document.Document
	Lang string `json:"lang"`
}

// Generate 将文档原样交给引擎渲染，返回 PDF 字节。
// token 非空时以 Bearer 方式附带；429 映射为 *QuotaError。
func (c *Client) Generate(ctx context.Context, doc *document.Document, lang, token string) ([]byte, error) {
	body, err := json.Marshal(renderPayload{Document: doc, Lang: lang})
	if err != nil {
		return nil, fmt.Errorf("marshal render payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(generatePath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request pdf generation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp)
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read pdf body: %w", err)
	}
	return pdf, nil
}

// OptimalSizeResult 是引擎对内容密度的推荐结果。
type OptimalSizeResult struct {
	OptimalSize document.Density `json:"optimal_size"`
	TemplateID  string           `json:"template_id"`
}

// OptimalSize 请求引擎推荐尺寸档位。文档模板先归一到基名，
// 避免已有的尺寸后缀影响推荐。
func (c *Client) OptimalSize(ctx context.Context, doc *document.Document, lang string) (OptimalSizeResult, error) {
	normalized := doc.Clone()
	normalized.TemplateID = document.BaseTemplate(normalized.TemplateID)

	body, err := json.Marshal(renderPayload{Document: normalized, Lang: lang})
	if err != nil {
		return OptimalSizeResult{}, fmt.Errorf("marshal optimal-size payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(optimalSizePath), bytes.NewReader(body))
	if err != nil {
		return OptimalSizeResult{}, fmt.Errorf("build optimal-size request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return OptimalSizeResult{}, fmt.Errorf("request optimal size: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return OptimalSizeResult{}, c.errorFromResponse(resp)
	}

	var result OptimalSizeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return OptimalSizeResult{}, fmt.Errorf("decode optimal-size response: %w", err)
	}
	if !result.OptimalSize.Valid() {
		return OptimalSizeResult{}, fmt.Errorf("invalid optimal size %q", result.OptimalSize)
	}
	return result, nil
}

// Import 上传 PDF 并取回结构化文档。返回前校验 JSON Schema，
// 并为所有区块签发新 ID：导入来源的 ID 一律不可信。
func (c *Client) Import(ctx context.Context, filename string, file io.Reader) (*document.Document, error) {
	req, err := c.newUploadRequest(ctx, importPath, filename, file)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request import: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.errorFromResponse(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read import response: %w", err)
	}

	if err := ValidateDocumentJSON(raw); err != nil {
		return nil, fmt.Errorf("imported document rejected: %w", err)
	}

	var doc document.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode imported document: %w", err)
	}
	ReassignSectionIDs(&doc)
	return &doc, nil
}

func (c *Client) newUploadRequest(ctx context.Context, path, filename string, file io.Reader) (*http.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

func (c *Client) url(path string) string {
	return c.baseURL + "/" + strings.TrimPrefix(path, "/")
}

// errorFromResponse maps a non-2xx response to the error taxonomy. A missing
// or malformed JSON body falls back to a generic detail instead of surfacing
// a parse error.
func (c *Client) errorFromResponse(resp *http.Response) error {
	detail := genericFailureDetail
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil {
		var body struct {
			Detail string `json:"detail"`
		}
		if jsonErr := json.Unmarshal(raw, &body); jsonErr == nil && strings.TrimSpace(body.Detail) != "" {
			detail = strings.TrimSpace(body.Detail)
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return &QuotaError{Detail: detail}
	}
	return &APIError{Status: resp.StatusCode, Detail: detail}
}
