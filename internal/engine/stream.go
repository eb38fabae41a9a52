package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cvforge/internal/document"
)

// ImportEventType 标识导入流中的事件种类。
type ImportEventType string

const (
	ImportEventStatus   ImportEventType = "status"
	ImportEventPersonal ImportEventType = "personal"
	ImportEventSection  ImportEventType = "section"
	ImportEventComplete ImportEventType = "complete"
	ImportEventError    ImportEventType = "error"
)

// ImportEvent 是导入流的单个增量事件；按 Type 只有对应字段有值。
type ImportEvent struct {
	Type     ImportEventType
	Status   string
	Personal *document.Personal
	Section  *document.Section
	Document *document.Document
	Detail   string
}

// ImportStream 上传 PDF 并消费引擎的 SSE 风格流式响应，把逐步抵达的
// 文档片段交给 emit。区块与完整文档在交付前都会重签 ID。
// 引擎发出 error 事件或流中断时返回错误；正常以 complete 结束返回 nil。
func (c *Client) ImportStream(ctx context.Context, filename string, file io.Reader, emit func(ImportEvent)) error {
	req, err := c.newUploadRequest(ctx, importStreamPath, filename, file)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request import stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var eventName string
	var data strings.Builder

	flush := func() error {
		if eventName == "" && data.Len() == 0 {
			return nil
		}
		ev, err := parseImportEvent(eventName, data.String())
		eventName = ""
		data.Reset()
		if err != nil {
			return err
		}
		if ev.Type == ImportEventError {
			emit(ev)
			return &APIError{Status: 0, Detail: ev.Detail}
		}
		emit(ev)
		return nil
	}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read import stream: %w", err)
	}
	// Trailing event without a final blank line.
	return flush()
}

func parseImportEvent(name, data string) (ImportEvent, error) {
	switch ImportEventType(name) {
	case ImportEventStatus:
		var body struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return ImportEvent{}, fmt.Errorf("decode status event: %w", err)
		}
		status := body.Status
		if status == "" {
			status = body.Message
		}
		return ImportEvent{Type: ImportEventStatus, Status: status}, nil

	case ImportEventPersonal:
		var personal document.Personal
		if err := json.Unmarshal([]byte(data), &personal); err != nil {
			return ImportEvent{}, fmt.Errorf("decode personal event: %w", err)
		}
		return ImportEvent{Type: ImportEventPersonal, Personal: &personal}, nil

	case ImportEventSection:
		var section document.Section
		if err := json.Unmarshal([]byte(data), &section); err != nil {
			return ImportEvent{}, fmt.Errorf("decode section event: %w", err)
		}
		section.ID = freshSectionID()
		return ImportEvent{Type: ImportEventSection, Section: &section}, nil

	case ImportEventComplete:
		var doc document.Document
		if err := json.Unmarshal([]byte(data), &doc); err != nil {
			return ImportEvent{}, fmt.Errorf("decode complete event: %w", err)
		}
		ReassignSectionIDs(&doc)
		return ImportEvent{Type: ImportEventComplete, Document: &doc}, nil

	case ImportEventError:
		var body struct {
			Detail string `json:"detail"`
		}
		detail := genericFailureDetail
		if err := json.Unmarshal([]byte(data), &body); err == nil && strings.TrimSpace(body.Detail) != "" {
			detail = strings.TrimSpace(body.Detail)
		}
		return ImportEvent{Type: ImportEventError, Detail: detail}, nil

	default:
		return ImportEvent{}, fmt.Errorf("unknown import event %q", name)
	}
}
