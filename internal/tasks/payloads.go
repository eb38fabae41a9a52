package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeThumbnailRender = "thumbnail:render"
)

// ThumbnailRenderPayload 描述渲染简历缩略图所需的最小信息。
type ThumbnailRenderPayload struct {
	ResumeID      uint   `json:"resume_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewThumbnailRenderTask 构造一个新的简历缩略图渲染任务。
func NewThumbnailRenderTask(id uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(ThumbnailRenderPayload{
		ResumeID:      id,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeThumbnailRender, payload), nil
}
