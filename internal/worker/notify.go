package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// type 字段标识事件类别，与会话侧的 preview/autosize 消息同构；
// 其余字段名与前端解析保持一致。
type ThumbnailNotifyMessage struct {
	Type          string `json:"type"`
	Status        string `json:"status"`
	ResumeID      uint   `json:"resume_id"`
	CorrelationID string `json:"correlation_id"`
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
	ErrorCode     int    `json:"error_code"`
	ErrorMessage  string `json:"error_message"`
}
