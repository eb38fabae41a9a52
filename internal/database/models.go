package database

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Resume 表示用户保存的简历文档。
// Content 保存完整的文档 JSON（个人信息、分区与模板选择）。
type Resume struct {
	gorm.Model
	Title        string         `gorm:"size:255"`
	Content      datatypes.JSON `gorm:"type:jsonb"`
	TemplateID   string         `gorm:"size:64"`
	UserID       uint           `gorm:"index"`
	ThumbnailKey string         `gorm:"size:512"`
	ThumbnailURL string         `gorm:"size:1024"`
	Status       string         `gorm:"size:32"`
}

// Thumbnail render states recorded on Resume.Status.
const (
	ThumbnailPending = "pending"
	ThumbnailReady   = "ready"
	ThumbnailFailed  = "failed"
)
