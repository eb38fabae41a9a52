package engine

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"cvforge/internal/document"
)

// 导入响应的结构校验：引擎侧由 LLM 驱动，输出不可盲信。
const documentSchemaJSON = `{
	"type": "object",
	"required": ["personal", "sections"],
	"properties": {
		"personal": {
			"type": "object",
			"properties": {
				"name": {"type": "string"},
				"title": {"type": "string"},
				"location": {"type": "string"},
				"email": {"type": "string"},
				"phone": {"type": "string"},
				"github": {"type": "string"},
				"github_url": {"type": "string"}
			}
		},
		"sections": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["type", "title"],
				"properties": {
					"id": {"type": "string"},
					"type": {
						"type": "string",
						"enum": ["summary", "education", "experiences", "projects", "skills", "leadership", "languages", "custom"]
					},
					"title": {"type": "string"},
					"isVisible": {"type": "boolean"},
					"items": {}
				}
			}
		},
		"template_id": {"type": "string"}
	}
}`

var (
	documentSchemaOnce sync.Once
	documentSchema     *gojsonschema.Schema
	documentSchemaErr  error
)

// ValidateDocumentJSON checks raw against the résumé document schema.
func ValidateDocumentJSON(raw []byte) error {
	documentSchemaOnce.Do(func() {
		documentSchema, documentSchemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(documentSchemaJSON))
	})
	if documentSchemaErr != nil {
		return fmt.Errorf("compile document schema: %w", documentSchemaErr)
	}

	result, err := documentSchema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("document schema violations: %s", strings.Join(msgs, "; "))
}

// ReassignSectionIDs 为每个区块签发新的 UUID，丢弃导入来源携带的 ID。
func ReassignSectionIDs(doc *document.Document) {
	for i := range doc.Sections {
		doc.Sections[i].ID = freshSectionID()
	}
}

func freshSectionID() string {
	return uuid.NewString()
}
