package document

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Personal 表示简历头部的联系人信息。
type Personal struct {
	Name      string `json:"name"`
	Title     string `json:"title"`
	Location  string `json:"location"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Github    string `json:"github"`
	GithubURL string `json:"github_url"`
}

// SectionType enumerates the supported section kinds. The set is closed:
// every consumer switches exhaustively over it.
type SectionType string

const (
	SectionSummary     SectionType = "summary"
	SectionEducation   SectionType = "education"
	SectionExperiences SectionType = "experiences"
	SectionProjects    SectionType = "projects"
	SectionSkills      SectionType = "skills"
	SectionLeadership  SectionType = "leadership"
	SectionLanguages   SectionType = "languages"
	SectionCustom      SectionType = "custom"
)

// EducationItem 单条教育经历。
type EducationItem struct {
	School      string `json:"school"`
	Degree      string `json:"degree"`
	Dates       string `json:"dates"`
	Subtitle    string `json:"subtitle,omitempty"`
	Description string `json:"description,omitempty"`
}

// ExperienceItem 单条工作经历。
type ExperienceItem struct {
	Title      string   `json:"title"`
	Company    string   `json:"company"`
	Dates      string   `json:"dates"`
	Highlights []string `json:"highlights"`
}

// ProjectItem 单条项目经历。
type ProjectItem struct {
	Name       string   `json:"name"`
	Year       string   `json:"year"`
	Highlights []string `json:"highlights"`
}

// LeadershipItem 单条社团/领导力经历。
type LeadershipItem struct {
	Role       string   `json:"role"`
	Place      string   `json:"place,omitempty"`
	Dates      string   `json:"dates"`
	Highlights []string `json:"highlights"`
}

// CustomItem 自定义区块的条目。
type CustomItem struct {
	Title      string   `json:"title"`
	Subtitle   string   `json:"subtitle,omitempty"`
	Dates      string   `json:"dates,omitempty"`
	Highlights []string `json:"highlights"`
}

// Skills is the single-record skills payload.
type Skills struct {
	Languages string `json:"languages"`
	Tools     string `json:"tools"`
}

// SkillGroup is one entry of the categorised skills payload, the alternate
// schema some documents carry instead of the single Skills record.
type SkillGroup struct {
	ID       string `json:"id,omitempty"`
	Category string `json:"category"`
	Skills   string `json:"skills"`
}

// Section 表示简历中的一个可隐藏、可排序的内容区块。
// Items 的形态由 Type 决定；解码后仅与 Type 对应的字段非零。
type Section struct {
	ID        string      `json:"id"`
	Type      SectionType `json:"type"`
	Title     string      `json:"title"`
	IsVisible bool        `json:"isVisible"`

	// Exactly one of the following carries the payload, keyed by Type.
	Text        string           // summary, languages
	Education   []EducationItem  // education
	Experiences []ExperienceItem // experiences
	Projects    []ProjectItem    // projects
	Skills      *Skills          // skills (single-record schema)
	SkillGroups []SkillGroup     // skills (categorised schema)
	Leadership  []LeadershipItem // leadership
	Custom      []CustomItem     // custom
}

// Document 是完整的内存态简历：联系人信息、有序区块与模板标识。
type Document struct {
	Personal   Personal  `json:"personal"`
	Sections   []Section `json:"sections"`
	TemplateID string    `json:"template_id"`
}

// DefaultTemplateID is applied when a document carries no template.
const DefaultTemplateID = "harvard"

// HasContent reports whether the document is worth rendering at all:
// any of the headline personal fields is set, or at least one section exists.
func (d *Document) HasContent() bool {
	if d == nil {
		return false
	}
	if strings.TrimSpace(d.Personal.Name) != "" ||
		strings.TrimSpace(d.Personal.Title) != "" ||
		strings.TrimSpace(d.Personal.Email) != "" {
		return true
	}
	return len(d.Sections) > 0
}

// Clone returns a deep copy. Controllers never mutate a document in place;
// they copy, modify, then swap via the store.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{
		Personal:   d.Personal,
		TemplateID: d.TemplateID,
	}
	if d.Sections != nil {
		out.Sections = make([]Section, len(d.Sections))
		for i, s := range d.Sections {
			out.Sections[i] = s.clone()
		}
	}
	return out
}

func (s Section) clone() Section {
	out := s
	out.Education = append([]EducationItem(nil), s.Education...)
	out.Projects = append([]ProjectItem(nil), s.Projects...)
	out.SkillGroups = append([]SkillGroup(nil), s.SkillGroups...)
	if s.Skills != nil {
		sk := *s.Skills
		out.Skills = &sk
	}
	if s.Experiences != nil {
		out.Experiences = make([]ExperienceItem, len(s.Experiences))
		for i, it := range s.Experiences {
			it.Highlights = append([]string(nil), it.Highlights...)
			out.Experiences[i] = it
		}
	}
	if s.Leadership != nil {
		out.Leadership = make([]LeadershipItem, len(s.Leadership))
		for i, it := range s.Leadership {
			it.Highlights = append([]string(nil), it.Highlights...)
			out.Leadership[i] = it
		}
	}
	if s.Custom != nil {
		out.Custom = make([]CustomItem, len(s.Custom))
		for i, it := range s.Custom {
			it.Highlights = append([]string(nil), it.Highlights...)
			out.Custom[i] = it
		}
	}
	for i, it := range out.Projects {
		out.Projects[i].Highlights = append([]string(nil), it.Highlights...)
	}
	return out
}

// sectionEnvelope 是 Section 的线格式：items 字段按 Type 多态。
type sectionEnvelope struct {
	ID        string          `json:"id"`
	Type      SectionType     `json:"type"`
	Title     string          `json:"title"`
	IsVisible bool            `json:"isVisible"`
	Items     json.RawMessage `json:"items"`
}

// UnmarshalJSON decodes the polymorphic items payload according to the
// section type. Missing or null payloads decode to the zero value, never an
// error, so partially filled documents stay well-formed.
func (s *Section) UnmarshalJSON(data []byte) error {
	var env sectionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	*s = Section{
		ID:        env.ID,
		Type:      env.Type,
		Title:     env.Title,
		IsVisible: env.IsVisible,
	}

	raw := trimmedRaw(env.Items)
	if raw == nil {
		return nil
	}

	switch env.Type {
	case SectionSummary, SectionLanguages:
		if err := json.Unmarshal(raw, &s.Text); err != nil {
			return fmt.Errorf("decode %s items: %w", env.Type, err)
		}
	case SectionEducation:
		if err := json.Unmarshal(raw, &s.Education); err != nil {
			return fmt.Errorf("decode education items: %w", err)
		}
	case SectionExperiences:
		if err := json.Unmarshal(raw, &s.Experiences); err != nil {
			return fmt.Errorf("decode experiences items: %w", err)
		}
	case SectionProjects:
		if err := json.Unmarshal(raw, &s.Projects); err != nil {
			return fmt.Errorf("decode projects items: %w", err)
		}
	case SectionSkills:
		// Two schemas exist in the wild: a single {languages, tools} record
		// or a list of {category, skills} groups.
		if len(raw) > 0 && raw[0] == '[' {
			if err := json.Unmarshal(raw, &s.SkillGroups); err != nil {
				return fmt.Errorf("decode skill groups: %w", err)
			}
		} else {
			var sk Skills
			if err := json.Unmarshal(raw, &sk); err != nil {
				return fmt.Errorf("decode skills items: %w", err)
			}
			s.Skills = &sk
		}
	case SectionLeadership:
		if err := json.Unmarshal(raw, &s.Leadership); err != nil {
			return fmt.Errorf("decode leadership items: %w", err)
		}
	case SectionCustom:
		if err := json.Unmarshal(raw, &s.Custom); err != nil {
			return fmt.Errorf("decode custom items: %w", err)
		}
	default:
		return fmt.Errorf("unknown section type %q", env.Type)
	}
	return nil
}

// MarshalJSON re-encodes the section in its wire shape.
func (s Section) MarshalJSON() ([]byte, error) {
	env := sectionEnvelope{
		ID:        s.ID,
		Type:      s.Type,
		Title:     s.Title,
		IsVisible: s.IsVisible,
	}

	var payload any
	switch s.Type {
	case SectionSummary, SectionLanguages:
		payload = s.Text
	case SectionEducation:
		payload = emptyIfNil(s.Education)
	case SectionExperiences:
		payload = emptyIfNil(s.Experiences)
	case SectionProjects:
		payload = emptyIfNil(s.Projects)
	case SectionSkills:
		if s.SkillGroups != nil {
			payload = s.SkillGroups
		} else if s.Skills != nil {
			payload = s.Skills
		} else {
			payload = Skills{}
		}
	case SectionLeadership:
		payload = emptyIfNil(s.Leadership)
	case SectionCustom:
		payload = emptyIfNil(s.Custom)
	default:
		return nil, fmt.Errorf("unknown section type %q", s.Type)
	}

	items, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env.Items = items
	return json.Marshal(env)
}

func emptyIfNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func trimmedRaw(raw json.RawMessage) json.RawMessage {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.RawMessage(trimmed)
}
