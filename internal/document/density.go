package document

import (
	"strings"
	"unicode/utf8"
)

// Density 是粗粒度的内容密度分类，驱动模板的间距档位。
type Density string

const (
	DensityCompact Density = "compact"
	DensityNormal  Density = "normal"
	DensityLarge   Density = "large"
)

// Valid reports whether d is one of the three known buckets.
func (d Density) Valid() bool {
	switch d {
	case DensityCompact, DensityNormal, DensityLarge:
		return true
	}
	return false
}

// Scoring weights and thresholds. Empirically tuned against the template
// layouts; do not re-derive.
const (
	summaryCharsPerPoint = 100
	skillsCharsPerPoint  = 50

	educationItemPoints  = 2
	experienceItemPoints = 3
	projectItemPoints    = 2
	leadershipItemPoints = 2
	customItemPoints     = 2

	descriptionBonus = 1
	highlightPoints  = 0.5

	normalThreshold  = 12
	compactThreshold = 30
)

// EstimateDensity 对文档内容打分并归类为 compact/normal/large。
// 纯函数：隐藏区块计零分，缺失的列表或文本按空处理，永不出错。
// 内容稀疏时返回 large（宽松排版避免页面显空），内容溢出单页前切到 compact。
func EstimateDensity(doc *Document) Density {
	return classify(densityScore(doc))
}

func classify(score float64) Density {
	switch {
	case score < normalThreshold:
		return DensityLarge
	case score < compactThreshold:
		return DensityNormal
	default:
		return DensityCompact
	}
}

func densityScore(doc *Document) float64 {
	if doc == nil {
		return 0
	}

	var score float64
	for _, s := range doc.Sections {
		if !s.IsVisible {
			continue
		}
		switch s.Type {
		case SectionSummary, SectionLanguages:
			score += float64(utf8.RuneCountInString(s.Text) / summaryCharsPerPoint)
		case SectionEducation:
			for _, item := range s.Education {
				score += educationItemPoints
				if strings.TrimSpace(item.Description) != "" {
					score += descriptionBonus
				}
			}
		case SectionExperiences:
			for _, item := range s.Experiences {
				score += experienceItemPoints
				score += highlightPoints * float64(len(item.Highlights))
			}
		case SectionProjects:
			for _, item := range s.Projects {
				score += projectItemPoints
				score += highlightPoints * float64(len(item.Highlights))
			}
		case SectionLeadership:
			for _, item := range s.Leadership {
				score += leadershipItemPoints
				score += highlightPoints * float64(len(item.Highlights))
			}
		case SectionCustom:
			for _, item := range s.Custom {
				score += customItemPoints
				score += highlightPoints * float64(len(item.Highlights))
			}
		case SectionSkills:
			chars := 0
			if s.Skills != nil {
				chars += utf8.RuneCountInString(s.Skills.Languages)
				chars += utf8.RuneCountInString(s.Skills.Tools)
			}
			for _, g := range s.SkillGroups {
				chars += utf8.RuneCountInString(g.Category)
				chars += utf8.RuneCountInString(g.Skills)
			}
			score += float64(chars / skillsCharsPerPoint)
		}
	}
	return score
}
