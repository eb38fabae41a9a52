package document

import "strings"

const (
	compactSuffix = "_compact"
	largeSuffix   = "_large"
)

// 模板基名集合：与排版引擎内置的设计模板一一对应。
// 基名集合是开放的（未知基名原样透传），后缀约定是封闭的。
var knownBases = []string{
	"harvard",
	"europass",
	"mckinsey",
	"aurianne",
	"stephane",
	"michel",
	"double",
}

// KnownTemplateID reports whether id names a built-in template, in base or
// variant form.
func KnownTemplateID(id string) bool {
	base := BaseTemplate(id)
	for _, b := range knownBases {
		if base == b {
			return true
		}
	}
	return false
}

// BaseTemplate strips a known size-variant suffix, if present.
func BaseTemplate(id string) string {
	switch {
	case strings.HasSuffix(id, compactSuffix):
		return strings.TrimSuffix(id, compactSuffix)
	case strings.HasSuffix(id, largeSuffix):
		return strings.TrimSuffix(id, largeSuffix)
	default:
		return id
	}
}

// TemplateVariant extracts the size variant encoded in id; a bare base name
// means normal.
func TemplateVariant(id string) Density {
	switch {
	case strings.HasSuffix(id, compactSuffix):
		return DensityCompact
	case strings.HasSuffix(id, largeSuffix):
		return DensityLarge
	default:
		return DensityNormal
	}
}

// ComposeTemplate combines a base name with a size variant. Any variant
// suffix already on base is stripped first, so composition never stacks
// suffixes. Normal (or an unknown variant) yields the bare base.
func ComposeTemplate(base string, variant Density) string {
	base = BaseTemplate(base)
	switch variant {
	case DensityCompact:
		return base + compactSuffix
	case DensityLarge:
		return base + largeSuffix
	default:
		return base
	}
}
