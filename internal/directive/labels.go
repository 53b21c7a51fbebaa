package directive

import (
	"maps"
	"slices"
	"strings"
	"unicode"
)

// zoneIDLabels localizes well-known zone ids.
var zoneIDLabels = map[string]string{
	"entrance":     "入口",
	"entry":        "入口",
	"exit":         "出口",
	"checkout":     "收银台",
	"cashier":      "收银台",
	"fitting_room": "试衣间",
	"fitting":      "试衣间",
	"storage":      "仓库",
	"stockroom":    "仓库",
	"promotion":    "促销区",
	"promo":        "促销区",
	"display":      "陈列区",
	"window":       "橱窗",
	"aisle":        "通道",
	"rest":         "休息区",
	"lounge":       "休息区",
	"new_arrivals": "新品区",
	"accessories":  "配饰区",
	"shoes":        "鞋区",
	"womens":       "女装区",
	"mens":         "男装区",
	"kids":         "童装区",
	"service_desk": "服务台",
}

// wordLabels translates single words of an English label.
var wordLabels = map[string]string{
	"main":        "主",
	"front":       "前",
	"back":        "后",
	"side":        "侧",
	"left":        "左",
	"right":       "右",
	"center":      "中央",
	"central":     "中央",
	"new":         "新品",
	"arrivals":    "上新",
	"women":       "女装",
	"womens":      "女装",
	"men":         "男装",
	"mens":        "男装",
	"kids":        "童装",
	"shoe":        "鞋",
	"shoes":       "鞋",
	"accessories": "配饰",
	"fitting":     "试衣",
	"room":        "间",
	"rooms":       "间",
	"checkout":    "收银",
	"cashier":     "收银",
	"counter":     "台",
	"desk":        "台",
	"service":     "服务",
	"display":     "陈列",
	"promotion":   "促销",
	"promo":       "促销",
	"sale":        "特卖",
	"storage":     "仓储",
	"rest":        "休息",
	"area":        "区",
	"zone":        "区",
	"entrance":    "入口",
	"exit":        "出口",
	"window":      "橱窗",
	"aisle":       "通道",
}

// Labels localizes zone labels for one locale.
type Labels struct {
	// Locale is the config value that selects this table.
	Locale string
	// Language names the language in the model instructions.
	Language string

	ids       map[string]string
	words     map[string]string
	localized func(string) bool
}

// DefaultLabelLocale is used when no locale is configured.
const DefaultLabelLocale = "zh"

// LabelLocaleNone turns label enrichment off.
const LabelLocaleNone = "none"

var labelSets = map[string]*Labels{
	"zh": {Locale: "zh", Language: "Chinese", ids: zoneIDLabels, words: wordLabels, localized: hasHan},
}

// LabelsFor returns the label table for locale. An empty locale selects
// DefaultLabelLocale; LabelLocaleNone returns nil with ok true.
func LabelsFor(locale string) (*Labels, bool) {
	switch locale {
	case "":
		locale = DefaultLabelLocale
	case LabelLocaleNone:
		return nil, true
	}
	l, ok := labelSets[locale]
	return l, ok
}

// LabelLocales lists the supported locales, LabelLocaleNone included.
func LabelLocales() []string {
	out := slices.Sorted(maps.Keys(labelSets))
	return append(out, LabelLocaleNone)
}

// hasHan reports whether s already contains Han characters.
func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// Localize returns the localized label for a zone, or label unchanged.
// The id table wins; otherwise every word of the label (or of the id, when the
// label is empty) must translate. A nil table changes nothing.
func (l *Labels) Localize(id, label string) string {
	if l == nil || l.localized(label) {
		return label
	}
	if t, ok := l.ids[strings.ToLower(id)]; ok {
		return t
	}
	source := label
	if strings.TrimSpace(source) == "" {
		source = id
	}
	if t, ok := l.translateWords(source); ok {
		return t
	}
	return label
}

func (l *Labels) translateWords(s string) (string, bool) {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '/'
	})
	if len(words) == 0 {
		return "", false
	}
	var b strings.Builder
	for _, w := range words {
		t, ok := l.words[w]
		if !ok {
			return "", false
		}
		b.WriteString(t)
	}
	return b.String(), true
}
