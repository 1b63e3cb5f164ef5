package matching

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	// 标题/地点清洗：去掉标点
	nonWordRegex = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	// 技能清洗：连字符、下划线视为空格
	skillSeparatorReplacer = strings.NewReplacer("-", " ", "_", " ", "/", " ")
)

// Normalizer 把自由文本映射为规范化 token，纯函数，从不失败
type Normalizer struct {
	synonyms   map[string]string
	categories []CategoryRule
}

// NewNormalizer 用同义词表和标题归类桶构造 Normalizer，入参会被复制
func NewNormalizer(synonyms map[string]string, categories []CategoryRule) *Normalizer {
	n := &Normalizer{
		synonyms:   make(map[string]string, len(synonyms)),
		categories: make([]CategoryRule, 0, len(categories)),
	}
	for k, v := range synonyms {
		key := cleanSkill(k)
		if key == "" {
			continue
		}
		n.synonyms[key] = cleanSkill(v)
	}
	for _, c := range categories {
		rule := CategoryRule{Label: cleanText(c.Label)}
		for _, kw := range c.Keywords {
			if kw = cleanText(kw); kw != "" {
				rule.Keywords = append(rule.Keywords, kw)
			}
		}
		if rule.Label != "" && len(rule.Keywords) > 0 {
			n.categories = append(n.categories, rule)
		}
	}
	return n
}

// NormalizeSkill 返回技能的规范化形式；未登记的 token 原样(清洗后)返回
func (n *Normalizer) NormalizeSkill(token string) string {
	cleaned := cleanSkill(token)
	if canonical, ok := n.synonyms[cleaned]; ok {
		return canonical
	}
	return cleaned
}

// NormalizeTitle 返回标题所属类别；不属于任何类别时返回清洗后的标题
func (n *Normalizer) NormalizeTitle(text string) string {
	cleaned := cleanText(text)
	if label, ok := n.category(cleaned); ok {
		return label
	}
	return cleaned
}

// NormalizeLocation 地点只做大小写/标点/空白清洗
func (n *Normalizer) NormalizeLocation(text string) string {
	return cleanText(text)
}

func (n *Normalizer) category(cleaned string) (string, bool) {
	if cleaned == "" {
		return "", false
	}
	for _, c := range n.categories {
		for _, kw := range c.Keywords {
			if strings.Contains(cleaned, kw) {
				return c.Label, true
			}
		}
	}
	return "", false
}

// TitleTokens 标题核心词集合：去停用词(若全是停用词则保留原词) 并加入类别标签
func (n *Normalizer) TitleTokens(text string, stopWords map[string]struct{}) map[string]struct{} {
	cleaned := cleanText(text)
	words := strings.Fields(cleaned)
	tokens := make(map[string]struct{}, len(words)+1)
	for _, w := range words {
		if _, stop := stopWords[w]; !stop {
			tokens[w] = struct{}{}
		}
	}
	if len(tokens) == 0 {
		for _, w := range words {
			tokens[w] = struct{}{}
		}
	}
	if label, ok := n.category(cleaned); ok {
		tokens[label] = struct{}{}
	}
	return tokens
}

// cleanText 小写、去重音、去标点、压缩空白
func cleanText(s string) string {
	s = foldAccents(strings.ToLower(s))
	s = nonWordRegex.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// cleanSkill 与 cleanText 类似，但保留 "c++"、"node.js" 之类的符号
func cleanSkill(s string) string {
	s = foldAccents(strings.ToLower(s))
	s = skillSeparatorReplacer.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func foldAccents(s string) string {
	if isASCII(s) {
		return s
	}
	// transform.Transformer 有状态，每次调用单独创建
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
