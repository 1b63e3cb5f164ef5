package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestNormalizer() *Normalizer {
	p := DefaultPolicy()
	return NewNormalizer(p.SkillSynonyms, p.TitleCategories)
}

func TestNormalizeSkill(t *testing.T) {
	n := newTestNormalizer()

	tests := []struct {
		in   string
		want string
	}{
		{"JS", "javascript"},
		{"  ReactJS ", "react"},
		{"Node.js", "node"},
		{"Two-wheeler", "two wheeler"},
		{"2_wheeler", "two wheeler"},
		{"Heavy   Lifting", "heavy lifting"},
		{"Café", "cafe"},
		{"C++", "c++"},
		{"Underwater Welding", "underwater welding"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.NormalizeSkill(tt.in), "NormalizeSkill(%q)", tt.in)
	}
}

func TestNormalizeTitle(t *testing.T) {
	n := newTestNormalizer()

	assert.Equal(t, "south indian cuisine", n.NormalizeTitle("Dosa Master"))
	assert.Equal(t, "south indian cuisine", n.NormalizeTitle("Restaurant Cook (South Indian)"), "排在前面的类别优先")
	assert.Equal(t, "delivery", n.NormalizeTitle("Delivery Driver (Bike)"))
	assert.Equal(t, "driver", n.NormalizeTitle("Chauffeur / Driver"))
	assert.Equal(t, "data analyst", n.NormalizeTitle("Data Analyst!"), "未归类时返回清洗后的原文")
	assert.Equal(t, "", n.NormalizeTitle("   "))
}

func TestTitleTokens(t *testing.T) {
	n := newTestNormalizer()
	stop := map[string]struct{}{"senior": {}, "manager": {}, "lead": {}}

	tokens := n.TitleTokens("Senior Delivery Partner", stop)
	assert.Contains(t, tokens, "delivery")
	assert.Contains(t, tokens, "partner")
	assert.NotContains(t, tokens, "senior")

	// 全是停用词时保留原词
	tokens = n.TitleTokens("Lead Manager", stop)
	assert.Contains(t, tokens, "lead")
	assert.Contains(t, tokens, "manager")

	// 类别标签一并加入
	tokens = n.TitleTokens("Bike Rider", stop)
	assert.Contains(t, tokens, "delivery")
}

func TestNewNormalizerCopiesInput(t *testing.T) {
	syn := map[string]string{"js": "javascript"}
	n := NewNormalizer(syn, nil)
	syn["js"] = "java"

	assert.Equal(t, "javascript", n.NormalizeSkill("js"))
}
