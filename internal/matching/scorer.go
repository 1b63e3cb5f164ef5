package matching

import (
	"math"
	"strings"
)

// Scorer 组合四个维度子分数并应用乘法修正
type Scorer struct {
	policy    Policy
	norm      *Normalizer
	density   *DensityClassifier
	stopWords map[string]struct{}
	helpers   []string
}

// NewScorer 创建打分器
func NewScorer(p Policy, norm *Normalizer) *Scorer {
	s := &Scorer{
		policy:    p,
		norm:      norm,
		density:   NewDensityClassifier(p.Density, p.Weights),
		stopWords: make(map[string]struct{}, len(p.TitleStopWords)),
	}
	for _, w := range p.TitleStopWords {
		s.stopWords[cleanText(w)] = struct{}{}
	}
	for _, h := range p.HelperKeywords {
		if h = cleanText(h); h != "" {
			s.helpers = append(s.helpers, h)
		}
	}
	return s
}

// Score 计算单个岗位的最终分数，调用方需保证岗位已通过硬性门槛
func (s *Scorer) Score(p ProfileSignals, j JobSignals) Breakdown {
	pol := &s.policy
	b := Breakdown{Density: s.density.Density(j)}
	b.Tier = s.density.Classify(b.Density)
	b.Weights = s.density.WeightsFor(b.Tier)
	w := b.Weights

	b.Skills, b.SkillOverlap = s.skillScore(p, j)
	b.Experience = experienceScore(p.Years, j.Years)
	b.Salary = salaryScore(p.Salary, j.Salary)
	b.Location = s.locationScore(p, j)
	b.TitleMultiplier = 1.0

	zeroOverlap := len(j.Skills) > 0 && b.SkillOverlap == 0
	if zeroOverlap && pol.SkillGate == SkillGateHard {
		b.SkillGate = true
		return b
	}

	b.Raw = b.Skills*w.Skills + b.Experience*w.Experience + b.Salary*w.Salary + b.Location*w.Location
	score := b.Raw
	if zeroOverlap {
		b.SkillGate = true
		score *= pol.SoftSkillPenalty
	}

	if m := s.titleMultiplier(p.Title, j.Title); m > 1 {
		// 加成后的分数不超过上限，原本高于上限的分数也被压到上限
		boosted := math.Min(score*m, pol.TitleBoostCap)
		if score > 0 {
			b.TitleMultiplier = boosted / score
		}
		score = boosted
	} else {
		b.TitleMultiplier = m
		score *= m
	}

	if w.Skills > 0 && b.Skills*w.Skills <= pol.StrictSkillFloor*w.Skills {
		b.StrictSkill = true
		score *= pol.StrictSkillFactor
	}
	if b.Tier == TierLow && w.Location > 0 && b.Location*w.Location < pol.StrictLocationFloor*w.Location {
		b.StrictLocation = true
		score *= pol.StrictLocationFactor
	}

	b.Final = clamp01(score)
	return b
}

// skillScore 返回技能子分数和重合数量
func (s *Scorer) skillScore(p ProfileSignals, j JobSignals) (float64, int) {
	if len(j.Skills) == 0 {
		return s.policy.NoSkillNeutral, 0
	}
	var weighted float64
	overlap := 0
	for token := range j.Skills {
		if w, ok := p.Skills[token]; ok {
			weighted += w
			overlap++
		}
	}
	if overlap == 0 {
		return 0, 0
	}
	score := weighted / float64(len(j.Skills))
	if extra := len(p.Skills) - overlap; extra > 0 {
		score += math.Min(s.policy.ExtraSkillBonusMax, s.policy.ExtraSkillBonusStep*float64(extra))
	}
	return clamp01(score), overlap
}

func experienceScore(have, required float64) float64 {
	if required <= 0 {
		return 1.0
	}
	return math.Min(1.0, have/required)
}

// salaryScore 任一方未知视为兼容；期望高于报价时按比例折扣
func salaryScore(expected, offered float64) float64 {
	if expected <= 0 || offered <= 0 || expected <= offered {
		return 1.0
	}
	return offered / expected
}

func (s *Scorer) locationScore(p ProfileSignals, j JobSignals) float64 {
	if j.Remote || containsWord(p.Location, "remote") {
		return 1.0
	}
	if p.Location != "" && p.Location == j.Location {
		return 1.0
	}
	return s.policy.LocationPartialCredit
}

// titleMultiplier 标题核心词有交集 -> boost；无交集 -> penalty (helper 类岗位除外)；缺标题 -> 1
func (s *Scorer) titleMultiplier(profileTitle, jobTitle string) float64 {
	if strings.TrimSpace(profileTitle) == "" || strings.TrimSpace(jobTitle) == "" {
		return 1.0
	}
	pt := s.norm.TitleTokens(profileTitle, s.stopWords)
	jt := s.norm.TitleTokens(jobTitle, s.stopWords)
	if len(pt) == 0 || len(jt) == 0 {
		return 1.0
	}
	for t := range pt {
		if _, ok := jt[t]; ok {
			return s.policy.TitleBoost
		}
	}
	if s.isHelper(profileTitle) || s.isHelper(jobTitle) {
		return 1.0
	}
	return s.policy.TitlePenalty
}

func (s *Scorer) isHelper(title string) bool {
	cleaned := cleanText(title)
	for _, h := range s.helpers {
		if strings.Contains(cleaned, h) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return math.NaN()
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
