package matching

import (
	"math"
	"strings"
)

// GateReason 硬性门槛未通过的原因
type GateReason string

const (
	GatePassed          GateReason = ""
	GateBlocker         GateReason = "blocker"
	GateLicenseRequired GateReason = "license_required"
	GateCommute         GateReason = "commute"
	GateNightShift      GateReason = "night_shift"
)

// GateEvaluator 二元资格判定，未通过的岗位直接排除，不参与打分
type GateEvaluator struct {
	blockers     []string
	maxCommuteKm float64
	radiusKm     float64
}

// NewGateEvaluator 根据策略创建门槛判定器
func NewGateEvaluator(p Policy) *GateEvaluator {
	g := &GateEvaluator{maxCommuteKm: p.MaxCommuteKm, radiusKm: p.EarthRadiusKm}
	for _, b := range p.BlockerKeywords {
		if b = cleanSkill(b); b != "" {
			g.blockers = append(g.blockers, b)
		}
	}
	return g
}

// Passes 按顺序检查：证照/阻断技能 -> 通勤距离 -> 夜班
func (g *GateEvaluator) Passes(p ProfileSignals, j JobSignals) (bool, GateReason) {
	for token := range j.Skills {
		if !g.isBlocker(token) {
			continue
		}
		if !profileHolds(p, token) {
			return false, GateBlocker
		}
	}
	if j.LicenseRequired && !hasLicense(p) {
		return false, GateLicenseRequired
	}

	// 缺坐标时不适用
	if !j.Remote && p.Coords != nil && j.Coords != nil {
		if Haversine(*p.Coords, *j.Coords, g.radiusKm) > g.maxCommuteKm {
			return false, GateCommute
		}
	}

	if j.NightShift && !p.NightShift {
		return false, GateNightShift
	}
	return true, GatePassed
}

func (g *GateEvaluator) isBlocker(token string) bool {
	for _, b := range g.blockers {
		if strings.Contains(token, b) {
			return true
		}
	}
	return false
}

// profileHolds 候选人技能或证照中存在与 token 词级相等、为其子集或超集的条目
func profileHolds(p ProfileSignals, token string) bool {
	want := strings.Fields(strings.ToLower(token))
	if len(want) == 0 {
		return true
	}
	match := func(have string) bool {
		words := strings.Fields(strings.ToLower(have))
		return len(words) > 0 && (wordSubset(words, want) || wordSubset(want, words))
	}
	for have := range p.Skills {
		if match(have) {
			return true
		}
	}
	for _, have := range p.Licenses {
		if match(have) {
			return true
		}
	}
	return false
}

// wordSubset a 的每个词都出现在 b 中
func wordSubset(a, b []string) bool {
	for _, w := range a {
		found := false
		for _, x := range b {
			if w == x {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func hasLicense(p ProfileSignals) bool {
	if len(p.Licenses) > 0 {
		return true
	}
	for s := range p.Skills {
		if strings.Contains(s, "licen") {
			return true
		}
	}
	return false
}

// Haversine 两点间大圆距离，单位与 radius 一致
func Haversine(a, b Coordinates, radius float64) float64 {
	const rad = math.Pi / 180
	dLat := (b.Lat - a.Lat) * rad
	dLon := (b.Lon - a.Lon) * rad
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*rad)*math.Cos(b.Lat*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * radius * math.Asin(math.Min(1, math.Sqrt(h)))
}
