package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func skills(tokens ...string) map[string]float64 {
	m := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		m[t] = 1.0
	}
	return m
}

func TestGateBlockerKeywords(t *testing.T) {
	g := NewGateEvaluator(DefaultPolicy())
	job := JobSignals{Skills: skills("two wheeler", "driving license", "navigation")}

	tests := []struct {
		name    string
		profile ProfileSignals
		pass    bool
	}{
		{"完全相同", ProfileSignals{Skills: skills("driving license")}, true},
		{"候选人 token 被包含", ProfileSignals{Skills: skills("license")}, true},
		{"候选人 token 包含岗位 token", ProfileSignals{Skills: skills("valid driving license lmv")}, true},
		{"证照列表也算", ProfileSignals{Skills: skills("navigation"), Licenses: []string{"license"}}, true},
		{"缺少证照", ProfileSignals{Skills: skills("two wheeler", "navigation")}, false},
		{"单字母技能不能冒充证照", ProfileSignals{Skills: skills("two wheeler", "navigation", "c")}, false},
		{"只共享部分词", ProfileSignals{Skills: skills("commercial license")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := g.Passes(tt.profile, job)
			assert.Equal(t, tt.pass, ok)
			if !tt.pass {
				assert.Equal(t, GateBlocker, reason)
			}
		})
	}
}

func TestGateBlockerWordLevel(t *testing.T) {
	g := NewGateEvaluator(DefaultPolicy())
	job := JobSignals{Skills: skills("driving", "navigation", "commercial license")}

	for _, short := range []string{"c", "r", "l", "ice"} {
		ok, reason := g.Passes(ProfileSignals{Skills: skills("driving", "navigation", short)}, job)
		assert.False(t, ok, short)
		assert.Equal(t, GateBlocker, reason, short)
	}

	ok, _ := g.Passes(ProfileSignals{Skills: skills("driving"), Licenses: []string{"Commercial License"}}, job)
	assert.True(t, ok)
}

func TestGateLicenseRequiredFlag(t *testing.T) {
	g := NewGateEvaluator(DefaultPolicy())
	job := JobSignals{LicenseRequired: true}

	ok, reason := g.Passes(ProfileSignals{Skills: skills("driving")}, job)
	assert.False(t, ok)
	assert.Equal(t, GateLicenseRequired, reason)

	ok, _ = g.Passes(ProfileSignals{Licenses: []string{"lmv"}}, job)
	assert.True(t, ok)

	ok, _ = g.Passes(ProfileSignals{Skills: skills("heavy vehicle licence")}, job)
	assert.True(t, ok)
}

func TestGateCommute(t *testing.T) {
	g := NewGateEvaluator(DefaultPolicy())
	bangalore := &Coordinates{Lat: 12.9716, Lon: 77.5946}
	mysore := &Coordinates{Lat: 12.2958, Lon: 76.6394}
	whitefield := &Coordinates{Lat: 12.9698, Lon: 77.7500}

	ok, reason := g.Passes(ProfileSignals{Coords: mysore}, JobSignals{Coords: bangalore})
	assert.False(t, ok, "迈索尔到班加罗尔超过 100km")
	assert.Equal(t, GateCommute, reason)

	ok, _ = g.Passes(ProfileSignals{Coords: whitefield}, JobSignals{Coords: bangalore})
	assert.True(t, ok)

	ok, _ = g.Passes(ProfileSignals{Coords: mysore}, JobSignals{Coords: bangalore, Remote: true})
	assert.True(t, ok, "远程岗位不检查通勤")

	ok, _ = g.Passes(ProfileSignals{Location: "mysore"}, JobSignals{Location: "bangalore"})
	assert.True(t, ok, "缺坐标时门槛不适用")
}

func TestGateNightShift(t *testing.T) {
	g := NewGateEvaluator(DefaultPolicy())

	ok, reason := g.Passes(ProfileSignals{}, JobSignals{NightShift: true})
	assert.False(t, ok)
	assert.Equal(t, GateNightShift, reason)

	ok, _ = g.Passes(ProfileSignals{NightShift: true}, JobSignals{NightShift: true})
	assert.True(t, ok)
}

func TestHaversine(t *testing.T) {
	a := Coordinates{Lat: 12.9716, Lon: 77.5946}
	b := Coordinates{Lat: 12.2958, Lon: 76.6394}

	d := Haversine(a, b, DefaultEarthRadiusKm)
	assert.InDelta(t, 127.0, d, 3.0)
	assert.InDelta(t, d, Haversine(b, a, DefaultEarthRadiusKm), 1e-9)
	assert.Equal(t, 0.0, Haversine(a, a, DefaultEarthRadiusKm))
}
