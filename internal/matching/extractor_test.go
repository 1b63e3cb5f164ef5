package matching

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExtractor() *Extractor {
	return NewExtractor(newTestNormalizer(), DefaultMaxFieldBytes, DefaultMaxListItems)
}

func TestExtractProfileSkills(t *testing.T) {
	e := newTestExtractor()

	p := e.Profile(Record{
		"role":   "Backend Engineer",
		"skills": []any{"Python", "JS", "python"},
		"skill_entries": []any{
			map[string]any{"name": "Go", "level": "expert"},
			map[string]any{"name": "Docker", "level": 4},
			map[string]any{"skill": "SQL", "proficiency": "beginner"},
			map[string]any{"name": "Python", "level": "advanced"},
			map[string]any{"level": "expert"},
		},
	})

	assert.Equal(t, "Backend Engineer", p.Title)
	assert.Equal(t, map[string]float64{
		"python":     1.2, // 重复技能取最大权重
		"javascript": 1.0,
		"go":         1.5,
		"docker":     1.2,
		"sql":        0.8,
	}, p.Skills)
}

func TestExtractSkillsFromCommaString(t *testing.T) {
	e := newTestExtractor()

	j := e.Job(Record{"id": "j1", "requirements": "Driving, License ,  "})
	assert.Equal(t, map[string]float64{"driving": 1, "license": 1}, j.Skills)
	assert.Equal(t, []string{"Driving", "License"}, j.Requirements)
}

func TestProficiencyWeight(t *testing.T) {
	tests := []struct {
		in   any
		want float64
	}{
		{"Expert", 1.5},
		{"advanced", 1.2},
		{"intermediate", 1.0},
		{"entry", 0.8},
		{5, 1.5},
		{4.0, 1.2},
		{3, 1.0},
		{1, 0.8},
		{json.Number("5"), 1.5},
		{nil, 1.0},
		{math.NaN(), 1.0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, proficiencyWeight(tt.in), "proficiencyWeight(%v)", tt.in)
	}
}

func TestExtractProfileYears(t *testing.T) {
	e := newTestExtractor()

	assert.Equal(t, 5.0, e.Profile(Record{"experience_years": 5}).Years)
	assert.Equal(t, 3.0, e.Profile(Record{"experience_required": "3 years"}).Years)
	assert.Equal(t, 2.0, e.Profile(Record{"experience_detail": map[string]any{"years": 4, "type": "academic"}}).Years)
	assert.InDelta(t, 0.7, e.Profile(Record{"experience_detail": map[string]any{"years": 1, "type": "Internship"}}).Years, 1e-9)

	// 多段经历累加，detail 优先于 experience_years
	p := e.Profile(Record{
		"experience_years": 10,
		"experience_detail": []any{
			map[string]any{"years": 2, "type": "production"},
			map[string]any{"years": 2, "type": "academic"},
		},
	})
	assert.InDelta(t, 3.0, p.Years, 1e-9)
}

func TestParseFirstNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"20000", 20000},
		{"₹25,000 per month", 25000},
		{"25k", 25000},
		{"1.5 M", 1.5e6},
		{"6 LPA", 6e5},
		{"3 lakhs", 3e5},
		{"between 20k and 30k", 20000},
		{"negotiable", 0},
		{"", 0},
		{"10 kg", 10},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, parseFirstNumber(tt.in), 1e-6, "parseFirstNumber(%q)", tt.in)
	}
}

func TestExtractJobSalaryPrecedence(t *testing.T) {
	e := newTestExtractor()

	j := e.Job(Record{"maxSalary": 25000, "salary_range": map[string]any{"max": 40000}, "salary": 10000})
	assert.Equal(t, 25000.0, j.Salary)

	j = e.Job(Record{"salary_range": map[string]any{"min": 20000, "max": 40000}, "salary": 10000})
	assert.Equal(t, 40000.0, j.Salary)

	j = e.Job(Record{"salary": "18k - 22k"})
	assert.Equal(t, 18000.0, j.Salary)

	j = e.Job(Record{"salary": math.Inf(1)})
	assert.Equal(t, 0.0, j.Salary, "非有限值归零")

	j = e.Job(Record{"salary": -500})
	assert.Equal(t, 0.0, j.Salary, "负数归零")
}

func TestExtractLocation(t *testing.T) {
	e := newTestExtractor()

	p := e.Profile(Record{"location": map[string]any{"city": "Bangalore", "lat": 12.97, "lng": 77.59}})
	assert.Equal(t, "bangalore", p.Location)
	require.NotNil(t, p.Coords)
	assert.Equal(t, Coordinates{Lat: 12.97, Lon: 77.59}, *p.Coords)

	p = e.Profile(Record{"location": "Mysore", "latitude": "12.29", "longitude": 76.63})
	require.NotNil(t, p.Coords)
	assert.InDelta(t, 12.29, p.Coords.Lat, 1e-9)

	// 0 视为缺失
	p = e.Profile(Record{"location": "Mysore", "latitude": 0, "longitude": 76.63})
	assert.Nil(t, p.Coords)

	p = e.Profile(Record{"location": "Remote"})
	assert.True(t, p.Remote)
}

func TestExtractJobFlags(t *testing.T) {
	e := newTestExtractor()

	j := e.Job(Record{
		"_id":              "abc",
		"companyName":      "Porter",
		"shift_type":       "Night",
		"license_required": "yes",
		"remote":           false,
		"status":           "Active",
	})
	assert.Equal(t, "abc", j.ID)
	assert.Equal(t, "Porter", j.Company)
	assert.True(t, j.NightShift)
	assert.True(t, j.LicenseRequired)
	assert.False(t, j.Remote)
	assert.True(t, j.Active)
	assert.Equal(t, []string{}, j.Requirements)

	assert.False(t, e.Job(Record{"status": "closed"}).Active)
	assert.True(t, e.Job(Record{}).Active, "缺省 status 视为 active")
	assert.True(t, e.Job(Record{"location": "Remote"}).Remote)
}

func TestExtractProfileNightShift(t *testing.T) {
	e := newTestExtractor()

	assert.True(t, e.Profile(Record{"prefers_night_shift": true}).NightShift)
	assert.True(t, e.Profile(Record{"skills": []any{"Night Shift"}}).NightShift)
	assert.True(t, e.Profile(Record{"shift_preference": "night"}).NightShift)
	assert.False(t, e.Profile(Record{"skills": []any{"Driving"}}).NightShift)
}

func TestExtractSanitizesUntrustedShapes(t *testing.T) {
	e := NewExtractor(newTestNormalizer(), 8, 2)

	p := e.Profile(Record{
		"title":               strings.Repeat("é", 10),
		"skills":              []any{"a", "b", "c", "d"},
		"salary_expectations": math.NaN(),
		"experience_years":    map[string]any{"nested": true},
		"location":            []any{"not", "a", "string"},
	})
	assert.Equal(t, strings.Repeat("é", 4), p.Title, "按字节截断且不切断多字节字符")
	assert.Len(t, p.Skills, 2)
	assert.Equal(t, 0.0, p.Salary)
	assert.Equal(t, 0.0, p.Years)
	assert.Equal(t, "", p.Location)
}

func TestTruncateUTF8(t *testing.T) {
	assert.Equal(t, "abc", truncateUTF8("abcdef", 3))
	assert.Equal(t, "abcdef", truncateUTF8("abcdef", 0))
	assert.Equal(t, "a", truncateUTF8("a中", 3))
	assert.Equal(t, "a中", truncateUTF8("a中", 4))
}
