package matching

import (
	"math"
	"strings"
)

// 字段别名
var (
	profileTitleKeys    = []string{"title", "role", "job_title", "desired_role"}
	profileSkillKeys    = []string{"skills", "skill_entries", "top_skills"}
	profileYearsKeys    = []string{"experience_years", "experience_required", "years_of_experience"}
	profileSalaryKeys   = []string{"salary_expectations", "salary_expectation", "salary", "expected_salary"}
	profileRemoteKeys   = []string{"remote_work_preference", "remote"}
	profileLicenseKeys  = []string{"licenses_certifications", "licenses", "certifications"}
	profileNightKeys    = []string{"prefers_night_shift", "night_shift"}
	jobIDKeys           = []string{"id", "_id", "job_id"}
	jobCompanyKeys      = []string{"company", "companyName", "company_name"}
	jobSkillKeys        = []string{"requirements", "skills", "required_skills"}
	jobYearsKeys        = []string{"experience_required", "experience_years", "min_experience"}
	jobLicenseKeys      = []string{"license_required", "licence_required"}
	latitudeKeys        = []string{"latitude", "lat"}
	longitudeKeys       = []string{"longitude", "lon", "lng"}
	skillEntryNameKeys  = []string{"name", "skill", "title"}
	skillEntryLevelKeys = []string{"level", "proficiency"}
)

// 熟练度权重
const (
	weightExpert   = 1.5
	weightAdvanced = 1.2
	weightDefault  = 1.0
	weightEntry    = 0.8
)

// 经验类型折扣
const (
	academicDiscount = 0.5
	internDiscount   = 0.7
)

const nightShiftToken = "night shift"

// Extractor 把无类型的输入记录转换为 ProfileSignals / JobSignals，不会失败
type Extractor struct {
	norm     *Normalizer
	maxBytes int
	maxItems int
}

// NewExtractor 创建 Extractor，maxBytes/maxItems 为单字段/列表的截断上限
func NewExtractor(norm *Normalizer, maxBytes, maxItems int) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFieldBytes
	}
	if maxItems <= 0 {
		maxItems = DefaultMaxListItems
	}
	return &Extractor{norm: norm, maxBytes: maxBytes, maxItems: maxItems}
}

// Profile 提取候选人信号
func (e *Extractor) Profile(r Record) ProfileSignals {
	p := ProfileSignals{
		Title:  r.str(e.maxBytes, profileTitleKeys...),
		Skills: map[string]float64{},
	}
	for _, k := range profileSkillKeys {
		if v, ok := r[k]; ok {
			e.mergeSkills(p.Skills, v)
		}
	}
	if v, ok := r.first(profileLicenseKeys...); ok {
		for _, item := range asList(v, e.maxItems) {
			if name := e.entryName(item); name != "" {
				p.Licenses = append(p.Licenses, e.norm.NormalizeSkill(name))
			}
		}
	}

	p.Years = e.profileYears(r)
	if v, ok := r.first(profileSalaryKeys...); ok {
		p.Salary = e.salary(v, false)
	}

	locText, coords := e.location(r)
	p.Location = e.norm.NormalizeLocation(locText)
	p.Coords = coords

	p.Remote = r.boolean(profileRemoteKeys...) || containsWord(p.Location, "remote")
	p.NightShift = r.boolean(profileNightKeys...) ||
		strings.Contains(strings.ToLower(r.str(e.maxBytes, "shift_preference")), "night")
	if !p.NightShift {
		_, p.NightShift = p.Skills[nightShiftToken]
	}
	return p
}

// Job 提取岗位信号；status 缺省视为 active
func (e *Extractor) Job(r Record) JobSignals {
	j := JobSignals{
		ID:      r.str(e.maxBytes, jobIDKeys...),
		Title:   r.str(e.maxBytes, "title"),
		Company: r.str(e.maxBytes, jobCompanyKeys...),
		Skills:  map[string]float64{},
		Active:  true,
	}
	for _, k := range jobSkillKeys {
		v, ok := r[k]
		if !ok {
			continue
		}
		e.mergeSkills(j.Skills, v)
		if j.Requirements == nil {
			for _, item := range asList(v, e.maxItems) {
				if name := e.entryName(item); name != "" {
					j.Requirements = append(j.Requirements, name)
				}
			}
		}
	}
	if j.Requirements == nil {
		j.Requirements = []string{}
	}

	if v, ok := r.first(jobYearsKeys...); ok {
		j.Years = numeric(v, e.maxBytes)
	}
	j.Salary = e.jobSalary(r)

	j.LocationText, j.Coords = e.location(r)
	j.Location = e.norm.NormalizeLocation(j.LocationText)

	j.Remote = r.boolean("remote", "is_remote") || containsWord(j.Location, "remote")
	j.LicenseRequired = r.boolean(jobLicenseKeys...)
	j.NightShift = strings.Contains(strings.ToLower(r.str(e.maxBytes, "shift_type", "shift")), "night")
	if status := r.str(e.maxBytes, "status"); status != "" {
		j.Active = strings.EqualFold(status, "active")
	}
	return j
}

// mergeSkills 合并技能；重复技能取最大权重
func (e *Extractor) mergeSkills(dst map[string]float64, v any) {
	for _, item := range asList(v, e.maxItems) {
		name := e.entryName(item)
		if name == "" {
			continue
		}
		token := e.norm.NormalizeSkill(name)
		if token == "" {
			continue
		}
		w := weightDefault
		if m, ok := asMap(item); ok {
			if lv, ok := Record(m).first(skillEntryLevelKeys...); ok {
				w = proficiencyWeight(lv)
			}
		}
		if cur, ok := dst[token]; !ok || w > cur {
			dst[token] = w
		}
	}
}

func (e *Extractor) entryName(item any) string {
	if m, ok := asMap(item); ok {
		return Record(m).str(e.maxBytes, skillEntryNameKeys...)
	}
	return asString(item, e.maxBytes)
}

// proficiencyWeight 文本或 1-5 数值等级映射为权重
func proficiencyWeight(v any) float64 {
	if f, ok := asNumber(v); ok {
		switch {
		case math.IsNaN(f):
			return weightDefault
		case f >= 5:
			return weightExpert
		case f >= 4:
			return weightAdvanced
		case f <= 1:
			return weightEntry
		}
		return weightDefault
	}
	s, ok := v.(string)
	if !ok {
		return weightDefault
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expert", "master":
		return weightExpert
	case "advanced", "senior":
		return weightAdvanced
	case "entry", "beginner", "basic", "novice", "junior":
		return weightEntry
	case "5":
		return weightExpert
	case "4":
		return weightAdvanced
	case "1", "0":
		return weightEntry
	}
	return weightDefault
}

// profileYears experience_detail 优先，其次 experience_years
func (e *Extractor) profileYears(r Record) float64 {
	if v, ok := r.first("experience_detail"); ok {
		var total float64
		var seen bool
		for _, item := range asList(v, e.maxItems) {
			m, ok := asMap(item)
			if !ok {
				continue
			}
			detail := Record(m)
			yv, ok := detail.first("years", "duration_years")
			if !ok {
				continue
			}
			seen = true
			total += numeric(yv, e.maxBytes) * experienceDiscount(detail.str(e.maxBytes, "type", "kind"))
		}
		if seen {
			return finite(total)
		}
	}
	if v, ok := r.first(profileYearsKeys...); ok {
		return numeric(v, e.maxBytes)
	}
	return 0
}

func experienceDiscount(kind string) float64 {
	kind = strings.ToLower(kind)
	switch {
	case strings.Contains(kind, "academic"):
		return academicDiscount
	case strings.Contains(kind, "intern"):
		return internDiscount
	}
	return 1.0
}

// jobSalary maxSalary > salary_range.max > salary
func (e *Extractor) jobSalary(r Record) float64 {
	if v, ok := r.first("maxSalary", "max_salary"); ok {
		if s := e.salary(v, true); s > 0 {
			return s
		}
	}
	if v, ok := r.first("salary_range"); ok {
		if s := e.salary(v, true); s > 0 {
			return s
		}
	}
	if v, ok := r.first("salary"); ok {
		return e.salary(v, true)
	}
	return 0
}

// salary 数值、文本或 {min,max} 区间；preferMax 为 true 时区间取上限
func (e *Extractor) salary(v any, preferMax bool) float64 {
	if m, ok := asMap(v); ok {
		rec := Record(m)
		keys := []string{"min", "amount", "max"}
		if preferMax {
			keys = []string{"max", "amount", "min"}
		}
		if inner, ok := rec.first(keys...); ok {
			return numeric(inner, e.maxBytes)
		}
		return 0
	}
	return numeric(v, e.maxBytes)
}

// location 返回地点文本和坐标(可能为 nil)
func (e *Extractor) location(r Record) (string, *Coordinates) {
	var text string
	var lat, lon float64
	if v, ok := r.first("location"); ok {
		if m, isMap := asMap(v); isMap {
			loc := Record(m)
			text = loc.str(e.maxBytes, "name", "city", "address", "text")
			if lv, ok := loc.first(latitudeKeys...); ok {
				lat = numericSigned(lv)
			}
			if lv, ok := loc.first(longitudeKeys...); ok {
				lon = numericSigned(lv)
			}
		} else {
			text = asString(v, e.maxBytes)
		}
	}
	if text == "" {
		text = r.str(e.maxBytes, "city")
	}
	if lat == 0 {
		if lv, ok := r.first(latitudeKeys...); ok {
			lat = numericSigned(lv)
		}
	}
	if lon == 0 {
		if lv, ok := r.first(longitudeKeys...); ok {
			lon = numericSigned(lv)
		}
	}
	// 0 视为缺失
	if lat == 0 || lon == 0 || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return text, nil
	}
	return text, &Coordinates{Lat: lat, Lon: lon}
}

// numericSigned 坐标允许负数，其余非有限值归零
func numericSigned(v any) float64 {
	f, ok := asNumber(v)
	if !ok {
		if s, isStr := v.(string); isStr {
			f = parseSigned(s)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func parseSigned(s string) float64 {
	s = strings.TrimSpace(s)
	neg := strings.HasPrefix(s, "-")
	f := parseFirstNumber(strings.TrimPrefix(s, "-"))
	if neg {
		return -f
	}
	return f
}

func containsWord(text, word string) bool {
	for _, w := range strings.Fields(text) {
		if w == word {
			return true
		}
	}
	return false
}
