package matching

import (
	"errors"
	"fmt"
	"math"
)

// SkillGateMode 技能零重合时的处理策略
type SkillGateMode string

const (
	// SkillGateHard 零重合直接判 0 分
	SkillGateHard SkillGateMode = "hard"
	// SkillGateSoft 零重合按 SoftSkillPenalty 乘法惩罚
	SkillGateSoft SkillGateMode = "soft"
)

// 默认调参常量
const (
	DefaultHighDensityMin = 5.0
	DefaultLowDensityMax  = 2.5

	DefaultNoSkillNeutral      = 0.8
	DefaultExtraSkillBonusStep = 0.05
	DefaultExtraSkillBonusMax  = 0.2
	DefaultSoftSkillPenalty    = 0.55

	DefaultLocationPartialCredit = 0.6

	DefaultTitleBoost    = 1.2
	DefaultTitleBoostCap = 0.99
	DefaultTitlePenalty  = 0.5

	DefaultStrictSkillFloor     = 0.15
	DefaultStrictSkillFactor    = 0.5
	DefaultStrictLocationFloor  = 0.9
	DefaultStrictLocationFactor = 0.1

	DefaultMaxCommuteKm  = 100.0
	DefaultEarthRadiusKm = 6371.0

	DefaultMinMatchThreshold = 0.62
	DefaultMaxResults        = 20
	DefaultErrorScore        = 0.0

	DefaultMaxFieldBytes = 4096
	DefaultMaxListItems  = 64
)

// Weights 四个维度的权重，合计为 1.0
type Weights struct {
	Skills     float64 `yaml:"skills" json:"skills"`
	Experience float64 `yaml:"experience" json:"experience"`
	Salary     float64 `yaml:"salary" json:"salary"`
	Location   float64 `yaml:"location" json:"location"`
}

// Sum 返回权重合计
func (w Weights) Sum() float64 {
	return w.Skills + w.Experience + w.Salary + w.Location
}

// WeightProfiles 三档权重
type WeightProfiles struct {
	High Weights `yaml:"high" json:"high"`
	Mid  Weights `yaml:"mid" json:"mid"`
	Low  Weights `yaml:"low" json:"low"`
}

// DensityRules 岗位要求密度的计分规则
type DensityRules struct {
	PerSkill        float64 `yaml:"per_skill"`
	YearsAny        float64 `yaml:"years_any"`         // 要求年限 > 0
	YearsOver3      float64 `yaml:"years_over_3"`      // 要求年限 > 3
	YearsOver6      float64 `yaml:"years_over_6"`      // 要求年限 > 6
	SalaryMidFloor  float64 `yaml:"salary_mid_floor"`  // 80,000
	SalaryMidBonus  float64 `yaml:"salary_mid_bonus"`  // +1.0
	SalaryHighFloor float64 `yaml:"salary_high_floor"` // 150,000
	SalaryHighBonus float64 `yaml:"salary_high_bonus"` // +1.5
	HighDensityMin  float64 `yaml:"high_density_min"`  // >= 即 high
	LowDensityMax   float64 `yaml:"low_density_max"`   // <= 即 low
}

// CategoryRule 标题归类桶：任一关键词出现在标题中即归为 Label
type CategoryRule struct {
	Label    string   `yaml:"label"`
	Keywords []string `yaml:"keywords"`
}

// Policy 匹配引擎的全部可调参数，构造后只读
type Policy struct {
	Weights WeightProfiles `yaml:"weights"`
	Density DensityRules   `yaml:"density"`

	NoSkillNeutral      float64       `yaml:"no_skill_neutral"`
	ExtraSkillBonusStep float64       `yaml:"extra_skill_bonus_step"`
	ExtraSkillBonusMax  float64       `yaml:"extra_skill_bonus_max"`
	SkillGate           SkillGateMode `yaml:"skill_gate"`
	SoftSkillPenalty    float64       `yaml:"soft_skill_penalty"`

	LocationPartialCredit float64 `yaml:"location_partial_credit"`

	TitleBoost     float64  `yaml:"title_boost"`
	TitleBoostCap  float64  `yaml:"title_boost_cap"`
	TitlePenalty   float64  `yaml:"title_penalty"`
	TitleStopWords []string `yaml:"title_stop_words"`
	HelperKeywords []string `yaml:"helper_keywords"`

	StrictSkillFloor     float64 `yaml:"strict_skill_floor"`
	StrictSkillFactor    float64 `yaml:"strict_skill_factor"`
	StrictLocationFloor  float64 `yaml:"strict_location_floor"`
	StrictLocationFactor float64 `yaml:"strict_location_factor"`

	MaxCommuteKm    float64  `yaml:"max_commute_km"`
	EarthRadiusKm   float64  `yaml:"earth_radius_km"`
	BlockerKeywords []string `yaml:"blocker_keywords"`

	MinMatchThreshold float64 `yaml:"min_match_threshold"`
	MaxResults        int     `yaml:"max_results"`
	// ErrorScore 单个岗位计算异常时的兜底分数 (0.0 排除 / 0.5 中性)
	ErrorScore float64 `yaml:"error_score"`

	MaxFieldBytes int `yaml:"max_field_bytes"`
	MaxListItems  int `yaml:"max_list_items"`

	SkillSynonyms   map[string]string `yaml:"skill_synonyms"`
	TitleCategories []CategoryRule    `yaml:"title_categories"`
}

// DefaultPolicy 返回默认策略
func DefaultPolicy() Policy {
	return Policy{
		Weights: WeightProfiles{
			High: Weights{Skills: 0.50, Experience: 0.30, Salary: 0.15, Location: 0.05},
			Mid:  Weights{Skills: 0.40, Experience: 0.30, Salary: 0.20, Location: 0.10},
			Low:  Weights{Skills: 0.15, Experience: 0.15, Salary: 0.20, Location: 0.50},
		},
		Density: DensityRules{
			PerSkill:        1.0,
			YearsAny:        1.0,
			YearsOver3:      1.0,
			YearsOver6:      1.5,
			SalaryMidFloor:  80000,
			SalaryMidBonus:  1.0,
			SalaryHighFloor: 150000,
			SalaryHighBonus: 1.5,
			HighDensityMin:  DefaultHighDensityMin,
			LowDensityMax:   DefaultLowDensityMax,
		},
		NoSkillNeutral:        DefaultNoSkillNeutral,
		ExtraSkillBonusStep:   DefaultExtraSkillBonusStep,
		ExtraSkillBonusMax:    DefaultExtraSkillBonusMax,
		SkillGate:             SkillGateHard,
		SoftSkillPenalty:      DefaultSoftSkillPenalty,
		LocationPartialCredit: DefaultLocationPartialCredit,
		TitleBoost:            DefaultTitleBoost,
		TitleBoostCap:         DefaultTitleBoostCap,
		TitlePenalty:          DefaultTitlePenalty,
		TitleStopWords: []string{
			"senior", "sr", "junior", "jr", "lead", "manager", "intern", "associate",
			"executive", "iii", "ii", "i", "iv",
		},
		HelperKeywords:       []string{"helper", "general worker", "labour", "labor"},
		StrictSkillFloor:     DefaultStrictSkillFloor,
		StrictSkillFactor:    DefaultStrictSkillFactor,
		StrictLocationFloor:  DefaultStrictLocationFloor,
		StrictLocationFactor: DefaultStrictLocationFactor,
		MaxCommuteKm:         DefaultMaxCommuteKm,
		EarthRadiusKm:        DefaultEarthRadiusKm,
		BlockerKeywords: []string{
			"license", "licence", "certification", "certified",
			"night shift", "own vehicle", "own bike",
		},
		MinMatchThreshold: DefaultMinMatchThreshold,
		MaxResults:        DefaultMaxResults,
		ErrorScore:        DefaultErrorScore,
		MaxFieldBytes:     DefaultMaxFieldBytes,
		MaxListItems:      DefaultMaxListItems,
		SkillSynonyms: map[string]string{
			"js":              "javascript",
			"py":              "python",
			"reactjs":         "react",
			"react.js":        "react",
			"nodejs":          "node",
			"node.js":         "node",
			"golang":          "go",
			"k8s":             "kubernetes",
			"ts":              "typescript",
			"postgres":        "postgresql",
			"ms excel":        "excel",
			"dl":              "driving license",
			"driving licence": "driving license",
			"2 wheeler":       "two wheeler",
			"twowheeler":      "two wheeler",
		},
		TitleCategories: []CategoryRule{
			{Label: "south indian cuisine", Keywords: []string{"dosa", "idli", "vada", "south indian"}},
			{Label: "delivery", Keywords: []string{"bike", "scooter", "delivery", "courier", "two wheeler"}},
			{Label: "driver", Keywords: []string{"driving", "driver", "chauffeur"}},
			{Label: "cook", Keywords: []string{"cook", "chef", "kitchen"}},
			{Label: "security", Keywords: []string{"security", "guard", "watchman"}},
			{Label: "warehouse", Keywords: []string{"warehouse", "picker", "packer", "loader"}},
		},
	}
}

const weightTolerance = 1e-6

// Validate 校验策略，返回全部问题
func (p *Policy) Validate() error {
	var errs []error

	for name, w := range map[string]Weights{"high": p.Weights.High, "mid": p.Weights.Mid, "low": p.Weights.Low} {
		if math.Abs(w.Sum()-1.0) > weightTolerance {
			errs = append(errs, fmt.Errorf("weights.%s must sum to 1.0, got %.4f", name, w.Sum()))
		}
		if w.Skills < 0 || w.Experience < 0 || w.Salary < 0 || w.Location < 0 {
			errs = append(errs, fmt.Errorf("weights.%s must be non-negative", name))
		}
	}
	if p.Density.LowDensityMax >= p.Density.HighDensityMin {
		errs = append(errs, fmt.Errorf("density.low_density_max (%.2f) must be below high_density_min (%.2f)",
			p.Density.LowDensityMax, p.Density.HighDensityMin))
	}
	if p.SkillGate != SkillGateHard && p.SkillGate != SkillGateSoft {
		errs = append(errs, fmt.Errorf("skill_gate must be %q or %q, got %q", SkillGateHard, SkillGateSoft, p.SkillGate))
	}
	for name, v := range map[string]float64{
		"no_skill_neutral":        p.NoSkillNeutral,
		"location_partial_credit": p.LocationPartialCredit,
		"min_match_threshold":     p.MinMatchThreshold,
		"error_score":             p.ErrorScore,
		"title_boost_cap":         p.TitleBoostCap,
		"strict_skill_floor":      p.StrictSkillFloor,
		"strict_location_floor":   p.StrictLocationFloor,
		"extra_skill_bonus_max":   p.ExtraSkillBonusMax,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %.4f", name, v))
		}
	}
	for name, v := range map[string]float64{
		"soft_skill_penalty":     p.SoftSkillPenalty,
		"title_penalty":          p.TitlePenalty,
		"strict_skill_factor":    p.StrictSkillFactor,
		"strict_location_factor": p.StrictLocationFactor,
	} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be within (0,1], got %.4f", name, v))
		}
	}
	if p.TitleBoost < 1 {
		errs = append(errs, fmt.Errorf("title_boost must be >= 1, got %.4f", p.TitleBoost))
	}
	if p.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("max_results must be positive, got %d", p.MaxResults))
	}
	if p.MaxCommuteKm <= 0 || p.EarthRadiusKm <= 0 {
		errs = append(errs, errors.New("max_commute_km and earth_radius_km must be positive"))
	}
	if p.MaxFieldBytes <= 0 || p.MaxListItems <= 0 {
		errs = append(errs, errors.New("max_field_bytes and max_list_items must be positive"))
	}
	for i, c := range p.TitleCategories {
		if c.Label == "" || len(c.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("title_categories[%d] needs a label and keywords", i))
		}
	}

	return errors.Join(errs...)
}
