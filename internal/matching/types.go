package matching

// Record 原始输入记录，通常来自 JSON 解码，字段允许多种别名
type Record map[string]any

// Tier 权重档位
type Tier string

const (
	TierHigh Tier = "high"
	TierMid  Tier = "mid"
	TierLow  Tier = "low"
)

// Coordinates 经纬度 (度)
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ProfileSignals 从候选人记录中提取出的类型化信号
type ProfileSignals struct {
	Title      string
	Skills     map[string]float64 // 规范化技能 -> 熟练度权重
	Licenses   []string           // 规范化证照
	Years      float64            // 折算后的有效年限
	Salary     float64            // 期望薪资
	Location   string             // 规范化地点
	Coords     *Coordinates
	Remote     bool
	NightShift bool
}

// JobSignals 从岗位记录中提取出的类型化信号
type JobSignals struct {
	ID              string
	Title           string
	Company         string
	LocationText    string // 原样展示
	Location        string // 规范化地点
	Coords          *Coordinates
	Skills          map[string]float64
	Requirements    []string // 原样展示
	Years           float64
	Salary          float64
	Remote          bool
	NightShift      bool
	LicenseRequired bool
	Active          bool
}

// MatchResult 单个岗位的匹配输出
type MatchResult struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Company         string     `json:"company"`
	Location        string     `json:"location"`
	Salary          float64    `json:"salary"`
	Requirements    []string   `json:"requirements"`
	Remote          bool       `json:"remote"`
	MatchScore      float64    `json:"match_score"`
	MatchPercentage int        `json:"match_percentage"`
	Breakdown       *Breakdown `json:"breakdown,omitempty"`
}

// Breakdown 评分过程中的各中间值，用于排查
type Breakdown struct {
	Density         float64 `json:"density"`
	Tier            Tier    `json:"tier"`
	Weights         Weights `json:"weights"`
	Skills          float64 `json:"skills"`
	SkillOverlap    int     `json:"skill_overlap"`
	Experience      float64 `json:"experience"`
	Salary          float64 `json:"salary"`
	Location        float64 `json:"location"`
	Raw             float64 `json:"raw"`
	TitleMultiplier float64 `json:"title_multiplier"`
	SkillGate       bool    `json:"skill_gate,omitempty"`
	StrictSkill     bool    `json:"strict_skill,omitempty"`
	StrictLocation  bool    `json:"strict_location,omitempty"`
	Fallback        bool    `json:"fallback,omitempty"`
	Final           float64 `json:"final"`
}
