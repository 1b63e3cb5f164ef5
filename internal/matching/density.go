package matching

// DensityClassifier 根据岗位要求的丰富程度选择权重档位
type DensityClassifier struct {
	rules   DensityRules
	weights WeightProfiles
}

func NewDensityClassifier(rules DensityRules, weights WeightProfiles) *DensityClassifier {
	return &DensityClassifier{rules: rules, weights: weights}
}

// Density 每个技能 +PerSkill，年限与薪资按阶梯累加
func (d *DensityClassifier) Density(j JobSignals) float64 {
	r := d.rules
	density := float64(len(j.Skills)) * r.PerSkill
	if j.Years > 0 {
		density += r.YearsAny
	}
	if j.Years > 3 {
		density += r.YearsOver3
	}
	if j.Years > 6 {
		density += r.YearsOver6
	}
	if j.Salary > r.SalaryMidFloor {
		density += r.SalaryMidBonus
	}
	if j.Salary > r.SalaryHighFloor {
		density += r.SalaryHighBonus
	}
	return density
}

// Classify high: >= HighDensityMin，low: <= LowDensityMax，其余 mid
func (d *DensityClassifier) Classify(density float64) Tier {
	switch {
	case density >= d.rules.HighDensityMin:
		return TierHigh
	case density <= d.rules.LowDensityMax:
		return TierLow
	default:
		return TierMid
	}
}

func (d *DensityClassifier) WeightsFor(t Tier) Weights {
	switch t {
	case TierHigh:
		return d.weights.High
	case TierLow:
		return d.weights.Low
	default:
		return d.weights.Mid
	}
}
