package matching

import (
	"math"
	"sort"
)

const percentageEpsilon = 1e-9

// Percentage 分数转整数百分比，截断而非四舍五入。
//
// 与直接 int(score*100) 有意不同：先加 epsilon 吸收二进制误差，
// 因此 0.29 得到 29，而 int(0.29*100) 是 28。只有 score*100 比整数小不到 epsilon 时两者才不同。
func Percentage(score float64) int {
	if math.IsNaN(score) || score <= 0 {
		return 0
	}
	if score >= 1 {
		return 100
	}
	return int(math.Floor(score*100 + percentageEpsilon))
}

// candidate 打分后待排序的岗位
type candidate struct {
	index  int
	result MatchResult
}

// Ranker 阈值过滤、排序、截断
type Ranker struct {
	threshold  float64
	maxResults int
}

func NewRanker(threshold float64, maxResults int) *Ranker {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Ranker{threshold: threshold, maxResults: maxResults}
}

// Rank 分数降序，同分按岗位 ID 升序，再按输入顺序
func (r *Ranker) Rank(cands []candidate) []MatchResult {
	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if c.result.MatchScore >= r.threshold {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(a, b int) bool {
		ra, rb := kept[a].result, kept[b].result
		if ra.MatchScore != rb.MatchScore {
			return ra.MatchScore > rb.MatchScore
		}
		if ra.ID != rb.ID {
			return ra.ID < rb.ID
		}
		return kept[a].index < kept[b].index
	})
	if len(kept) > r.maxResults {
		kept = kept[:r.maxResults]
	}
	out := make([]MatchResult, len(kept))
	for i, c := range kept {
		out[i] = c.result
	}
	return out
}
