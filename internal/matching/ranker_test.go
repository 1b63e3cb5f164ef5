package matching

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercentage(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{
		{0, 0},
		{0.29, 29},
		{0.57, 57},
		{0.999, 99},
		{0.99, 99},
		{0.6299999, 62},
		{0.62, 62},
		{1, 100},
		{1.5, 100},
		{-0.2, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percentage(tt.score), "Percentage(%v)", tt.score)
	}
}

func TestPercentageAbsorbsFloatError(t *testing.T) {
	for _, score := range []float64{0.29, 0.57} {
		assert.Equal(t, int(score*100)+1, Percentage(score), "Percentage(%v) 不受二进制误差影响", score)
	}
	for _, score := range []float64{0.5, 0.625, 0.81, 0.333} {
		assert.Equal(t, int(score*100), Percentage(score), "Percentage(%v) 与直接截断一致", score)
	}
}

func cand(index int, id string, score float64) candidate {
	return candidate{index: index, result: MatchResult{ID: id, MatchScore: score, MatchPercentage: Percentage(score)}}
}

func TestRankThresholdAndOrder(t *testing.T) {
	r := NewRanker(0.62, 20)

	out := r.Rank([]candidate{
		cand(0, "job-c", 0.7),
		cand(1, "job-a", 0.61999),
		cand(2, "job-b", 0.9),
		cand(3, "job-a2", 0.7),
		cand(4, "job-d", 0.62),
	})

	ids := make([]string, 0, len(out))
	for _, m := range out {
		ids = append(ids, m.ID)
		assert.GreaterOrEqual(t, m.MatchScore, 0.62)
	}
	assert.Equal(t, []string{"job-b", "job-a2", "job-c", "job-d"}, ids, "同分按 ID 升序")
}

func TestRankDuplicateIDsKeepInputOrder(t *testing.T) {
	r := NewRanker(0, 20)
	first := cand(0, "dup", 0.8)
	first.result.Title = "first"
	second := cand(1, "dup", 0.8)
	second.result.Title = "second"

	out := r.Rank([]candidate{second, first})
	require.Len(t, out, 2)
	assert.Equal(t, "first", out[0].Title)
}

func TestRankCap(t *testing.T) {
	r := NewRanker(0, 5)
	var cands []candidate
	for i := 0; i < 30; i++ {
		cands = append(cands, cand(i, fmt.Sprintf("job-%02d", i), float64(i)/30))
	}

	out := r.Rank(cands)
	require.Len(t, out, 5)
	assert.Equal(t, "job-29", out[0].ID)
	assert.Equal(t, "job-25", out[4].ID)
}

func TestRankEmpty(t *testing.T) {
	out := NewRanker(0.62, 20).Rank(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
