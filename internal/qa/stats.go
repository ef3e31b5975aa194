package qa

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/logging"
)

// StatsComputer derives descriptive statistics from a built dataset:
// split sizes and ratios, prompt-type and slice coverage, and the
// response-length distribution.
type StatsComputer struct {
	split config.SplitRatios
	log   *logging.Logger
	now   func() time.Time
}

func NewStatsComputer(split config.SplitRatios, log *logging.Logger) *StatsComputer {
	return &StatsComputer{split: split, log: log, now: time.Now}
}

// Compute returns the stats report for the dataset. Deterministic for a
// given dataset apart from CreatedAt.
func (s *StatsComputer) Compute(ctx context.Context, art *dataset.Artifact) *StatsReport {
	report := &StatsReport{
		CreatedAt:   s.now().UTC(),
		SourceRunID: art.RunID,
		NumRows:     len(art.Records),
		SplitSizes:  splitSizes(art.Records),
		ConfiguredRatios: map[string]float64{
			string(dataset.SplitTrain): s.split.Train,
			string(dataset.SplitVal):   s.split.Val,
			string(dataset.SplitTest):  s.split.Test,
		},
		PromptTypeCounts: make(map[string]int),
		SliceCounts:      make(map[string]map[string]int, len(SliceDimensions)),
	}

	report.ActualRatios = make(map[string]float64, len(report.SplitSizes))
	for split, n := range report.SplitSizes {
		if report.NumRows > 0 {
			report.ActualRatios[split] = float64(n) / float64(report.NumRows)
		} else {
			report.ActualRatios[split] = 0
		}
	}

	for _, dim := range SliceDimensions {
		report.SliceCounts[dim] = make(map[string]int)
	}

	lengths := make([]int, 0, len(art.Records))
	for _, rec := range art.Records {
		report.PromptTypeCounts[rec.Context.PromptType]++
		for _, dim := range SliceDimensions {
			group := rec.Context.SliceTags.Dimension(dim)
			if group == "" {
				group = "unknown"
			}
			report.SliceCounts[dim][group]++
		}
		lengths = append(lengths, len(rec.Response))
	}
	report.ResponseLength = lengthStats(lengths)

	s.log.Info(ctx, "stats computed",
		zap.Int("num_rows", report.NumRows),
		zap.Float64("mean_response_len", report.ResponseLength.Mean))
	return report
}

func lengthStats(lengths []int) LengthStats {
	if len(lengths) == 0 {
		return LengthStats{}
	}
	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	sum := 0
	for _, n := range sorted {
		sum += n
	}
	return LengthStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: float64(sum) / float64(len(sorted)),
		P50:  percentile(sorted, 0.50),
		P95:  percentile(sorted, 0.95),
	}
}

// percentile interpolates linearly between the closest ranks of a sorted
// slice.
func percentile(sorted []int, p float64) float64 {
	if len(sorted) == 1 {
		return float64(sorted[0])
	}
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return float64(sorted[lo])
	}
	frac := rank - float64(lo)
	return float64(sorted[lo]) + frac*float64(sorted[hi]-sorted[lo])
}
