package qa

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/dataset"
	"github.com/fitsenseai/distill/internal/logging"
)

// BiasSlicer compares a per-record quality proxy across the groups of
// each slice dimension. A dimension is flagged when the gap between its
// best and worst sufficiently populated group exceeds the configured
// threshold. The proxy is mean response length; without reference answers
// it is the only signal available at dataset build time.
type BiasSlicer struct {
	cfg config.BiasConfig
	log *logging.Logger
	now func() time.Time
}

func NewBiasSlicer(cfg config.BiasConfig, log *logging.Logger) *BiasSlicer {
	return &BiasSlicer{cfg: cfg, log: log, now: time.Now}
}

// Slice computes per-dimension group statistics and flags dimensions
// whose gap exceeds the threshold. Groups smaller than MinGroupSize are
// reported but excluded from gap computation.
func (b *BiasSlicer) Slice(ctx context.Context, art *dataset.Artifact) *BiasReport {
	report := &BiasReport{
		CreatedAt:    b.now().UTC(),
		SourceRunID:  art.RunID,
		NumRows:      len(art.Records),
		QualityProxy: b.cfg.QualityProxy,
		Threshold:    b.cfg.GapThreshold,
		MinGroupSize: b.cfg.MinGroupSize,
		Gaps:         make(map[string]DimensionGap, len(SliceDimensions)),
	}

	for _, dim := range SliceDimensions {
		gap := b.sliceDimension(dim, art.Records)
		report.Gaps[dim] = gap
		if gap.MaxGap > b.cfg.GapThreshold {
			report.Flagged = append(report.Flagged, dim)
		}
	}
	sort.Strings(report.Flagged)
	report.BiasAlert = len(report.Flagged) > 0

	if report.BiasAlert {
		b.log.Warn(ctx, "bias gap over threshold",
			zap.Strings("dimensions", report.Flagged),
			zap.Float64("threshold", b.cfg.GapThreshold))
	} else {
		b.log.Info(ctx, "no bias gap over threshold", zap.Int("num_rows", report.NumRows))
	}
	return report
}

func (b *BiasSlicer) sliceDimension(dim string, records []dataset.Record) DimensionGap {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range records {
		group := rec.Context.SliceTags.Dimension(dim)
		if group == "" {
			group = "unknown"
		}
		sums[group] += float64(len(rec.Response))
		counts[group]++
	}

	groups := make([]GroupStat, 0, len(counts))
	for group, n := range counts {
		groups = append(groups, GroupStat{Group: group, N: n, Stat: sums[group] / float64(n)})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Group < groups[j].Group })

	// Gap over sufficiently populated groups only; tiny groups produce
	// noisy means.
	var lo, hi float64
	first := true
	for _, g := range groups {
		if g.N < b.cfg.MinGroupSize {
			continue
		}
		if first {
			lo, hi = g.Stat, g.Stat
			first = false
			continue
		}
		if g.Stat < lo {
			lo = g.Stat
		}
		if g.Stat > hi {
			hi = g.Stat
		}
	}
	return DimensionGap{Groups: groups, MaxGap: hi - lo}
}
