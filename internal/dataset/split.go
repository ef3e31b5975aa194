package dataset

import (
	"strconv"
	"strings"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/pipeline"
	"github.com/fitsenseai/distill/internal/query"
)

// Bucket maps a record deterministically into [0, 1) from its identity and
// the seed alone. Because the value never depends on dataset size or
// iteration order, adding new records can never move an existing record to
// a different split.
func Bucket(recordID string, seed int64) float64 {
	return pipeline.UnitInterval(recordID + ":" + strconv.FormatInt(seed, 10))
}

// AssignSplit maps a bucket value into train/val/test by cumulative ratio
// ranges: [0, train) -> train, [train, train+val) -> val, rest -> test.
func AssignSplit(bucket float64, ratios config.SplitRatios) Split {
	switch {
	case bucket < ratios.Train:
		return SplitTrain
	case bucket < ratios.Train+ratios.Val:
		return SplitVal
	default:
		return SplitTest
	}
}

// StrataKey composes the stratification key for a record from the
// configured key names. prompt_type reads from the record's context; every
// other name reads from the slice tags. Unknown names contribute "unknown"
// rather than failing, matching how absent tags are treated downstream.
func StrataKey(keys []string, promptType string, tags query.SliceTags) string {
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		var v string
		if key == "prompt_type" {
			v = promptType
		} else {
			v = tags.Dimension(key)
		}
		if v == "" {
			v = "unknown"
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "|")
}
