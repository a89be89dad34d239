// Package anomaly derives per-address behavioral features from the
// transaction graph, scores them with an outlier detector, and writes
// normalized risk scores back to the store in batches.
package anomaly

import (
	"github.com/rawblock/ethergraph-engine/internal/graph"
)

const secondsPerDay = 86400.0

// FeatureCount is the width of the feature matrix.
const FeatureCount = 5

// Features flattens one aggregate row into the detector's feature vector:
// [inCount, outCount, avgValue, uniqueCounterparties, txRate].
func Features(row graph.FeatureRow) []float64 {
	return []float64{
		float64(row.InCount),
		float64(row.OutCount),
		avgValue(row),
		float64(uniqueCounterparties(row)),
		txRate(row),
	}
}

// avgValue averages the incoming and outgoing mean transfer values. An
// address with traffic in only one direction contributes zero for the
// missing side rather than being skipped.
func avgValue(row graph.FeatureRow) float64 {
	return (row.AvgInValue + row.AvgOutValue) / 2
}

func uniqueCounterparties(row graph.FeatureRow) int {
	seen := make(map[string]bool, len(row.InNeighbors)+len(row.OutNeighbors))
	for _, n := range row.InNeighbors {
		if n != "" {
			seen[n] = true
		}
	}
	for _, n := range row.OutNeighbors {
		if n != "" {
			seen[n] = true
		}
	}
	return len(seen)
}

// txRate is transactions per active day. The active window spans the
// earliest to the latest observed timestamp across both directions, with a
// one-day floor so a burst of same-day activity is not divided by zero.
func txRate(row graph.FeatureRow) float64 {
	total := row.InCount + row.OutCount
	if total == 0 {
		return 0
	}

	minTS, maxTS := int64(0), int64(0)
	for _, ts := range []int64{row.InMinTS, row.InMaxTS, row.OutMinTS, row.OutMaxTS} {
		if ts <= 0 {
			continue
		}
		if minTS == 0 || ts < minTS {
			minTS = ts
		}
		if ts > maxTS {
			maxTS = ts
		}
	}
	if minTS == 0 {
		return 0
	}

	spanDays := float64(maxTS-minTS) / secondsPerDay
	if spanDays < 1 {
		spanDays = 1
	}
	return float64(total) / spanDays
}
