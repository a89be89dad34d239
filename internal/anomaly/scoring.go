package anomaly

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/ethergraph-engine/internal/graph"
	"github.com/rawblock/ethergraph-engine/pkg/models"
)

const (
	DefaultContamination = 0.05
	MinContamination     = 0.01
	MaxContamination     = 0.3

	// smallPopulation caps contamination for sparse graphs where a high
	// quantile would flag most of the few addresses present.
	smallPopulation        = 10
	smallPopulationCeiling = 0.2

	// ScoreBatchSize bounds a single write-back statement.
	ScoreBatchSize = 50

	DefaultAlertLimit = 25
	MaxAlertLimit     = 200

	// riskRangeFloor keeps the min-max inversion finite when every raw
	// score is identical; the numerator is zero in that case, so all risks
	// collapse to zero.
	riskRangeFloor = 1e-9
)

// Store is the slice of the graph adapter the pipeline needs.
type Store interface {
	FeatureRows(ctx context.Context) ([]graph.FeatureRow, error)
	WriteScores(ctx context.Context, batch []models.AddressScore, analyzedAt time.Time) error
	Alerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// Pipeline runs feature extraction, detection, normalization, and batched
// persistence as one unit.
type Pipeline struct {
	store       Store
	newDetector func(contamination float64) Detector
	now         func() time.Time
}

func New(store Store) *Pipeline {
	return &Pipeline{
		store:       store,
		newDetector: func(c float64) Detector { return NewIsolationForest(c) },
		now:         time.Now,
	}
}

// NewWithDetector builds a pipeline around a custom detector constructor.
func NewWithDetector(store Store, newDetector func(contamination float64) Detector) *Pipeline {
	p := New(store)
	p.newDetector = newDetector
	return p
}

// RunScoring scores every address in the graph and persists the results.
// The returned slice mirrors what was written. An empty graph is a no-op.
func (p *Pipeline) RunScoring(ctx context.Context, contamination float64) ([]models.AddressScore, error) {
	rows, err := p.store.FeatureRows(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		log.Print("[anomaly] no addresses to score")
		return nil, nil
	}

	c := clampContamination(contamination, len(rows))

	matrix := make([][]float64, len(rows))
	for i, row := range rows {
		matrix[i] = Features(row)
	}

	detector := p.newDetector(c)
	if err := detector.Fit(matrix); err != nil {
		return nil, err
	}
	risks := normalizeRisk(detector.Scores())
	flags := detector.Anomalies()

	scores := make([]models.AddressScore, len(rows))
	for i, row := range rows {
		scores[i] = models.AddressScore{
			Address:              row.Address,
			ClusterID:            row.ClusterID,
			RiskScore:            risks[i],
			IsAnomaly:            flags[i],
			TxRate:               txRate(row),
			UniqueCounterparties: uniqueCounterparties(row),
		}
	}

	analyzedAt := p.now().UTC()
	for start := 0; start < len(scores); start += ScoreBatchSize {
		end := start + ScoreBatchSize
		if end > len(scores) {
			end = len(scores)
		}
		if err := p.store.WriteScores(ctx, scores[start:end], analyzedAt); err != nil {
			return nil, err
		}
	}

	anomalies := 0
	for _, f := range flags {
		if f {
			anomalies++
		}
	}
	log.Printf("[anomaly] scored %d addresses (anomalies=%d, contamination=%.3f)",
		len(scores), anomalies, c)

	return scores, nil
}

// FetchAlerts returns scored addresses ordered by risk, highest first.
func (p *Pipeline) FetchAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = DefaultAlertLimit
	}
	if limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	return p.store.Alerts(ctx, limit)
}

func clampContamination(requested float64, population int) float64 {
	c := requested
	if c == 0 {
		c = DefaultContamination
	}
	if c < MinContamination {
		c = MinContamination
	}
	if c > MaxContamination {
		c = MaxContamination
	}
	if population < smallPopulation && c > smallPopulationCeiling {
		c = smallPopulationCeiling
	}
	return c
}

// normalizeRisk inverts raw detector scores onto [0,1]: the most anomalous
// raw score (the minimum) maps to risk 1, the least to 0.
func normalizeRisk(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	lo, hi := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	span := hi - lo
	if span < riskRangeFloor {
		span = riskRangeFloor
	}

	risks := make([]float64, len(raw))
	for i, s := range raw {
		r := (hi - s) / span
		if r < 0 {
			r = 0
		}
		if r > 1 {
			r = 1
		}
		risks[i] = r
	}
	return risks
}
