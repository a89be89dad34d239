package anomaly

// Detector scores a feature matrix for outliers. Implementations fit once
// and expose raw scores where lower means more anomalous, plus the boolean
// classification at the fitted contamination level. The pipeline depends
// only on this interface so the model can be swapped without touching
// persistence or normalization.
type Detector interface {
	// Fit trains on the matrix. Rows are addresses, columns the feature
	// vector produced by Features.
	Fit(matrix [][]float64) error

	// Scores returns one raw score per input row. Lower is more anomalous.
	Scores() []float64

	// Anomalies returns one flag per input row. A row is anomalous only if
	// its score falls strictly below the contamination quantile, so a
	// uniform population flags nothing.
	Anomalies() []bool
}
