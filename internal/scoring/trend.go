package scoring

// Trend classifies recent performance against the window before it.
type Trend string

const (
	TrendImproving        Trend = "improving"
	TrendDeclining        Trend = "declining"
	TrendStable           Trend = "stable"
	TrendInsufficientData Trend = "insufficient_data"
)

// TrendWindow is the number of submissions in each compared window.
const TrendWindow = 3

// ClassifyTrend compares the mean of the last three percentages with the
// mean of the three before them. percentages must be oldest first.
func ClassifyTrend(percentages []float64, tolerance float64) Trend {
	n := len(percentages)
	if n < 2*TrendWindow {
		return TrendInsufficientData
	}
	recent := Mean(percentages[n-TrendWindow:])
	previous := Mean(percentages[n-2*TrendWindow : n-TrendWindow])
	switch diff := recent - previous; {
	case diff > tolerance:
		return TrendImproving
	case diff < -tolerance:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// Mean is the arithmetic mean, 0 for an empty slice.
func Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
