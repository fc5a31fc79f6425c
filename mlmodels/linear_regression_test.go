package mlmodels

import (
	"math"
	"math/rand"
	"testing"
)

// Training on samples from a known linear function recovers the
// predictions to within the noise level.
func TestLinearRecovery(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const samples = 200
	const sigma = 0.01

	truth := func(x []float64) float64 {
		return 2.0*x[0] + 0.5*x[1] + 1.0
	}

	x := make([][]float64, samples)
	y := make([]float64, samples)
	for i := range x {
		x[i] = []float64{rng.Float64() * 4, rng.Float64() * 4}
		y[i] = truth(x[i]) + rng.NormFloat64()*sigma
	}

	lr := &LinearRegression{
		Iterations:   4000,
		LearningRate: 0.05,
		Lambda:       0.0,
		pipeline:     featurePipeline{degree: 1},
	}
	if err := lr.Train(x, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	var sumErr float64
	for trial := 0; trial < 50; trial++ {
		probe := []float64{rng.Float64() * 4, rng.Float64() * 4}
		p, err := lr.Predict(probe)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		sumErr += math.Abs(p - truth(probe))
	}
	if avg := sumErr / 50; avg > 0.1 {
		t.Errorf("average prediction error %f too large", avg)
	}
}

// The surrogate ranks the ground-truth argmin first for a quadratic cost
// over a small grid.
func TestSurrogateRanking(t *testing.T) {
	truth := func(p1, p2, p3 float64) float64 {
		return 2.0*p1 + 0.5*p2*p2 + p3
	}

	var x [][]float64
	var y []float64
	for _, p1 := range []float64{1, 2, 4, 8} {
		for _, p2 := range []float64{1, 2, 4} {
			for _, p3 := range []float64{1, 2, 4} {
				x = append(x, []float64{p1, p2, p3})
				y = append(y, truth(p1, p2, p3))
			}
		}
	}

	lr := NewLinearRegression()
	lr.Iterations = 20000
	lr.LearningRate = 0.1
	lr.Lambda = 0.1
	if err := lr.Train(x, y); err != nil {
		t.Fatalf("Train failed: %v", err)
	}

	bestIdx := -1
	bestPredicted := math.Inf(1)
	trueBestIdx := 0
	trueBest := math.Inf(1)
	for i, sample := range x {
		p, err := lr.Predict(sample)
		if err != nil {
			t.Fatalf("Predict failed: %v", err)
		}
		if p < bestPredicted {
			bestPredicted = p
			bestIdx = i
		}
		if y[i] < trueBest {
			trueBest = y[i]
			trueBestIdx = i
		}
	}
	if bestIdx != trueBestIdx {
		t.Errorf("top prediction is sample %v, ground-truth argmin is %v",
			x[bestIdx], x[trueBestIdx])
	}
}

func TestValidationCost(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	y := []float64{2, 4, 6, 8, 10, 12, 14, 16}

	lr := &LinearRegression{
		Iterations:   3000,
		LearningRate: 0.05,
		Lambda:       0.0,
		pipeline:     featurePipeline{degree: 1},
	}
	if err := lr.Train(x[:6], y[:6]); err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	cost, err := lr.Validate(x[6:], y[6:])
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if cost > 0.5 {
		t.Errorf("validation MSE %f too large for a noiseless linear target", cost)
	}
}

func TestPredictBeforeTrain(t *testing.T) {
	lr := NewLinearRegression()
	if _, err := lr.Predict([]float64{1}); err == nil {
		t.Error("expected error predicting with an untrained model")
	}
}

func TestPolynomialExpansion(t *testing.T) {
	fp := featurePipeline{degree: 2}
	out := fp.expand([]float64{2, 3})
	// raw (2,3), squares and product (4,6,9)
	expected := []float64{2, 3, 4, 6, 9}
	if len(out) != len(expected) {
		t.Fatalf("expected %d features, got %d", len(expected), len(out))
	}
	for i := range expected {
		if out[i] != expected[i] {
			t.Errorf("feature %d: expected %f, got %f", i, expected[i], out[i])
		}
	}
}

func TestNormalizationStatistics(t *testing.T) {
	fp := featurePipeline{degree: 1}
	expanded := [][]float64{{1}, {3}}
	fp.fit(expanded)

	if fp.means[0] != 2 {
		t.Errorf("expected mean 2, got %f", fp.means[0])
	}
	if fp.stddev[0] != 1 {
		t.Errorf("expected stddev 1, got %f", fp.stddev[0])
	}

	row, err := fp.apply([]float64{3})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	// normalized value then bias
	if row[0] != 1 || row[1] != 1 {
		t.Errorf("expected [1 1], got %v", row)
	}
}
