package mlmodels

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Linear-regression training defaults.
const (
	DefaultIterations   = 800
	DefaultLearningRate = 0.05
	DefaultLambda       = 0.5
)

// LinearRegression predicts kernel runtime as a linear function of the
// (polynomially expanded, normalized) parameter values. Training is batch
// gradient descent with L2 regularization; the bias term is not
// regularized.
type LinearRegression struct {
	Iterations   int
	LearningRate float64
	Lambda       float64

	pipeline featurePipeline
	theta    *mat.VecDense
}

// NewLinearRegression creates a model with the default training schedule
// and second-order polynomial features.
func NewLinearRegression() *LinearRegression {
	return &LinearRegression{
		Iterations:   DefaultIterations,
		LearningRate: DefaultLearningRate,
		Lambda:       DefaultLambda,
		pipeline:     featurePipeline{degree: 2},
	}
}

// Train fits the model to measured samples by batch gradient descent.
func (lr *LinearRegression) Train(x [][]float64, y []float64) error {
	if len(x) == 0 || len(x) != len(y) {
		return fmt.Errorf("invalid training set: %d samples, %d targets", len(x), len(y))
	}
	if lr.pipeline.degree == 0 {
		lr.pipeline.degree = 2
	}

	expanded := make([][]float64, len(x))
	for i, row := range x {
		expanded[i] = lr.pipeline.expand(row)
	}
	lr.pipeline.fit(expanded)

	features, err := lr.designMatrix(x)
	if err != nil {
		return err
	}
	m, n := features.Dims()

	target := mat.NewVecDense(m, append([]float64(nil), y...))
	lr.theta = mat.NewVecDense(n, nil)

	residual := mat.NewVecDense(m, nil)
	gradient := mat.NewVecDense(n, nil)
	for iter := 0; iter < lr.Iterations; iter++ {
		// residual = X*theta - y
		residual.MulVec(features, lr.theta)
		residual.SubVec(residual, target)

		// gradient = (1/m) X^T residual + (lambda/m) theta
		gradient.MulVec(features.T(), residual)
		gradient.ScaleVec(1.0/float64(m), gradient)
		for j := 0; j < n-1; j++ { // bias term unregularized
			gradient.SetVec(j, gradient.AtVec(j)+lr.Lambda/float64(m)*lr.theta.AtVec(j))
		}

		gradient.ScaleVec(lr.LearningRate, gradient)
		lr.theta.SubVec(lr.theta, gradient)
	}
	return nil
}

// Validate computes the mean-squared error over a held-out split.
func (lr *LinearRegression) Validate(x [][]float64, y []float64) (float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return 0, fmt.Errorf("invalid validation set: %d samples, %d targets", len(x), len(y))
	}
	predicted := make([]float64, len(x))
	for i, row := range x {
		p, err := lr.Predict(row)
		if err != nil {
			return 0, err
		}
		predicted[i] = p
	}
	return meanSquaredError(predicted, y), nil
}

// Predict returns the modelled runtime for one raw feature vector.
func (lr *LinearRegression) Predict(x []float64) (float64, error) {
	if lr.theta == nil {
		return 0, fmt.Errorf("model not trained")
	}
	row, err := lr.pipeline.apply(x)
	if err != nil {
		return 0, err
	}
	return mat.Dot(mat.NewVecDense(len(row), row), lr.theta), nil
}

// designMatrix builds the m-by-n feature matrix (expanded, normalized,
// bias column last).
func (lr *LinearRegression) designMatrix(x [][]float64) (*mat.Dense, error) {
	first, err := lr.pipeline.apply(x[0])
	if err != nil {
		return nil, err
	}
	features := mat.NewDense(len(x), len(first), nil)
	features.SetRow(0, first)
	for i := 1; i < len(x); i++ {
		row, err := lr.pipeline.apply(x[i])
		if err != nil {
			return nil, err
		}
		features.SetRow(i, row)
	}
	return features, nil
}
