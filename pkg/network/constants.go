package network

import "math"

// Численные допуски
const (
	Epsilon = 1e-9

	// DefaultResidualTolerance допустимая невязка ‖Mx − b‖∞ для дерева
	DefaultResidualTolerance = 1e-6
)

// FloatEquals сравнивает два float64 с учётом Epsilon
func FloatEquals(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// FloatEqualsTol сравнивает два float64 с заданным допуском
func FloatEqualsTol(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// IsZero проверяет, равно ли значение нулю
func IsZero(v float64) bool {
	return math.Abs(v) < Epsilon
}

// IsFinite проверяет, что значение не NaN и не ±Inf
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
