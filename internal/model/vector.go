package model

import "math"

// Vector is a flat slice of float64 states or seeds.
type Vector []float64

func (v Vector) Clone() Vector {
	c := make(Vector, len(v))
	copy(c, v)
	return c
}

func (v Vector) Zero() {
	for i := range v {
		v[i] = 0
	}
}

func (v Vector) Norm() float64 {
	sum := 0.0
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

func (v Vector) Dot(o Vector) float64 {
	sum := 0.0
	for i := range v {
		sum += v[i] * o[i]
	}
	return sum
}

// AddScaled does v += a*o in place.
func (v Vector) AddScaled(a float64, o Vector) {
	for i := range v {
		v[i] += a * o[i]
	}
}

func (v Vector) Scale(a float64) {
	for i := range v {
		v[i] *= a
	}
}

func (v Vector) IsValid() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
