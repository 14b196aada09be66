// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scale maps a sample range onto [0, 1], the normalize-then-
// bucket step package enrich and package jsonexport both use to turn
// a span of raw values into histogram bucket indices. Trimmed from
// the teacher's chart-axis scaling package down to the one scale type
// (Linear) either caller actually needs.
package scale

// Linear maps an input range linearly onto [0, 1].
type Linear struct {
	min, width float64
}

// NewLinear returns a linear scale spanning the min/max of input.
func NewLinear(input []float64) Linear {
	min, max := minmax(input)
	return Linear{min, max - min}
}

// Of maps x into [0, 1] relative to the scale's input range. Callers
// must not construct a Linear whose width is zero (a single-valued
// input range); Of would divide by zero.
func (s Linear) Of(x float64) float64 {
	return (x - s.min) / s.width
}
