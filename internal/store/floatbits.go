package store

import "math"

func math32bits(f float32) uint32   { return math.Float32bits(f) }
func bits32float(u uint32) float32  { return math.Float32frombits(u) }
