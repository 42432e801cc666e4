/*
Copyright (C) 2026  nbtsdb Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package materializer implements the cross-series tier-2 combinators of
// spec §4.5: Chain, Merge, Aggregate, AggregateCombiner, the series- and
// time-order group-aggregate variants, and Join. Every materializer emits
// self-describing Samples rather than raw (ts,value) pairs, since once more
// than one series is involved each emitted item must carry its own id.
package materializer

import "github.com/launix-de/nbtsdb/status"

// Kind tags which payload arm of Sample is meaningful.
type Kind int

const (
	KindValue Kind = iota
	KindBlob
	KindTuple
)

// Sample is the self-describing unit every tier-2 materializer emits, per
// spec §4.5's "self-describing samples of variable size". Tuple encodes
// the spec's "(bitmap | (tuple_size << 58))" packing as explicit fields
// instead of bit-packing into a float64, which Go has no good reason to
// hide behind bit tricks the way the original's C++ union did.
type Sample struct {
	ParamID uint64
	TS      uint64
	Kind    Kind
	Value   float64
	Blob    []byte
	Bitmap  uint64
	Tuple   []float64
}

// Materializer is the common tier-2 iterator contract: demand-driven,
// emitting into a caller-owned Sample slice. NO_DATA is the normal
// end-of-stream signal, per spec §4.5.
type Materializer interface {
	Read(dest []Sample, n int) (status.Status, int)
}
