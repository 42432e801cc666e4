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

package operator

import "github.com/launix-de/nbtsdb/status"

// Predicate is a per-value filter test, spec §4.4's leaf/sblock filter.
type Predicate func(v float64) bool

func GT(x float64) Predicate  { return func(v float64) bool { return v > x } }
func GE(x float64) Predicate  { return func(v float64) bool { return v >= x } }
func LT(x float64) Predicate  { return func(v float64) bool { return v < x } }
func LE(x float64) Predicate  { return func(v float64) bool { return v <= x } }
func EQ(x float64) Predicate  { return func(v float64) bool { return v == x } }
func InRange(lo, hi float64) Predicate {
	return func(v float64) bool { return v >= lo && v <= hi }
}

// Filter wraps src, emitting only points whose value satisfies pred. It
// keeps a small pending buffer so a source batch larger than the caller's
// requested n is never partially discarded.
type Filter struct {
	src  Operator
	pred Predicate

	pendTS  []uint64
	pendVal []float64
	pendPos int
	done    bool
}

func NewFilter(src Operator, pred Predicate) *Filter {
	return &Filter{src: src, pred: pred}
}

func (f *Filter) Direction() Direction { return f.src.Direction() }

func (f *Filter) Read(tsOut []uint64, valOut []float64, n int) (status.Status, int) {
	var tsBuf [64]uint64
	var valBuf [64]float64
	produced := 0
	for produced < n {
		if f.pendPos >= len(f.pendTS) {
			if f.done {
				break
			}
			st, m := f.src.Read(tsBuf[:], valBuf[:], len(tsBuf))
			if st != status.OK {
				f.done = true
				continue
			}
			f.pendTS = f.pendTS[:0]
			f.pendVal = f.pendVal[:0]
			for i := 0; i < m; i++ {
				if f.pred(valBuf[i]) {
					f.pendTS = append(f.pendTS, tsBuf[i])
					f.pendVal = append(f.pendVal, valBuf[i])
				}
			}
			f.pendPos = 0
			continue
		}
		tsOut[produced] = f.pendTS[f.pendPos]
		valOut[produced] = f.pendVal[f.pendPos]
		f.pendPos++
		produced++
	}
	if produced == 0 {
		return status.NoData, 0
	}
	return status.OK, produced
}
