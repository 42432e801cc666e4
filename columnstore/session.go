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

package columnstore

import (
	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

// Session is a single writer thread's view of the column store: a private
// cache populated lazily on first write of an id, per spec §4.6. Each
// session also owns a private input-log shard index (assigned once at
// creation, per SPEC_FULL.md's redesign of hot-path thread-id hashing).
type Session struct {
	cs       *ColumnStore
	cache    map[uint64]*nbtree.ExtentsList
	ShardIdx int
}

func NewSession(cs *ColumnStore, shardIdx int) *Session {
	return &Session{cs: cs, cache: map[uint64]*nbtree.ExtentsList{}, ShardIdx: shardIdx}
}

// Write resolves id through the session cache first; a miss falls back to
// the column store (which takes its table lock internally) and populates
// the cache.
func (s *Session) Write(id uint64, ts uint64, value float64, blob []byte, kind nbtree.PayloadKind) (status.Status, []blockstore.LogicAddr) {
	e, ok := s.cache[id]
	if !ok {
		e = s.cs.lookupOrCreate(id, kind)
		s.cache[id] = e
	}
	st, flush := e.Append(ts, value, blob)
	if st != status.OK {
		return st, nil
	}
	if flush {
		return status.OK, e.GetRoots()
	}
	return status.OK, nil
}

// Close flushes every series this session ever touched.
func (s *Session) Close() map[uint64][]blockstore.LogicAddr {
	out := map[uint64][]blockstore.LogicAddr{}
	for id, e := range s.cache {
		out[id] = e.Close()
	}
	return out
}
