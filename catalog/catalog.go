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

// Package catalog is the metadata-catalog external boundary of spec §1:
// the real deployment backs it with a SQLite-based store (out of CORE
// scope), so this package only defines the interface the engine's
// metadata-sync worker persists through, plus a small file-backed
// implementation good enough for tests and single-process deployments.
package catalog

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/launix-de/nbtsdb/blockstore"
)

// SeriesRecord is one series' persisted metadata: its name, payload kind
// (0 = float, 1 = blob -- mirrors nbtree.PayloadKind without importing it,
// since the catalog boundary predates and outlives any one tree format)
// and its last known rescue-point vector.
type SeriesRecord struct {
	Name  string                 `json:"name"`
	Kind  uint8                  `json:"kind"`
	Roots []blockstore.LogicAddr `json:"roots"`
}

// MetadataCatalog is what the engine's metadata-sync worker persists
// rescue points and series names through transactionally (spec §5).
type MetadataCatalog interface {
	// Sync persists the given series records (name + rescue points) as
	// one transaction, and is the point at which a committed append
	// becomes durable across a crash.
	Sync(records map[uint64]SeriesRecord) error
	// Load returns every series record known at open time.
	Load() (map[uint64]SeriesRecord, error)
}

// FileCatalog is a JSON-file-backed MetadataCatalog: a single file
// rewritten atomically (temp file + rename), the same durability pattern
// the teacher's schema persistence and blockstore.MetaVolume both use.
type FileCatalog struct {
	mu   sync.Mutex
	path string
}

func OpenFile(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

func (c *FileCatalog) Load() (map[uint64]SeriesRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[uint64]SeriesRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := map[uint64]SeriesRecord{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *FileCatalog) Sync(records map[uint64]SeriesRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing := map[uint64]SeriesRecord{}
	if data, err := os.ReadFile(c.path); err == nil {
		json.Unmarshal(data, &existing)
	}
	for id, rec := range records {
		existing[id] = rec
	}

	data, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, c.path)
}
