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

package engine

import (
	"sort"
	"strings"
	"sync"
)

// SeriesIndex is the series-name/tag matcher boundary of spec §1/§6: the
// core resolves names to ids and where-clauses to id lists through it, and
// never inspects tag storage directly. It extends query.SeriesIndex with
// the id<->name operations spec §6.5 exposes (init_series_id,
// get_series_ids, get_series_name) plus the suggest/search passthroughs of
// SUPPLEMENTED FEATURES.
type SeriesIndex interface {
	// InitSeriesID assigns (or looks up) the id for an exact series name.
	InitSeriesID(name string) (uint64, error)
	// AdoptSeriesID registers name under a specific, already-assigned id
	// -- used only while recovering from the catalog or WAL, where the
	// id is fixed by previously-persisted rescue points and must not be
	// reassigned. A no-op if the id is already registered under name.
	AdoptSeriesID(id uint64, name string) error
	// GetSeriesIDs resolves a compound name (possibly with tag wildcards)
	// to every matching id.
	GetSeriesIDs(compoundName string) ([]uint64, error)
	// GetSeriesName is the inverse of InitSeriesID.
	GetSeriesName(id uint64) (string, error)

	// Resolve turns an already-decoded where-clause plus an optional
	// group-by tag list into matching ids and, when group-by is
	// non-empty, a parallel destination-group id per matched series.
	Resolve(where map[string][]string, groupBy []string) (ids []uint64, destGroup []uint64, err error)

	// Suggest and Search answer the metadata-only query kinds of spec
	// §6.5 (meta:names, metric-names, tag-names, tag-values) without
	// touching the column store.
	Suggest(text string) ([]string, error)
	Search(text string) ([]string, error)
}

// seriesEntry is one registered series: its full name plus the parsed
// metric/tag-value pairs used by Resolve's where-clause matching.
type seriesEntry struct {
	id   uint64
	name string
	tags map[string]string
}

// MemSeriesIndex is a simple in-memory SeriesIndex, adequate for tests and
// single-process deployments where the real tag matcher is out of CORE
// scope (spec §1). Names are either a bare metric ("cpu.load") or a
// metric plus tag=value pairs ("cpu.load tag=value tag2=value2"), matching
// the compound-name convention spec.md's glossary describes for
// get_series_ids.
type MemSeriesIndex struct {
	mu      sync.Mutex
	byName  map[string]uint64
	byID    map[uint64]*seriesEntry
	nextID  uint64
}

func NewMemSeriesIndex() *MemSeriesIndex {
	return &MemSeriesIndex{
		byName: map[string]uint64{},
		byID:   map[uint64]*seriesEntry{},
		nextID: 1,
	}
}

func parseCompoundName(name string) (metric string, tags map[string]string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", nil
	}
	metric = parts[0]
	tags = map[string]string{}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) == 2 {
			tags[kv[0]] = kv[1]
		}
	}
	return metric, tags
}

func (x *MemSeriesIndex) InitSeriesID(name string) (uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if id, ok := x.byName[name]; ok {
		return id, nil
	}
	id := x.nextID
	x.nextID++
	metric, tags := parseCompoundName(name)
	x.byName[name] = id
	x.byID[id] = &seriesEntry{id: id, name: name, tags: mergeTags(metric, tags)}
	return id, nil
}

func mergeTags(metric string, tags map[string]string) map[string]string {
	out := map[string]string{"__metric__": metric}
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func (x *MemSeriesIndex) AdoptSeriesID(id uint64, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing, ok := x.byID[id]; ok {
		if existing.name != name {
			return errConflict
		}
		return nil
	}
	metric, tags := parseCompoundName(name)
	x.byName[name] = id
	x.byID[id] = &seriesEntry{id: id, name: name, tags: mergeTags(metric, tags)}
	if id >= x.nextID {
		x.nextID = id + 1
	}
	return nil
}

func (x *MemSeriesIndex) GetSeriesName(id uint64) (string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.byID[id]
	if !ok {
		return "", errNotFound
	}
	return e.name, nil
}

func (x *MemSeriesIndex) GetSeriesIDs(compoundName string) ([]uint64, error) {
	metric, tags := parseCompoundName(compoundName)
	where := map[string][]string{}
	for k, v := range tags {
		where[k] = []string{v}
	}
	if metric != "" {
		where["__metric__"] = []string{metric}
	}
	ids, _, err := x.Resolve(where, nil)
	return ids, err
}

func (x *MemSeriesIndex) Resolve(where map[string][]string, groupBy []string) ([]uint64, []uint64, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	entries := make([]*seriesEntry, 0, len(x.byID))
	for _, e := range x.byID {
		if matches(e, where) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

	ids := make([]uint64, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	if len(groupBy) == 0 {
		return ids, nil, nil
	}

	destGroup := make([]uint64, len(entries))
	groupKeys := map[string]uint64{}
	var nextGroup uint64 = 1
	for i, e := range entries {
		key := groupKey(e, groupBy)
		g, ok := groupKeys[key]
		if !ok {
			g = nextGroup
			nextGroup++
			groupKeys[key] = g
		}
		destGroup[i] = g
	}
	return ids, destGroup, nil
}

func groupKey(e *seriesEntry, groupBy []string) string {
	var b strings.Builder
	for _, tag := range groupBy {
		b.WriteString(tag)
		b.WriteByte('=')
		b.WriteString(e.tags[tag])
		b.WriteByte(';')
	}
	return b.String()
}

func matches(e *seriesEntry, where map[string][]string) bool {
	for tag, values := range where {
		v, ok := e.tags[tag]
		if !ok {
			return false
		}
		found := false
		for _, want := range values {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Suggest lists series names with the given prefix (spec's "metric-names"
// / "meta:names" target).
func (x *MemSeriesIndex) Suggest(text string) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []string
	for name := range x.byName {
		if strings.HasPrefix(name, text) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Search lists distinct tag values across every registered series whose
// name contains text (spec's "tag-names"/"tag-values" target).
func (x *MemSeriesIndex) Search(text string) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range x.byID {
		if !strings.Contains(e.name, text) {
			continue
		}
		for k, v := range e.tags {
			entry := k + "=" + v
			if !seen[entry] {
				seen[entry] = true
				out = append(out, entry)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}
