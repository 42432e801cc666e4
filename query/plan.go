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

package query

import (
	"encoding/json"

	"github.com/launix-de/nbtsdb/columnstore"
	"github.com/launix-de/nbtsdb/materializer"
	"github.com/launix-de/nbtsdb/operator"
	"github.com/launix-de/nbtsdb/status"
)

// SeriesIndex is the external series-name matcher boundary of spec §1/§6:
// the core resolves a where-clause to id lists through it and never
// inspects tag storage itself.
type SeriesIndex interface {
	// Resolve turns a where-clause (already JSON-decoded by the caller
	// into tag->values pairs) plus an optional group-by tag list into
	// the matching series ids, and -- when group-by is non-empty -- a
	// parallel destination-group id per matched series.
	Resolve(where map[string][]string, groupBy []string) (ids []uint64, destGroup []uint64, err error)
}

// Plan builds the materializer.Materializer (or, for a bare aggregate,
// the raw per-series AggResults) that answers req against cs, using idx
// to resolve the where-clause.
func Plan(req Request, cs *columnstore.ColumnStore, idx SeriesIndex) (materializer.Materializer, status.Status) {
	where, err := decodeWhere(req.Where)
	if err != nil {
		return nil, status.QueryParsingError
	}
	ids, destGroup, err := idx.Resolve(where, req.GroupBy)
	if err != nil {
		return nil, status.NotFound
	}
	if len(ids) == 0 {
		return nil, status.NoData
	}

	begin, end := req.Range.From, req.Range.To

	if len(req.Join) > 0 {
		sources := cs.Scan(ids, begin, end)
		return materializer.NewJoin(sources, req.OrderBy == OrderTime), status.OK
	}

	if req.Aggregate != nil && len(req.Aggregate.Func) > 0 {
		fn, ferr := AggFunc(req.Aggregate.Func[0])
		if ferr != nil {
			return nil, status.BadArg
		}
		if req.Aggregate.Step > 0 {
			sources := cs.GroupAggregate(ids, begin, end)
			if req.OrderBy == OrderTime {
				return materializer.NewTimeOrderGroupAggregate(sources, begin, req.Aggregate.Step), status.OK
			}
			return materializer.NewSeriesOrderGroupAggregate(sources, begin, req.Aggregate.Step), status.OK
		}
		results := cs.Aggregate(ids, begin, end)
		if len(req.GroupBy) > 0 && destGroup != nil {
			return materializer.NewAggregateCombiner(results, destGroup, fn), status.OK
		}
		return materializer.NewAggregate(ids, results, fn), status.OK
	}

	sources := cs.Scan(ids, begin, end)
	dir := operator.Forward
	if begin > end {
		dir = operator.Backward
	}
	order := materializer.TimeOrder
	if req.OrderBy == OrderSeries {
		order = materializer.SeriesOrder
	}
	return materializer.NewMerge(sources, order, dir), status.OK
}

func decodeWhere(raw []byte) (map[string][]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var asMap map[string][]string
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}
	// where may also arrive as a list of {tag: value} objects (spec
	// §6.3); flatten it into the same tag->values shape.
	var asList []map[string]string
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, err
	}
	out := map[string][]string{}
	for _, entry := range asList {
		for k, v := range entry {
			out[k] = append(out[k], v)
		}
	}
	return out, nil
}
