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

// Package query parses a text (JSON) query into the request tree spec
// §6.3 describes, and builds a materializer pipeline from it plus a
// columnstore and a series-id resolver -- the core's query plan builder.
package query

import (
	"encoding/json"
	"fmt"

	"github.com/launix-de/nbtsdb/operator"
	"github.com/launix-de/nbtsdb/status"
)

// Select names what a query asks for -- a metric scan, or one of the
// metadata-only suggest/search targets of spec §4.7/SUPPLEMENTED FEATURES.
type Select string

const (
	SelectMetric      Select = "metric"
	SelectMetaNames   Select = "meta:names"
	SelectMetricNames Select = "metric-names"
	SelectTagNames    Select = "tag-names"
	SelectTagValues   Select = "tag-values"
)

// OrderBy selects Merge's key, per spec §6.3.
type OrderBy string

const (
	OrderSeries OrderBy = "series"
	OrderTime   OrderBy = "time"
)

type Range struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

type Aggregate struct {
	Func []string `json:"func"`
	Step uint64   `json:"step"`
}

// Request is the core's only view of a query: the fields spec §6.3 says
// "the core only inspects" -- range, select, where, order-by, group-by,
// aggregate, join. output/format are a presentation-layer concern left to
// the caller.
type Request struct {
	Select    Select              `json:"select"`
	Range     Range               `json:"range"`
	OrderBy   OrderBy             `json:"order-by"`
	Where     json.RawMessage     `json:"where"`
	GroupBy   []string            `json:"group-by"`
	Aggregate *Aggregate          `json:"aggregate"`
	Join      []string            `json:"join"`
}

// Parse decodes a JSON query into a Request. Malformed JSON is the core's
// one query-parsing failure mode (spec §7's QUERY_PARSING_ERROR).
func Parse(text []byte) (Request, status.Status) {
	var r Request
	if err := json.Unmarshal(text, &r); err != nil {
		return Request{}, status.QueryParsingError
	}
	if r.Select == "" {
		r.Select = SelectMetric
	}
	if r.OrderBy == "" {
		r.OrderBy = OrderTime
	}
	return r, status.OK
}

// AggFunc maps the request's textual function name to operator.Func.
func AggFunc(name string) (operator.Func, error) {
	switch name {
	case "MIN":
		return operator.MIN, nil
	case "MAX":
		return operator.MAX, nil
	case "SUM":
		return operator.SUM, nil
	case "CNT":
		return operator.CNT, nil
	case "MEAN":
		return operator.MEAN, nil
	case "MIN_TIMESTAMP":
		return operator.MinTimestamp, nil
	case "MAX_TIMESTAMP":
		return operator.MaxTimestamp, nil
	}
	return 0, fmt.Errorf("query: unknown aggregate function %q", name)
}
