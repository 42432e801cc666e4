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
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/launix-de/nbtsdb/materializer"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/status"
)

func drainAll(t *testing.T, m materializer.Materializer) []materializer.Sample {
	t.Helper()
	var out []materializer.Sample
	buf := make([]materializer.Sample, 64)
	for {
		st, n := m.Read(buf, len(buf))
		if st == status.NoData {
			break
		}
		if st != status.OK {
			t.Fatalf("read: %v", st)
		}
		out = append(out, buf[:n]...)
	}
	return out
}

func TestEngineWriteAndScan(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.WALShardCount = 2
	idx := NewMemSeriesIndex()
	db, err := Open(cfg, idx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	id, err := db.InitSeriesID("cpu.load host=a")
	if err != nil {
		t.Fatal(err)
	}

	const n = 500
	for i := uint64(0); i < n; i++ {
		if st := db.Write(id, i, float64(i), nil, nbtree.KindFloat); st != status.OK {
			t.Fatalf("write %d: %v", i, st)
		}
	}

	q := []byte(fmt.Sprintf(`{"select":"metric","range":{"from":0,"to":%d},"order-by":"time","where":{"__metric__":["cpu.load"]}}`, n-1))
	m, st := db.Query(q)
	if st != status.OK {
		t.Fatalf("query: %v", st)
	}
	samples := drainAll(t, m)
	if len(samples) != n {
		t.Fatalf("got %d samples, want %d", len(samples), n)
	}
	for i, s := range samples {
		if s.TS != uint64(i) || s.Value != float64(i) {
			t.Fatalf("sample %d = %+v", i, s)
		}
	}

	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestEngineAggregateSum(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	idx := NewMemSeriesIndex()
	db, err := Open(cfg, idx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	id, _ := db.InitSeriesID("cpu.load host=a")
	var want float64
	for i := uint64(0); i < 100; i++ {
		db.Write(id, i, float64(i), nil, nbtree.KindFloat)
		want += float64(i)
	}

	q := []byte(`{"select":"metric","range":{"from":0,"to":99},"where":{"__metric__":["cpu.load"]},"aggregate":{"func":["SUM"]}}`)
	m, st := db.Query(q)
	if st != status.OK {
		t.Fatalf("query: %v", st)
	}
	samples := drainAll(t, m)
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].Value != want {
		t.Fatalf("sum = %v, want %v", samples[0].Value, want)
	}
}

func TestEngineReopenRecoversCatalog(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	idx := NewMemSeriesIndex()

	db, err := Open(cfg, idx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	id, _ := db.InitSeriesID("cpu.load host=a")
	for i := uint64(0); i < 50; i++ {
		db.Write(id, i, float64(i*2), nil, nbtree.KindFloat)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx2 := NewMemSeriesIndex()
	db2, err := Open(cfg, idx2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()

	ids, err := db2.GetSeriesIDs("cpu.load host=a")
	if err != nil || len(ids) != 1 || ids[0] != id {
		t.Fatalf("GetSeriesIDs = %v, %v, want [%d]", ids, err, id)
	}

	q := []byte(fmt.Sprintf(`{"select":"metric","range":{"from":0,"to":49},"order-by":"time","where":{"__metric__":["cpu.load"]}}`))
	m, st := db2.Query(q)
	if st != status.OK {
		t.Fatalf("query: %v", st)
	}
	samples := drainAll(t, m)
	if len(samples) != 50 {
		t.Fatalf("got %d samples after reopen, want 50", len(samples))
	}
}

// TestEngineCrashBeforeCloseRecoversFromWAL exercises spec §8's "WAL
// round-trip" property: kill the writer before it ever closes (so no
// catalog record for the series exists yet), reopen, and confirm every
// point written before the crash is still present via WAL recovery alone.
func TestEngineCrashBeforeCloseRecoversFromWAL(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	idx := NewMemSeriesIndex()

	db, err := Open(cfg, idx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	id, _ := db.InitSeriesID("cpu.load host=a")
	const n = 10000
	for i := uint64(0); i < n; i++ {
		if st := db.Write(id, i, float64(i), nil, nbtree.KindFloat); st != status.OK {
			t.Fatalf("write %d: %v", i, st)
		}
	}
	// No db.Close() here -- this simulates a crash: the process dies before
	// any catalog record for "cpu.load host=a" is ever written, so recovery
	// must reconstruct the series purely from the WAL's name/data records.

	idx2 := NewMemSeriesIndex()
	db2, err := Open(cfg, idx2)
	if err != nil {
		t.Fatalf("reopen after crash: %v", err)
	}
	defer db2.Close()

	ids, err := db2.GetSeriesIDs("cpu.load host=a")
	if err != nil || len(ids) != 1 {
		t.Fatalf("GetSeriesIDs after crash recovery = %v, %v", ids, err)
	}

	q := []byte(fmt.Sprintf(`{"select":"metric","range":{"from":0,"to":%d},"order-by":"time","where":{"__metric__":["cpu.load"]}}`, n-1))
	m, st := db2.Query(q)
	if st != status.OK {
		t.Fatalf("query after crash recovery: %v", st)
	}
	samples := drainAll(t, m)
	if len(samples) != n {
		t.Fatalf("got %d samples after crash recovery, want %d", len(samples), n)
	}
	for i, s := range samples {
		if s.TS != uint64(i) || s.Value != float64(i) {
			t.Fatalf("sample %d = %+v", i, s)
		}
	}
}

func TestEngineMetadataWorkerReleasesBarrier(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.MetaSyncPeriod = 50 * time.Millisecond
	idx := NewMemSeriesIndex()
	db, err := Open(cfg, idx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	id, _ := db.InitSeriesID("cpu.load host=a")
	db.noteRescue(id, nil)

	done := make(chan struct{})
	go func() {
		db.closeAndBarrier(nil)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("closeAndBarrier did not return within the metadata sync period")
	}
}

func TestEngineVolumePathsUnderConfigPath(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir)
	idx := NewMemSeriesIndex()
	db, err := Open(cfg, idx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	matches, err := filepath.Glob(filepath.Join(dir, "volume*.dat"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != cfg.VolumeCount {
		t.Fatalf("got %d volume files, want %d", len(matches), DefaultConfig(dir).VolumeCount)
	}
}
