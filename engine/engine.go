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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/launix-de/nbtsdb/blockstore"
	"github.com/launix-de/nbtsdb/catalog"
	"github.com/launix-de/nbtsdb/columnstore"
	"github.com/launix-de/nbtsdb/internal/corelog"
	"github.com/launix-de/nbtsdb/materializer"
	"github.com/launix-de/nbtsdb/nbtree"
	"github.com/launix-de/nbtsdb/query"
	"github.com/launix-de/nbtsdb/status"
	"github.com/launix-de/nbtsdb/wal"
)

var (
	errNotFound = errors.New("engine: series not found")
	errConflict = errors.New("engine: series id already registered under a different name")
)

// DB is the top-level database handle of spec §6.5. It wires a block store,
// column store, WAL and metadata catalog together and runs the metadata
// sync worker of spec §5.
type DB struct {
	cfg  Config
	bs   *blockstore.BlockStore
	cols *columnstore.ColumnStore
	w    *wal.WAL
	cat  catalog.MetadataCatalog
	idx  SeriesIndex

	sessionMu sync.Mutex
	nextShard int

	rescueMu      sync.Mutex
	pendingRescue map[uint64][]blockstore.LogicAddr

	namedMu sync.Mutex
	named   map[uint64]bool

	barrierMu   sync.Mutex
	barrierCond *sync.Cond
	gen         uint64

	wakeCh  chan struct{}
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// Open opens an existing database at cfg.Path, creating it (and every
// volume/meta file beneath it) if it does not exist yet -- spec §6.5's
// single "open/create database" operation. idx is the series-name matcher
// boundary the core never implements itself (spec §1/§6); pass
// NewMemSeriesIndex() for tests or a single-process deployment.
func Open(cfg Config, idx SeriesIndex) (*DB, error) {
	cfg = cfg.normalized()

	if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
		return nil, fmt.Errorf("engine: mkdir %s: %w", cfg.Path, err)
	}

	meta, err := blockstore.OpenMetaVolume(filepath.Join(cfg.Path, "meta.json"))
	if err != nil {
		return nil, fmt.Errorf("engine: open meta volume: %w", err)
	}
	factory := func(i int) (blockstore.Volume, error) {
		return blockstore.CreateFileVolume(filepath.Join(cfg.Path, fmt.Sprintf("volume%d.dat", i)))
	}
	var bs *blockstore.BlockStore
	if cfg.Expandable {
		bs, err = blockstore.OpenExpandable(meta, cfg.VolumeBlocks, factory)
	} else {
		bs, err = blockstore.OpenFixed(meta, cfg.VolumeCount, cfg.VolumeBlocks, factory)
	}
	if err != nil {
		return nil, fmt.Errorf("engine: open block store: %w", err)
	}

	walDir := filepath.Join(cfg.Path, "wal")
	w, err := wal.Open(walDir, cfg.WALShardCount, cfg.WALMaxVolumes)
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	cat := catalog.OpenFile(filepath.Join(cfg.Path, "catalog.json"))
	records, err := cat.Load()
	if err != nil {
		return nil, fmt.Errorf("engine: load catalog: %w", err)
	}

	cols := columnstore.New(bs)
	mapping := make(map[uint64][]blockstore.LogicAddr, len(records))
	kinds := make(map[uint64]nbtree.PayloadKind, len(records))
	for id, rec := range records {
		mapping[id] = rec.Roots
		kinds[id] = nbtree.PayloadKind(rec.Kind)
		if err := idx.AdoptSeriesID(id, rec.Name); err != nil {
			corelog.Warnf("engine: register series %q (id %d) from catalog: %v", rec.Name, id, err)
		}
	}
	_, needReplay := cols.OpenOrRestore(mapping, kinds, false)

	needReplaySet := make(map[uint64]bool, len(needReplay))
	for _, id := range needReplay {
		needReplaySet[id] = true
	}

	if err := recoverFromWAL(walDir, cols, idx, needReplaySet); err != nil {
		return nil, fmt.Errorf("engine: wal recovery: %w", err)
	}

	touched := make([]uint64, 0, len(needReplaySet))
	for id := range needReplaySet {
		touched = append(touched, id)
	}
	recovered := cols.Close(touched)
	if len(recovered) > 0 {
		final := make(map[uint64]catalog.SeriesRecord, len(recovered))
		for id, roots := range recovered {
			name, _ := idx.GetSeriesName(id)
			final[id] = catalog.SeriesRecord{Name: name, Kind: uint8(cols.KindOf(id)), Roots: roots}
		}
		if err := cat.Sync(final); err != nil {
			return nil, fmt.Errorf("engine: sync recovered metadata: %w", err)
		}
	}
	w.Clear()

	db := &DB{
		cfg:           cfg,
		bs:            bs,
		cols:          cols,
		w:             w,
		cat:           cat,
		idx:           idx,
		pendingRescue: map[uint64][]blockstore.LogicAddr{},
		named:         map[uint64]bool{},
		wakeCh:        make(chan struct{}, 1),
		closeCh:       make(chan struct{}),
	}
	db.barrierCond = sync.NewCond(&db.barrierMu)

	db.wg.Add(1)
	go db.metadataWorker()

	return db, nil
}

// recoverFromWAL implements spec §4.7's two recovery passes: a metadata
// pass that registers series names and creates empty columns for any id
// the catalog did not already know about, and a data pass, replayed only
// for the ids open_or_restore flagged, the ids the metadata pass had to
// create, and the ids whose WAL rescue points need repair.
func recoverFromWAL(walDir string, cols *columnstore.ColumnStore, idx SeriesIndex, needReplay map[uint64]bool) error {
	meta, st := wal.ReplayMetadata(walDir)
	if st != status.OK {
		return fmt.Errorf("replay metadata: %v", st)
	}
	for id, name := range meta.Names {
		known := cols.Get(id) != nil
		if err := idx.AdoptSeriesID(id, name); err != nil {
			corelog.Warnf("engine: could not register recovered series %q: %v", name, err)
			continue
		}
		if !known {
			cols.CreateNewColumn(id, nbtree.KindFloat)
			needReplay[id] = true
		}
	}
	for id, points := range meta.Rescue {
		if cols.Get(id) == nil {
			continue
		}
		addrs := make([]blockstore.LogicAddr, len(points))
		for i, p := range points {
			addrs[i] = blockstore.LogicAddr(p)
		}
		if nbtree.RepairStatus(addrs) != nbtree.RepairOK {
			needReplay[id] = true
		}
	}

	dst := wal.ReplayData(walDir, needReplay, func(id, ts uint64, value float64, allowDup bool) {
		if st := cols.RecoveryWrite(id, ts, value, allowDup); st != status.OK {
			corelog.Warnf("engine: recovery_write series=%d ts=%d: %v", id, ts, st)
		}
	})
	if dst != status.OK {
		return fmt.Errorf("replay data: %v", dst)
	}
	return nil
}

func (db *DB) noteRescue(id uint64, roots []blockstore.LogicAddr) {
	db.rescueMu.Lock()
	db.pendingRescue[id] = roots
	db.rescueMu.Unlock()
}

// ensureSeriesNamed writes a name flex record for id to shard the first time
// this DB sees id on any writer, so the WAL metadata pass of spec §4.7 can
// recover the series even if the process crashes before the first catalog
// flush ever names it. A no-op on every subsequent write for the same id.
func (db *DB) ensureSeriesNamed(id uint64, shard *wal.Shard) status.Status {
	db.namedMu.Lock()
	if db.named[id] {
		db.namedMu.Unlock()
		return status.OK
	}
	db.named[id] = true
	db.namedMu.Unlock()

	name, err := db.idx.GetSeriesName(id)
	if err != nil {
		return status.OK
	}
	return shard.AppendName(id, name)
}

// closeAndBarrier force-commits ids (spec §5's WAL rotate barrier: "the
// writer ... requests the column store to close the stale ids, and waits
// on the barrier until the metadata worker has flushed"), then blocks
// until the metadata worker has run at least once since.
func (db *DB) closeAndBarrier(ids []uint64) {
	for id, roots := range db.cols.Close(ids) {
		db.noteRescue(id, roots)
	}

	db.barrierMu.Lock()
	start := db.gen
	db.barrierMu.Unlock()

	select {
	case db.wakeCh <- struct{}{}:
	default:
	}

	db.barrierMu.Lock()
	for db.gen <= start {
		db.barrierCond.Wait()
	}
	db.barrierMu.Unlock()
}

// metadataWorker is spec §5's background metadata-sync thread: waits on a
// wake signal with a bounded timeout, flushes the block store, persists
// pending rescue points and series names transactionally, then releases
// any session blocked on the rotate barrier.
func (db *DB) metadataWorker() {
	defer db.wg.Done()
	timer := time.NewTimer(db.cfg.MetaSyncPeriod)
	defer timer.Stop()
	for {
		select {
		case <-db.closeCh:
			db.flushMetadata()
			return
		case <-db.wakeCh:
		case <-timer.C:
		}
		db.flushMetadata()
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(db.cfg.MetaSyncPeriod)
	}
}

func (db *DB) flushMetadata() {
	if err := db.bs.Flush(); err != nil {
		corelog.Errorf("engine: block store flush: %v", err)
	}

	db.rescueMu.Lock()
	records := make(map[uint64]catalog.SeriesRecord, len(db.pendingRescue))
	for id, roots := range db.pendingRescue {
		name, _ := db.idx.GetSeriesName(id)
		records[id] = catalog.SeriesRecord{Name: name, Kind: uint8(db.cols.KindOf(id)), Roots: roots}
	}
	db.pendingRescue = map[uint64][]blockstore.LogicAddr{}
	db.rescueMu.Unlock()

	if len(records) > 0 {
		if err := db.cat.Sync(records); err != nil {
			corelog.Errorf("engine: catalog sync: %v", err)
		}
	}

	db.barrierMu.Lock()
	db.gen++
	db.barrierCond.Broadcast()
	db.barrierMu.Unlock()
}

// InitSeriesID, GetSeriesIDs and GetSeriesName are thin passthroughs to the
// injected SeriesIndex, per spec §6.5.
func (db *DB) InitSeriesID(name string) (uint64, error)   { return db.idx.InitSeriesID(name) }
func (db *DB) GetSeriesIDs(name string) ([]uint64, error) { return db.idx.GetSeriesIDs(name) }
func (db *DB) GetSeriesName(id uint64) (string, error)    { return db.idx.GetSeriesName(id) }

// Write appends one sample outside of an explicit Session, using a
// transient single-shot session -- convenient for tests and simple
// single-writer callers; high-throughput writers should use OpenSession
// and reuse it so the WAL shard cache stays warm across appends. The
// transient session is not closed, so the series' open leaf stays writable.
func (db *DB) Write(id uint64, ts uint64, value float64, blob []byte, kind nbtree.PayloadKind) status.Status {
	s := db.OpenSession()
	return s.Write(id, ts, value, blob, kind)
}

// Query parses text and runs it against the column store, returning the
// resulting materializer for the caller to Read from.
func (db *DB) Query(text []byte) (materializer.Materializer, status.Status) {
	req, st := query.Parse(text)
	if st != status.OK {
		return nil, st
	}
	return query.Plan(req, db.cols, db.idx)
}

// Suggest and Search answer the metadata-only query kinds of spec §6.5
// directly from the series index, per SUPPLEMENTED FEATURES.
func (db *DB) Suggest(text string) ([]string, status.Status) {
	names, err := db.idx.Suggest(text)
	if err != nil {
		return nil, status.NotFound
	}
	return names, status.OK
}

func (db *DB) Search(text string) ([]string, status.Status) {
	names, err := db.idx.Search(text)
	if err != nil {
		return nil, status.NotFound
	}
	return names, status.OK
}

// Close flushes every column, persists final rescue points, stops the
// metadata worker, and releases the block store and WAL.
func (db *DB) Close() error {
	recovered := db.cols.Close(nil)
	for id, roots := range recovered {
		db.noteRescue(id, roots)
	}

	close(db.closeCh)
	db.wg.Wait()

	db.w.Close()
	return db.bs.Close()
}
