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

package blockstore

import (
	"fmt"
	"hash/crc32"
	"sync"

	"github.com/google/uuid"
	"github.com/launix-de/nbtsdb/internal/corelog"
	"github.com/launix-de/nbtsdb/status"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the checksum NB+tree blocks carry in their SubtreeRef
// header over payload[0:payload_size).
func CRC32C(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoli)
}

// Mode selects the volume transition policy: Fixed recycles a bounded ring
// of volumes (oldest generation overwritten), Expandable keeps creating new
// volume files forever.
type Mode int

const (
	Fixed Mode = iota
	Expandable
)

// VolumeFactory creates a new Volume backend given a 0-based volume index,
// used by the Expandable mode when it needs to grow, and at Open time to
// attach backends for volumes recorded in the meta-volume.
type VolumeFactory func(index int) (Volume, error)

// Stats mirrors the small set of counters a systems store reports.
type Stats struct {
	VolumeCount   int
	CurrentVolume int
	BlocksWritten uint64
	Recycles      uint64
}

// BlockStore is the paged 4 KiB block layer described in spec §4.1: a
// single mutex serializes append/read/flush/stats, matching the teacher's
// single-writer-lock shard model (storage/shard.go) generalized from a
// columnar delta buffer to a block ring.
type BlockStore struct {
	mu sync.Mutex

	mode          Mode
	volumeCount   int // for Fixed: fixed ring size. for Expandable: informational.
	volumeBlocks  uint32
	factory       VolumeFactory
	meta          *MetaVolume
	volumes       []Volume
	currentVolume int
	stats         Stats
}

// OpenFixed opens (or creates) a fixed-size ring of volumeCount volumes,
// each volumeBlocks blocks long.
func OpenFixed(meta *MetaVolume, volumeCount int, volumeBlocks uint32, factory VolumeFactory) (*BlockStore, error) {
	bs := &BlockStore{
		mode:         Fixed,
		volumeCount:  volumeCount,
		volumeBlocks: volumeBlocks,
		factory:      factory,
		meta:         meta,
		volumes:      make([]Volume, volumeCount),
	}
	for i := 0; i < volumeCount; i++ {
		v, err := factory(i)
		if err != nil {
			return nil, err
		}
		bs.volumes[i] = v
		rec := meta.get(i)
		rec.Capacity = volumeBlocks
		if int(rec.Generation)%volumeCount != i {
			// volume i owns the generations congruent to i mod volumeCount.
			rec.Generation = uint32(i)
		}
		meta.set(i, rec)
	}
	// resume at the volume with the highest generation among those holding
	// committed blocks -- i.e. the one that was being written to.
	bs.currentVolume = bs.pickResumeVolume()
	bs.stats.VolumeCount = volumeCount
	bs.stats.CurrentVolume = bs.currentVolume
	return bs, nil
}

// OpenExpandable opens a store that starts with the volumes already
// present in meta and grows by whole new files as needed.
func OpenExpandable(meta *MetaVolume, volumeBlocks uint32, factory VolumeFactory) (*BlockStore, error) {
	bs := &BlockStore{
		mode:         Expandable,
		volumeBlocks: volumeBlocks,
		factory:      factory,
		meta:         meta,
	}
	n := len(meta.records)
	if n == 0 {
		n = 1
	}
	bs.volumes = make([]Volume, 0, n)
	for i := 0; i < n; i++ {
		v, err := factory(i)
		if err != nil {
			return nil, err
		}
		bs.volumes = append(bs.volumes, v)
		rec := meta.get(i)
		if rec.Capacity == 0 {
			rec.Capacity = volumeBlocks
			meta.set(i, rec)
		}
	}
	bs.volumeCount = len(bs.volumes)
	bs.currentVolume = bs.volumeCount - 1
	bs.stats.VolumeCount = bs.volumeCount
	bs.stats.CurrentVolume = bs.currentVolume
	return bs, nil
}

func (bs *BlockStore) pickResumeVolume() int {
	best := -1
	for i := range bs.volumes {
		rec := bs.meta.get(i)
		if rec.NBlocks == 0 {
			continue
		}
		if best < 0 || rec.Generation > bs.meta.get(best).Generation {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

// AppendBlock writes a 4096-byte block to the current volume, transitioning
// to the next volume transparently on overflow. The returned address is
// never EMPTY_ADDR on success.
func (bs *BlockStore) AppendBlock(block []byte) (status.Status, LogicAddr) {
	if len(block) != BlockSize {
		return status.BadArg, EmptyAddr
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()

	rec := bs.meta.get(bs.currentVolume)
	if rec.NBlocks >= bs.volumeBlocks {
		if st := bs.advanceVolumeLocked(); st != status.OK {
			return st, EmptyAddr
		}
		rec = bs.meta.get(bs.currentVolume)
	}
	offset := rec.NBlocks
	if err := bs.volumes[bs.currentVolume].WriteBlock(offset, block); err != nil {
		corelog.Errorf("blockstore: write volume=%d offset=%d: %v", bs.currentVolume, offset, err)
		return status.Access, EmptyAddr
	}
	rec.NBlocks++
	bs.meta.set(bs.currentVolume, rec)
	bs.stats.BlocksWritten++

	var addr LogicAddr
	if bs.mode == Fixed {
		addr = MakeAddr(rec.Generation, offset)
	} else {
		addr = MakeAddr(uint32(bs.currentVolume), offset)
	}
	return status.OK, addr
}

// advanceVolumeLocked rolls the write head to the next volume. Fixed mode
// wraps cyclically and, if the target volume already holds data, bumps its
// generation by volumeCount (never by one -- see SPEC_FULL.md) so that
// addresses from the discarded era can never alias the new one. Expandable
// mode creates a brand-new volume file.
func (bs *BlockStore) advanceVolumeLocked() status.Status {
	switch bs.mode {
	case Fixed:
		next := (bs.currentVolume + 1) % bs.volumeCount
		rec := bs.meta.get(next)
		if rec.NBlocks > 0 {
			rec.Generation += uint32(bs.volumeCount)
			rec.NBlocks = 0
			bs.stats.Recycles++
			corelog.Infof("blockstore: recycling volume %d -> generation %d", next, rec.Generation)
		}
		bs.meta.set(next, rec)
		bs.currentVolume = next
		bs.stats.CurrentVolume = next
		return status.OK
	case Expandable:
		idx := len(bs.volumes)
		name := uuid.NewString()
		v, err := bs.factory(idx)
		if err != nil {
			return status.Access
		}
		_ = name // unused: the factory names the volume file by its index
		bs.volumes = append(bs.volumes, v)
		rec := volumeMeta{VolumeID: idx, Generation: uint32(idx), Capacity: bs.volumeBlocks}
		bs.meta.set(idx, rec)
		bs.currentVolume = idx
		bs.volumeCount++
		bs.stats.VolumeCount = bs.volumeCount
		bs.stats.CurrentVolume = idx
		corelog.Infof("blockstore: created volume %d", idx)
		return status.OK
	}
	return status.NotImplemented
}

// ReadBlock splits addr into (generation, offset), resolves the owning
// volume, and verifies the volume's current generation still matches --
// otherwise the block has been recycled and UNAVAILABLE is returned.
func (bs *BlockStore) ReadBlock(addr LogicAddr) (status.Status, []byte) {
	if addr.IsEmpty() {
		return status.BadArg, nil
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()

	idx, ok := bs.resolveLocked(addr)
	if !ok {
		return status.Unavailable, nil
	}
	data, err := bs.volumes[idx].ReadBlock(addr.Offset())
	if err != nil {
		corelog.Errorf("blockstore: read volume=%d offset=%d: %v", idx, addr.Offset(), err)
		return status.Access, nil
	}
	return status.OK, data
}

func (bs *BlockStore) Exists(addr LogicAddr) bool {
	if addr.IsEmpty() {
		return false
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	_, ok := bs.resolveLocked(addr)
	return ok
}

// resolveLocked maps addr to a volume index, or false if the generation has
// been recycled out from under it.
func (bs *BlockStore) resolveLocked(addr LogicAddr) (int, bool) {
	gen := addr.Generation()
	var idx int
	if bs.mode == Fixed {
		idx = int(gen) % bs.volumeCount
	} else {
		idx = int(gen)
		if idx >= len(bs.volumes) {
			return 0, false
		}
	}
	rec := bs.meta.get(idx)
	if rec.Generation != gen {
		return 0, false
	}
	if addr.Offset() >= rec.NBlocks {
		return 0, false
	}
	return idx, true
}

// Flush persists all dirty volumes and the meta-volume.
func (bs *BlockStore) Flush() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	for i, v := range bs.volumes {
		if err := v.Flush(); err != nil {
			return fmt.Errorf("blockstore: flush volume %d: %w", i, err)
		}
	}
	return bs.meta.save()
}

func (bs *BlockStore) Statistics() Stats {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.stats
}

func (bs *BlockStore) Close() error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var firstErr error
	for _, v := range bs.volumes {
		if err := v.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := bs.meta.save(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
