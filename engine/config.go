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

// Package engine is the top-level database handle of spec §6.5: open/create,
// write sessions, query/suggest/search, close -- wiring columnstore, wal and
// catalog together and running the metadata-sync worker of spec §5.
package engine

import (
	"fmt"
	"time"

	units "github.com/docker/go-units"

	"github.com/launix-de/nbtsdb/blockstore"
)

// Config mirrors the teacher's Basepath-plus-a-handful-of-fields style of
// configuration (storage/database.go): everything the caller must decide
// before Open/Create, nothing more. Volume size is accepted either as a
// byte count (VolumeBlocks*4096) or, via WithVolumeSize, a human string like
// "4GiB" parsed by go-units, the way an ops-facing config value would be.
type Config struct {
	Path string

	VolumeCount  int    // fixed-mode ring size; ignored (informational) for expandable
	VolumeBlocks uint32 // blocks per volume, AKU_BLOCK_SIZE each
	Expandable   bool

	WALShardCount  int
	WALMaxVolumes  int
	MetaSyncPeriod time.Duration // default 10s per spec §5
}

// DefaultConfig returns a Config for path holding the fixed constants spec
// §6.1/§4.7 name; Open applies the same defaults to any field the caller
// leaves at its zero value.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		VolumeCount:    4,
		VolumeBlocks:   1 << 18, // 1 GiB / 4096
		WALShardCount:  4,
		WALMaxVolumes:  2,
		MetaSyncPeriod: 10 * time.Second,
	}
}

// WithVolumeSize parses a human size string ("4GiB", "512MB") with go-units
// and sets VolumeBlocks accordingly, rounding down to whole blocks.
func (c Config) WithVolumeSize(human string) (Config, error) {
	n, err := units.RAMInBytes(human)
	if err != nil {
		return c, fmt.Errorf("engine: parse volume size %q: %w", human, err)
	}
	c.VolumeBlocks = uint32(n / blockstore.BlockSize)
	return c, nil
}

func (c Config) normalized() Config {
	if c.VolumeCount <= 0 {
		c.VolumeCount = 4
	}
	if c.VolumeBlocks == 0 {
		c.VolumeBlocks = 1 << 18
	}
	if c.WALShardCount <= 0 {
		c.WALShardCount = 4
	}
	if c.WALMaxVolumes <= 0 {
		c.WALMaxVolumes = 2
	}
	if c.MetaSyncPeriod <= 0 {
		c.MetaSyncPeriod = 10 * time.Second
	}
	return c
}
