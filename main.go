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
/*
	nbtsdb: a clustered append-only NB+tree time-series store.
*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/launix-de/nbtsdb/engine"
	"github.com/launix-de/nbtsdb/materializer"
	"github.com/launix-de/nbtsdb/status"
)

func main() {
	fmt.Print(`nbtsdb Copyright (C) 2026  nbtsdb Contributors
    This program comes with ABSOLUTELY NO WARRANTY;
    This is free software, and you are welcome to redistribute it
    under certain conditions;
`)

	path := flag.String("path", "./data", "database directory")
	volumeSize := flag.String("volume-size", "", "volume size, e.g. 4GiB (default 1GiB)")
	volumeCount := flag.Int("volumes", 0, "number of volumes (0 = default)")
	expandable := flag.Bool("expandable", false, "grow the block store by adding volumes instead of recycling")
	flag.Parse()

	cfg := engine.DefaultConfig(*path)
	if *volumeSize != "" {
		var err error
		cfg, err = cfg.WithVolumeSize(*volumeSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nbtsdb: %v\n", err)
			os.Exit(1)
		}
	}
	if *volumeCount > 0 {
		cfg.VolumeCount = *volumeCount
	}
	cfg.Expandable = *expandable

	db, err := engine.Open(cfg, engine.NewMemSeriesIndex())
	if err != nil {
		fmt.Fprintf(os.Stderr, "nbtsdb: open %s: %v\n", *path, err)
		os.Exit(1)
	}
	defer db.Close()

	repl(db)
}

// repl is a line-at-a-time query console: one JSON query request (spec §6.5)
// per line, samples printed one per line until NO_DATA. Anything beyond this
// -- a real wire protocol, authentication, multi-tenant routing -- is out of
// CORE scope per spec §1 and left to a caller embedding the engine package.
func repl(db *engine.DB) {
	in := bufio.NewScanner(os.Stdin)
	in.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print("> ")
		if !in.Scan() {
			return
		}
		line := in.Text()
		if line == "" {
			continue
		}
		m, st := db.Query([]byte(line))
		if st != status.OK {
			fmt.Printf("error: %v\n", st)
			continue
		}
		buf := make([]materializer.Sample, 64)
		for {
			rst, n := m.Read(buf, len(buf))
			for _, s := range buf[:n] {
				fmt.Printf("%d\t%v\n", s.TS, s.Value)
			}
			if rst != status.OK {
				break
			}
		}
	}
}
