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

// Package corelog is the one place the storage/query engine writes
// operational lines (volume recycle, WAL rotation, checksum failure, repair
// outcome). No structured-logging library, same as the rest of the stack --
// one fmt-built line per event.
package corelog

import (
	"log"
	"os"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// SetOutput lets the hosting process (CLI/config loader) redirect core
// diagnostics; the core never reaches for a global logging framework.
func SetOutput(l *log.Logger) {
	std = l
}

func Infof(format string, args ...any) {
	std.Printf("INFO "+format, args...)
}

func Warnf(format string, args ...any) {
	std.Printf("WARN "+format, args...)
}

func Errorf(format string, args ...any) {
	std.Printf("ERROR "+format, args...)
}
