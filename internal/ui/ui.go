// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui holds the ploke CLI's terminal output helpers: colored status
// lines, headers, and the handful of text primitives the command tree uses
// to format human-readable (non-JSON) output.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Color objects used directly by command output. Printf/Println/Sprint on
// these are already no-ops when color is disabled via InitColors.
var (
	Green  = color.New(color.FgGreen)
	Yellow = color.New(color.FgYellow)
	Dim    = color.New(color.FgHiBlack)
	Cyan   = color.New(color.FgCyan)
	red    = color.New(color.FgRed)
)

// InitColors decides whether color output is enabled. It is disabled when
// noColor is set, when NO_COLOR is present in the environment, or when
// stdout is not a terminal.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Header prints a bold section header.
func Header(s string) {
	bold := color.New(color.Bold)
	bold.Println(s)
}

// SubHeader prints a dim, smaller section marker under a Header.
func SubHeader(s string) {
	Dim.Println(s)
}

// Label formats a field label for key: value output. Callers include the
// trailing colon.
func Label(s string) string {
	return color.New(color.Bold).Sprint(s)
}

// DimText renders s de-emphasized.
func DimText(s string) string {
	return Dim.Sprint(s)
}

// CountText renders a count, yellow when non-zero and dim when zero.
func CountText(n int) string {
	if n == 0 {
		return Dim.Sprint("0")
	}
	return Yellow.Sprint(fmt.Sprintf("%d", n))
}

// Success prints a green checkmark-prefixed line.
func Success(s string) {
	Green.Println("✓ " + s)
}

// Successf formats and prints a Success line.
func Successf(format string, args ...any) {
	Success(fmt.Sprintf(format, args...))
}

// Warning prints a yellow warning line.
func Warning(s string) {
	Yellow.Println("⚠ " + s)
}

// Warningf formats and prints a Warning line.
func Warningf(format string, args ...any) {
	Warning(fmt.Sprintf(format, args...))
}

// Info prints a cyan informational line.
func Info(s string) {
	Cyan.Println(s)
}

// Infof formats and prints an Info line.
func Infof(format string, args ...any) {
	Info(fmt.Sprintf(format, args...))
}

// Error prints a red error line. Command error paths generally go through
// plokeerr.FatalError instead; this is for non-fatal error reporting.
func Error(s string) {
	red.Println("✗ " + s)
}
