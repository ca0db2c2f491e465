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

// Package plokeerr is the CLI's user-facing error taxonomy: every error the
// ploke command surfaces carries a title, a detail explaining what happened,
// and a suggestion telling the user what to do about it. FatalError prints
// it and exits with status 1 whatever its Severity.
package plokeerr

import (
	"encoding/json"
	"fmt"
	"os"
)

// Severity classifies a UserError by kind of failure; FatalError reports it
// in its JSON output.
type Severity int

const (
	// SeverityConfig covers malformed or missing configuration.
	SeverityConfig Severity = iota
	// SeverityInput covers bad user input: flags, paths, query syntax.
	SeverityInput
	// SeverityPermission covers filesystem or OS permission failures.
	SeverityPermission
	// SeverityDatabase covers CozoDB open/query/transaction failures.
	SeverityDatabase
	// SeverityNetwork covers embedding-provider and remote-server failures.
	SeverityNetwork
	// SeverityInternal covers bugs: anything that should never happen.
	SeverityInternal
)

func (s Severity) String() string {
	switch s {
	case SeverityConfig:
		return "config"
	case SeverityInput:
		return "input"
	case SeverityPermission:
		return "permission"
	case SeverityDatabase:
		return "database"
	case SeverityNetwork:
		return "network"
	case SeverityInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// ExitCode maps a severity to the process exit code FatalError uses:
// every fatal error exits 1, whatever its severity. Exit status 2 is kept
// for command-line misuse, which main reports itself.
func (s Severity) ExitCode() int {
	return 1
}

// UserError is a structured, user-facing error: what failed, why, and what
// to do next. It wraps an optional underlying cause for %w-style chains.
type UserError struct {
	Severity   Severity
	Title      string
	Detail     string
	Suggestion string
	Cause      error
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

func newError(sev Severity, title, detail, suggestion string, cause error) *UserError {
	return &UserError{Severity: sev, Title: title, Detail: detail, Suggestion: suggestion, Cause: cause}
}

// NewConfigError reports a malformed or missing configuration file.
func NewConfigError(title, detail, suggestion string, cause error) *UserError {
	return newError(SeverityConfig, title, detail, suggestion, cause)
}

// NewInputError reports invalid user input: bad flags, paths, or query
// syntax.
func NewInputError(title, detail, suggestion string, cause error) *UserError {
	return newError(SeverityInput, title, detail, suggestion, cause)
}

// NewPermissionError reports a filesystem or OS permission failure.
func NewPermissionError(title, detail, suggestion string, cause error) *UserError {
	return newError(SeverityPermission, title, detail, suggestion, cause)
}

// NewDatabaseError reports a CozoDB open, query, or transaction failure.
func NewDatabaseError(title, detail, suggestion string, cause error) *UserError {
	return newError(SeverityDatabase, title, detail, suggestion, cause)
}

// NewNetworkError reports an embedding-provider or remote-server failure.
func NewNetworkError(title, detail, suggestion string, cause error) *UserError {
	return newError(SeverityNetwork, title, detail, suggestion, cause)
}

// NewInternalError reports a bug: something that should be unreachable.
func NewInternalError(title, detail, suggestion string, cause error) *UserError {
	return newError(SeverityInternal, title, detail, suggestion, cause)
}

type jsonError struct {
	Error      string `json:"error"`
	Severity   string `json:"severity"`
	Detail     string `json:"detail,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// FatalError prints err to stderr (as JSON when jsonOutput is set, otherwise
// as human-readable title/detail/suggestion text) and exits the process
// with status 1 (see Severity.ExitCode). It never returns.
func FatalError(err error, jsonOutput bool) {
	if err == nil {
		os.Exit(0)
	}

	ue, ok := err.(*UserError)
	if !ok {
		ue = NewInternalError("Unexpected error", err.Error(), "This is a bug. Please report it.", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(jsonError{
			Error:      ue.Title,
			Severity:   ue.Severity.String(),
			Detail:     ue.Detail,
			Suggestion: ue.Suggestion,
		})
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", ue.Title)
		if ue.Detail != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Detail)
		}
		if ue.Cause != nil {
			fmt.Fprintf(os.Stderr, "  cause: %v\n", ue.Cause)
		}
		if ue.Suggestion != "" {
			fmt.Fprintf(os.Stderr, "  %s\n", ue.Suggestion)
		}
	}

	os.Exit(ue.Severity.ExitCode())
}
