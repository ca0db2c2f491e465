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

package eventbus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestToolCallCorrelatesWithCompletion(t *testing.T) {
	b := New(DefaultCaps, nil)

	requestID, result := b.RequestToolCall("find_callers", map[string]string{"node": "x"})

	go func() {
		b.CompleteToolCall(requestID, "find_callers", []string{"a", "b"})
	}()

	select {
	case ev := <-result:
		assert.Equal(t, EventToolCallCompleted, ev.Kind)
		assert.Equal(t, requestID, ev.RequestID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tool call completion")
	}
}

func TestFailToolCallDeliversToAwaiter(t *testing.T) {
	b := New(DefaultCaps, nil)
	requestID, result := b.RequestToolCall("trace_path", nil)

	go func() {
		b.FailToolCall(requestID, "trace_path", errors.New("unreachable"))
	}()

	select {
	case ev := <-result:
		assert.Equal(t, EventToolCallFailed, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tool call failure")
	}
}

func TestPublishDropsWhenChannelFull(t *testing.T) {
	b := New(Caps{Realtime: 1, Background: 1, Index: 1, Error: 1, Commands: 1}, nil)
	b.PublishRealtime(Event{Kind: EventSysInfo})
	b.PublishRealtime(Event{Kind: EventSysInfo}) // channel full: should drop, not block

	require.Len(t, b.Realtime(), 1)
}

func TestCommandsChannelDeliversInOrder(t *testing.T) {
	b := New(DefaultCaps, nil)
	b.SendCommand(Command{Name: "first"})
	b.SendCommand(Command{Name: "second"})

	assert.Equal(t, "first", (<-b.Commands()).Name)
	assert.Equal(t, "second", (<-b.Commands()).Name)
}
