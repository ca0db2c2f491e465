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

// Package eventbus is the typed, multi-producer/multi-consumer message
// backbone correlating tool-call requests with their completions across
// five bounded channels, with Prometheus gauges/counters exported for
// channel depth and drops — the same observability surface the teacher
// gives its indexing pipeline's /metrics endpoint (cmd/cie/index.go).
package eventbus

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// EventKind discriminates the payload carried by an Event.
type EventKind string

const (
	EventToolCallRequested EventKind = "ToolCallRequested"
	EventToolCallCompleted EventKind = "ToolCallCompleted"
	EventToolCallFailed    EventKind = "ToolCallFailed"
	EventSysInfo           EventKind = "SysInfo"
	EventIndexProgress     EventKind = "IndexProgress"
)

// CallID correlates a request with its completion/failure within one
// RequestID's scope.
type CallID string

// Event is the bus's common envelope. RequestID/CallID are set on
// tool-call lifecycle events; zero-valued otherwise.
type Event struct {
	Kind      EventKind
	RequestID uuid.UUID
	CallID    CallID
	Payload   any
}

// Caps bounds each channel's buffer, mirroring the original's central
// capacities struct.
type Caps struct {
	Realtime   int
	Background int
	Index      int
	Error      int
	Commands   int
}

// DefaultCaps matches the teacher's indexing pipeline's channel sizing
// order of magnitude (index.go buffers progress updates in the low
// hundreds).
var DefaultCaps = Caps{Realtime: 256, Background: 256, Index: 256, Error: 64, Commands: 64}

// Command is a single-consumer request to the state manager.
type Command struct {
	Name    string
	Payload any
}

// Bus is the event/command backbone: bounded channels plus per-producer
// FIFO ordering (Go channels already guarantee this) and no cross-channel
// ordering guarantee, matching §4.8.
type Bus struct {
	realtimeTx   chan Event
	backgroundTx chan Event
	indexTx      chan Event
	errorTx      chan Event
	commands     chan Command

	mu      sync.Mutex
	waiters map[waitKey]chan Event

	metrics *busMetrics
}

type waitKey struct {
	requestID uuid.UUID
	callID    CallID
}

// New creates a Bus with the given channel capacities, registering its
// depth/drop gauges on reg (pass nil to skip registration, e.g. in tests).
func New(caps Caps, reg prometheus.Registerer) *Bus {
	b := &Bus{
		realtimeTx:   make(chan Event, caps.Realtime),
		backgroundTx: make(chan Event, caps.Background),
		indexTx:      make(chan Event, caps.Index),
		errorTx:      make(chan Event, caps.Error),
		commands:     make(chan Command, caps.Commands),
		waiters:      make(map[waitKey]chan Event),
		metrics:      newBusMetrics(reg),
	}
	return b
}

// publish pushes ev onto ch, counting a drop (non-blocking send fails)
// instead of blocking realtime/background/index/error producers; callers
// must tolerate loss on these channels per §4.8.
func (b *Bus) publish(ch chan Event, name string, ev Event) {
	select {
	case ch <- ev:
		b.metrics.depth.WithLabelValues(name).Set(float64(len(ch)))
	default:
		b.metrics.drops.WithLabelValues(name).Inc()
	}
	b.deliverToWaiter(ev)
}

// PublishRealtime fans ev out on the UI-visible realtime channel.
func (b *Bus) PublishRealtime(ev Event) { b.publish(b.realtimeTx, "realtime", ev) }

// PublishBackground fans ev out on the slower background channel.
func (b *Bus) PublishBackground(ev Event) { b.publish(b.backgroundTx, "background", ev) }

// PublishIndex fans ev out on the indexer progress/command channel.
func (b *Bus) PublishIndex(ev Event) { b.publish(b.indexTx, "index", ev) }

// PublishError fans ev out on the classified-error channel.
func (b *Bus) PublishError(ev Event) { b.publish(b.errorTx, "error", ev) }

// SendCommand sends cmd on the single-consumer MPSC commands channel,
// blocking if it is full (back-pressure, per §5).
func (b *Bus) SendCommand(cmd Command) {
	b.commands <- cmd
	b.metrics.depth.WithLabelValues("commands").Set(float64(len(b.commands)))
}

// Realtime exposes the realtime channel for consumers.
func (b *Bus) Realtime() <-chan Event { return b.realtimeTx }

// Background exposes the background channel for consumers.
func (b *Bus) Background() <-chan Event { return b.backgroundTx }

// Index exposes the index channel for consumers.
func (b *Bus) Index() <-chan Event { return b.indexTx }

// Errors exposes the error channel for consumers.
func (b *Bus) Errors() <-chan Event { return b.errorTx }

// Commands exposes the commands channel for its single consumer.
func (b *Bus) Commands() <-chan Command { return b.commands }

// AwaitToolCall registers interest in (requestID, callID)'s completion or
// failure before the request is emitted, per §4.8's "consumers awaiting a
// result subscribe before emitting the request." Returns a channel that
// receives exactly one ToolCallCompleted or ToolCallFailed event.
func (b *Bus) AwaitToolCall(requestID uuid.UUID, callID CallID) <-chan Event {
	ch := make(chan Event, 1)
	b.mu.Lock()
	b.waiters[waitKey{requestID, callID}] = ch
	b.mu.Unlock()
	return ch
}

func (b *Bus) deliverToWaiter(ev Event) {
	if ev.Kind != EventToolCallCompleted && ev.Kind != EventToolCallFailed {
		return
	}
	key := waitKey{ev.RequestID, ev.CallID}
	b.mu.Lock()
	ch, ok := b.waiters[key]
	if ok {
		delete(b.waiters, key)
	}
	b.mu.Unlock()
	if ok {
		ch <- ev
		close(ch)
	}
}

// RequestToolCall emits a ToolCallRequested event on the background
// channel and returns the awaiting channel for its eventual
// Completed/Failed event, wiring the subscribe-before-emit ordering
// AwaitToolCall documents.
func (b *Bus) RequestToolCall(callID CallID, payload any) (requestID uuid.UUID, result <-chan Event) {
	requestID = uuid.New()
	result = b.AwaitToolCall(requestID, callID)
	b.PublishBackground(Event{Kind: EventToolCallRequested, RequestID: requestID, CallID: callID, Payload: payload})
	return requestID, result
}

// CompleteToolCall closes the loop on a prior RequestToolCall.
func (b *Bus) CompleteToolCall(requestID uuid.UUID, callID CallID, result any) {
	b.PublishBackground(Event{Kind: EventToolCallCompleted, RequestID: requestID, CallID: callID, Payload: result})
}

// FailToolCall closes the loop on a prior RequestToolCall with an error.
func (b *Bus) FailToolCall(requestID uuid.UUID, callID CallID, err error) {
	b.PublishError(Event{Kind: EventToolCallFailed, RequestID: requestID, CallID: callID, Payload: fmt.Errorf("tool call failed: %w", err)})
}

type busMetrics struct {
	depth *prometheus.GaugeVec
	drops *prometheus.CounterVec
}

func newBusMetrics(reg prometheus.Registerer) *busMetrics {
	m := &busMetrics{
		depth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ploke_eventbus_channel_depth",
			Help: "Current number of buffered events per eventbus channel.",
		}, []string{"channel"}),
		drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ploke_eventbus_channel_drops_total",
			Help: "Total events dropped because a channel's buffer was full.",
		}, []string{"channel"}),
	}
	if reg != nil {
		reg.MustRegister(m.depth, m.drops)
	}
	return m
}
