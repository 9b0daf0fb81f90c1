// Package bus implements the synchronous in-memory dispatch that every
// overlay forward goes through: it increments a per-operation hop counter
// and, when tracing is enabled, opens a span carrying the op class and the
// running hop count. Grounded on the teacher's lookuptrace span shape, but
// reworked for in-process hops instead of gRPC metadata propagation.
package bus

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("dhtsim/bus")

// HopCounter is a per-operation forward counter, safe for concurrent
// increments from the bounded K-query goroutine pool without a mutex.
type HopCounter struct {
	n int32
}

// Add increments the counter by one and returns the new total.
func (h *HopCounter) Add() int32 { return atomic.AddInt32(&h.n, 1) }

// Load returns the current count.
func (h *HopCounter) Load() int32 { return atomic.LoadInt32(&h.n) }

// Bus dispatches routing forwards and tags each with an OTel span.
type Bus struct {
	traced bool
}

// New builds a Bus. traced controls whether forwards open spans; it should
// mirror the telemetry configuration's tracing.enabled flag.
func New(traced bool) *Bus {
	return &Bus{traced: traced}
}

// Forward records one routing hop from "from" to "to" for the named op
// class, incrementing counter and, if tracing is enabled, emitting a span.
// It is synchronous: the caller is expected to then invoke the receiving
// node's handler directly, exactly like a local function call.
func (b *Bus) Forward(ctx context.Context, opClass, from, to string, counter *HopCounter) {
	n := counter.Add()
	if !b.traced {
		return
	}
	_, span := tracer.Start(ctx, "overlay.forward",
		trace.WithAttributes(
			attribute.String("dht.op_class", opClass),
			attribute.String("dht.from", from),
			attribute.String("dht.to", to),
			attribute.Int64("dht.hop", int64(n)),
		),
	)
	span.End()
}

// Deliver opens a terminal span marking local resolution (zero or more
// hops already counted) with no further forward.
func (b *Bus) Deliver(ctx context.Context, opClass, at string, counter *HopCounter) {
	if !b.traced {
		return
	}
	_, span := tracer.Start(ctx, "overlay.deliver",
		trace.WithAttributes(
			attribute.String("dht.op_class", opClass),
			attribute.String("dht.at", at),
			attribute.Int64("dht.hops", int64(counter.Load())),
		),
	)
	span.End()
}
