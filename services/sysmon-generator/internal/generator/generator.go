// Package generator maps batches of raw Sysmon telemetry records into
// provenance-graph fragments. One payload in, one batch of subgraphs out,
// one sink call per payload; individual bad records are dropped, never the
// batch.
package generator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/fohlab/grapl/pkg/graph"
	"github.com/fohlab/grapl/pkg/sysmon"
)

// Decoder parses one raw record into a typed telemetry event. The wire
// encoding of a record belongs to the telemetry-format library, not to
// this package.
type Decoder func(record string) (sysmon.Event, error)

// Sink receives the assembled batch, exactly once per processed payload,
// empty batches included. The generator propagates its failure and never
// retries.
type Sink func(ctx context.Context, batch *graph.Batch) error

// Generator is the telemetry-to-graph mapping pipeline. It is stateless
// across payloads apart from counters.
type Generator struct {
	decode  Decoder
	sink    Sink
	workers int
	logger  *slog.Logger

	recordsMapped  atomic.Uint64
	recordsDropped atomic.Uint64
	batchesHandled atomic.Uint64
	sinkFailures   atomic.Uint64
}

// New creates a Generator. workers bounds the per-record mapping
// concurrency; values below 1 are raised to 1.
func New(decode Decoder, sink Sink, workers int, logger *slog.Logger) *Generator {
	if workers < 1 {
		workers = 1
	}
	return &Generator{
		decode:  decode,
		sink:    sink,
		workers: workers,
		logger:  logger.With("component", "generator"),
	}
}

// MapEvent dispatches a typed event to its construction rule. Adding a new
// event kind without a rule here fails at the default arm.
func MapEvent(ev sysmon.Event) (*graph.Graph, error) {
	switch ev := ev.(type) {
	case *sysmon.ProcessCreateEvent:
		return handleProcessCreate(ev)
	case *sysmon.FileCreateEvent:
		return handleFileCreate(ev)
	case *sysmon.InboundNetworkEvent:
		return handleInboundConnection(ev)
	case *sysmon.OutboundNetworkEvent:
		return handleOutboundConnection(ev)
	default:
		return nil, &MappingError{
			EventKind: string(ev.Kind()),
			Field:     "event",
			Err:       fmt.Errorf("no construction rule for event kind"),
		}
	}
}

// Handle splits the payload into newline-delimited records, maps each
// record concurrently with per-record failure isolation, and hands the
// surviving fragments to the sink in a single call. A fully malformed
// payload yields an empty, successfully delivered batch.
func (g *Generator) Handle(ctx context.Context, payload []byte) error {
	records := bytes.Split(payload, []byte{'\n'})
	subgraphs := g.mapRecords(ctx, records)

	// A cancelled run is discarded wholesale: no partial batch reaches
	// the sink.
	if err := ctx.Err(); err != nil {
		return err
	}

	g.logger.Info("mapped payload",
		"records", len(records),
		"subgraphs", len(subgraphs),
	)

	batch := &graph.Batch{Subgraphs: subgraphs}
	g.batchesHandled.Add(1)
	metricBatchesHandled.Inc()

	if err := g.sink(ctx, batch); err != nil {
		g.sinkFailures.Add(1)
		metricSinkFailures.Inc()
		return &SinkError{Err: err}
	}
	return nil
}

// Stats returns pipeline counters.
func (g *Generator) Stats() map[string]interface{} {
	return map[string]interface{}{
		"records_mapped":  g.recordsMapped.Load(),
		"records_dropped": g.recordsDropped.Load(),
		"batches_handled": g.batchesHandled.Load(),
		"sink_failures":   g.sinkFailures.Load(),
	}
}

// mapRecords fans records out across the worker pool and collects the
// successful fragments. Record order is not preserved; each record's
// parse-and-map sequence is a pure function of that record alone.
func (g *Generator) mapRecords(ctx context.Context, records [][]byte) []*graph.Graph {
	in := make(chan []byte)
	out := make(chan *graph.Graph)

	var wg sync.WaitGroup
	for i := 0; i < g.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range in {
				if sub := g.mapRecord(record); sub != nil {
					out <- sub
				}
			}
		}()
	}

	go func() {
		defer close(in)
		for _, record := range records {
			select {
			case in <- record:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	subgraphs := make([]*graph.Graph, 0, len(records))
	for sub := range out {
		subgraphs = append(subgraphs, sub)
	}
	return subgraphs
}

// mapRecord decodes and maps one record, absorbing its failures: the
// caller gets either a fragment or nil, never an error that could abort
// sibling records.
func (g *Generator) mapRecord(record []byte) *graph.Graph {
	// Lossy decode: minor encoding noise replaces bytes rather than
	// rejecting the record outright.
	text := strings.ToValidUTF8(string(record), string(utf8.RuneError))

	ev, err := g.decode(text)
	if err != nil {
		g.recordsDropped.Add(1)
		metricRecordsDropped.WithLabelValues("decode").Inc()
		g.logger.Debug("dropping undecodable record", "error", err)
		return nil
	}

	sub, err := MapEvent(ev)
	if err != nil {
		g.recordsDropped.Add(1)
		metricRecordsDropped.WithLabelValues("map").Inc()
		g.logger.Warn("dropping unmappable record",
			"event_kind", string(ev.Kind()),
			"error", err,
		)
		return nil
	}

	g.recordsMapped.Add(1)
	metricRecordsMapped.Inc()
	return sub
}
