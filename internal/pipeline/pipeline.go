// Package pipeline streams conversation rows from CSV through an annotator
// and writes exactly one input,output row per input row, in input order.
package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/threadtag/internal/annotate"
	"github.com/jackzampolin/threadtag/internal/llmcall"
)

// DefaultColumn is the preferred input column holding conversation JSON.
const DefaultColumn = "conversation"

// OutputHeader is the header row of every output file.
var OutputHeader = []string{"input", "output"}

// Annotator produces one Result per conversation.
type Annotator interface {
	Annotate(ctx context.Context, conversation string, policy annotate.RetryPolicy) annotate.Result
}

// Row is one output record.
type Row struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Summary tallies a run.
type Summary struct {
	Total     int `json:"total" yaml:"total"`
	Succeeded int `json:"succeeded" yaml:"succeeded"`
	Failed    int `json:"failed" yaml:"failed"`
	Skipped   int `json:"skipped" yaml:"skipped"`
}

// Pipeline reads rows, annotates them, and writes results.
type Pipeline struct {
	annotator Annotator
	policy    annotate.RetryPolicy
	workers   int
	column    string
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPolicy sets the retry policy passed to the annotator.
func WithPolicy(p annotate.RetryPolicy) Option {
	return func(pl *Pipeline) { pl.policy = p }
}

// WithWorkers sets how many rows are annotated concurrently.
func WithWorkers(n int) Option {
	return func(pl *Pipeline) {
		if n > 0 {
			pl.workers = n
		}
	}
}

// WithColumn sets the preferred conversation column name.
func WithColumn(name string) Option {
	return func(pl *Pipeline) {
		if name != "" {
			pl.column = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// New creates a Pipeline. Defaults: annotate.DefaultPolicy, one worker,
// the "conversation" column.
func New(a Annotator, opts ...Option) *Pipeline {
	p := &Pipeline{
		annotator: a,
		policy:    annotate.DefaultPolicy,
		workers:   1,
		column:    DefaultColumn,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type rowResult struct {
	index  int
	row    Row
	result annotate.Result
}

// Run streams r to w. Per-row failures become error rows; only I/O errors
// and cancellation of ctx end the run early.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, w io.Writer) (Summary, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	writer := csv.NewWriter(w)

	var sum Summary
	header, err := reader.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return sum, fmt.Errorf("failed to read header: %w", err)
	}
	if err := writer.Write(OutputHeader); err != nil {
		return sum, fmt.Errorf("failed to write header: %w", err)
	}
	writer.Flush()
	if len(header) == 0 {
		return sum, writer.Error()
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	results := make(chan rowResult, p.workers)
	emitted := make(chan error, 1)
	go func() { emitted <- p.emit(writer, results, &sum) }()

	var g errgroup.Group
	g.SetLimit(p.workers)

	var readErr error
	for idx := 0; ctx.Err() == nil; idx++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = fmt.Errorf("failed to read row %d: %w", idx+1, err)
			break
		}
		conversation := strings.TrimSpace(ResolveConversation(header, record, p.column))
		g.Go(func() error {
			results <- p.process(ctx, idx, conversation)
			return nil
		})
	}
	_ = g.Wait() // per-row errors are carried in rowResult
	close(results)

	writeErr := <-emitted
	switch {
	case readErr != nil:
		return sum, readErr
	case writeErr != nil:
		return sum, writeErr
	case ctx.Err() != nil:
		return sum, ctx.Err()
	}
	return sum, nil
}

func (p *Pipeline) process(ctx context.Context, idx int, conversation string) rowResult {
	if conversation == "" {
		p.logger.Warn("skipping row", "row", idx, "error", annotate.ErrEmptyConversation)
		res := annotate.EmptyInput()
		return rowResult{index: idx, row: Row{Input: "", Output: res.Text()}, result: res}
	}

	res := p.annotator.Annotate(llmcall.WithRow(ctx, idx), conversation, p.policy)
	if res.OK {
		p.logger.Debug("row annotated", "row", idx, "attempts", res.Attempts, "items", len(res.Items))
	} else {
		p.logger.Warn("row failed", "row", idx, "attempts", res.Attempts, "error", res.Message)
	}
	return rowResult{index: idx, row: Row{Input: conversation, Output: res.Text()}, result: res}
}

// emit writes results in input order, buffering any that finish early.
// It drains results even after a write error so workers never block.
func (p *Pipeline) emit(writer *csv.Writer, results <-chan rowResult, sum *Summary) error {
	pending := make(map[int]rowResult)
	next := 0
	var writeErr error

	for rr := range results {
		pending[rr.index] = rr
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			sum.Total++
			switch {
			case ready.result.OK:
				sum.Succeeded++
			case errors.Is(ready.result.Err, annotate.ErrEmptyConversation):
				sum.Skipped++
			default:
				sum.Failed++
			}

			if writeErr != nil {
				continue
			}
			if err := writer.Write([]string{ready.row.Input, ready.row.Output}); err != nil {
				writeErr = fmt.Errorf("failed to write row %d: %w", ready.index+1, err)
				continue
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				writeErr = fmt.Errorf("failed to flush row %d: %w", ready.index+1, err)
			}
		}
	}
	return writeErr
}

// ResolveConversation picks the conversation payload for a record: the named
// column when present and non-empty, otherwise the first column.
func ResolveConversation(header, record []string, column string) string {
	for i, name := range header {
		if name == column && i < len(record) && record[i] != "" {
			return record[i]
		}
	}
	if len(record) > 0 {
		return record[0]
	}
	return ""
}
