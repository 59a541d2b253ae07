package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/monthly-weather-stats/internal/observability"
	"github.com/i474232898/monthly-weather-stats/internal/stats"
)

const maxLineBytes = 1024 * 1024

// Job configures one aggregation run. Results do not depend on Mappers,
// Reducers, ChunkLines or Combine.
type Job struct {
	Mappers    int  // concurrent map workers
	Reducers   int  // shuffle partitions, each reduced by its own goroutine
	ChunkLines int  // lines per input shard
	Combine    bool // pre-aggregate each shard before the shuffle

	Logger  log.FieldLogger
	Metrics *observability.Metrics // optional
}

// Result is the output of a run.
type Result struct {
	RunID        string
	Stats        map[stats.MonthKey]stats.FinalStat
	Observations int64
	Errors       stats.Counters
	Duration     time.Duration

	// Dropped lists months whose sums overflowed. They are not in Stats.
	Dropped []stats.MonthKey
}

// mapOutput is everything one mapper hands to the shuffle.
type mapOutput struct {
	partitions   [][]keyedPartial
	errors       stats.Counters
	observations int64
}

type keyedPartial struct {
	key     stats.MonthKey
	partial stats.PartialStat
}

func (j Job) withDefaults() Job {
	if j.Mappers <= 0 {
		j.Mappers = 4
	}
	if j.Reducers <= 0 {
		j.Reducers = 1
	}
	if j.ChunkLines <= 0 {
		j.ChunkLines = 10000
	}
	if j.Logger == nil {
		j.Logger = log.StandardLogger()
	}
	return j
}

// Run reads observation lines from r and aggregates them per month.
func (j Job) Run(ctx context.Context, r io.Reader) (Result, error) {
	j = j.withDefaults()
	start := time.Now()
	runID := uuid.NewString()
	logger := j.Logger.WithFields(log.Fields{
		"run_id":   runID,
		"mappers":  j.Mappers,
		"reducers": j.Reducers,
		"combine":  j.Combine,
	})
	logger.Info("aggregation started")

	outputs, err := j.mapPhase(ctx, r)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		RunID:  runID,
		Errors: stats.Counters{},
	}
	for _, out := range outputs {
		res.Errors.Add(out.errors)
		res.Observations += out.observations
	}

	res.Stats, err = j.reducePhase(ctx, outputs)
	if err != nil {
		return Result{}, err
	}
	res.Dropped = dropNonFinite(res.Stats)
	for _, key := range res.Dropped {
		logger.WithField("month", key).Warn("dropping month with non-finite statistics")
	}
	res.Duration = time.Since(start)

	if j.Metrics != nil {
		j.Metrics.ObservationsParsed.Add(float64(res.Observations))
		for _, kind := range res.Errors.Names() {
			j.Metrics.ParseErrors.WithLabelValues(kind).Add(float64(res.Errors[kind]))
		}
		j.Metrics.MonthsReduced.Add(float64(len(res.Stats)))
		j.Metrics.JobDuration.Observe(res.Duration.Seconds())
	}

	logger.WithFields(log.Fields{
		"observations": res.Observations,
		"months":       len(res.Stats),
		"parse_errors": res.Errors.Total(),
		"duration":     res.Duration,
	}).Info("aggregation finished")
	return res, nil
}

// mapPhase shards the input and runs the mappers. Each mapper owns its output
// slot; nothing is shared until every mapper has returned.
func (j Job) mapPhase(ctx context.Context, r io.Reader) ([]mapOutput, error) {
	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan []string)

	g.Go(func() error {
		defer close(chunks)
		return readChunks(gctx, r, j.ChunkLines, chunks, j.Logger)
	})

	outputs := make([]mapOutput, j.Mappers)
	for i := 0; i < j.Mappers; i++ {
		i := i
		g.Go(func() error {
			out, err := j.mapper(gctx, chunks)
			outputs[i] = out
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("map phase: %w", err)
	}
	return outputs, nil
}

func (j Job) mapper(ctx context.Context, chunks <-chan []string) (mapOutput, error) {
	out := mapOutput{
		partitions: make([][]keyedPartial, j.Reducers),
		errors:     stats.Counters{},
	}
	combiner := stats.NewCombiner()

	emit := func(key stats.MonthKey, p stats.PartialStat) {
		i := partitionFor(key, j.Reducers)
		out.partitions[i] = append(out.partitions[i], keyedPartial{key: key, partial: p})
	}

	for chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		for _, line := range chunk {
			key, p, err := stats.ParseLine(line)
			if err != nil {
				var perr *stats.ParseError
				if errors.As(err, &perr) {
					out.errors.Inc(string(perr.Kind))
				}
				j.Logger.WithError(err).Debug("skipping observation line")
				continue
			}
			out.observations++
			if j.Combine {
				combiner.Add(key, p)
			} else {
				emit(key, p)
			}
		}
		for key, p := range combiner.Drain() {
			emit(key, p)
		}
	}
	return out, nil
}

// reducePhase groups each partition by key and reduces every key exactly once.
func (j Job) reducePhase(ctx context.Context, outputs []mapOutput) (map[stats.MonthKey]stats.FinalStat, error) {
	g, gctx := errgroup.WithContext(ctx)
	results := make([]map[stats.MonthKey]stats.FinalStat, j.Reducers)

	for p := 0; p < j.Reducers; p++ {
		p := p
		g.Go(func() error {
			grouped := make(map[stats.MonthKey][]stats.PartialStat)
			for _, out := range outputs {
				for _, kp := range out.partitions[p] {
					grouped[kp.key] = append(grouped[kp.key], kp.partial)
				}
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			reduced := make(map[stats.MonthKey]stats.FinalStat, len(grouped))
			for key, partials := range grouped {
				reduced[key] = stats.Reduce(key, partials)
			}
			results[p] = reduced
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reduce phase: %w", err)
	}

	all := make(map[stats.MonthKey]stats.FinalStat)
	for _, part := range results {
		for k, v := range part {
			all[k] = v
		}
	}
	return all, nil
}

// readChunks splits r into shards of at most size lines. A line longer than
// maxLineBytes is skipped up to its newline and forwarded as oversizedLine.
func readChunks(ctx context.Context, r io.Reader, size int, out chan<- []string, logger log.FieldLogger) error {
	br := bufio.NewReaderSize(r, 64*1024)

	chunk := make([]string, 0, size)
	send := func() error {
		select {
		case out <- chunk:
			chunk = make([]string, 0, size)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for lineNo := 1; ; lineNo++ {
		line, oversized, err := readLine(br, maxLineBytes)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		if oversized {
			logger.WithField("line", lineNo).Warn("input line exceeds size limit")
		}
		chunk = append(chunk, line)
		if len(chunk) == size {
			if err := send(); err != nil {
				return err
			}
		}
	}
	if len(chunk) > 0 {
		return send()
	}
	return nil
}

// oversizedLine stands in for a line that was too long to buffer. It is not
// a JSON object, so the parser counts it as malformed.
const oversizedLine = ""

// readLine returns the next line without its "\n" or "\r\n" terminator. A line
// with more than limit bytes is consumed and reported as oversizedLine. It
// returns io.EOF only when no bytes remain.
func readLine(br *bufio.Reader, limit int) (string, bool, error) {
	var (
		buf     []byte
		read    bool
		tooLong bool
	)
	for {
		frag, err := br.ReadSlice('\n')
		read = read || len(frag) > 0

		content := frag
		if err == nil {
			content = frag[:len(frag)-1]
		}
		if !tooLong {
			if len(buf)+len(content) > limit {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, content...)
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if !read {
				return "", false, io.EOF
			}
		default:
			return "", false, err
		}

		if tooLong {
			return oversizedLine, true, nil
		}
		return strings.TrimSuffix(string(buf), "\r"), false, nil
	}
}

// dropNonFinite removes months that cannot be encoded as numbers and
// returns their keys in ascending order.
func dropNonFinite(m map[stats.MonthKey]stats.FinalStat) []stats.MonthKey {
	var dropped []stats.MonthKey
	for key, st := range m {
		if !st.Finite() {
			dropped = append(dropped, key)
			delete(m, key)
		}
	}
	sort.Slice(dropped, func(a, b int) bool { return dropped[a] < dropped[b] })
	return dropped
}

// Months returns the reduced month keys in ascending order.
func (r Result) Months() []stats.MonthKey {
	keys := make([]stats.MonthKey, 0, len(r.Stats))
	for k := range r.Stats {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool { return keys[a] < keys[b] })
	return keys
}

// Lines encodes the result, one line per month in ascending month order.
func (r Result) Lines() []string {
	months := r.Months()
	lines := make([]string, len(months))
	for i, k := range months {
		lines[i] = stats.Encode(k, r.Stats[k])
	}
	return lines
}

// WriteTo writes the encoded lines, each terminated by a newline.
func (r Result) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, line := range r.Lines() {
		m, err := bw.WriteString(line + "\n")
		n += int64(m)
		if err != nil {
			return n, err
		}
	}
	return n, bw.Flush()
}
