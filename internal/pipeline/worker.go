package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"codegraph/internal/crawler"
	"codegraph/internal/extractor"
	"codegraph/internal/graph"
	"codegraph/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidPayload marks a worker response that failed validation.
var ErrInvalidPayload = errors.New("invalid worker payload")

// WorkerRequest is written to a worker's stdin as a single JSON document.
type WorkerRequest struct {
	Files             []WorkerFile `json:"files"`
	BuildIndex        bool         `json:"build_index"`
	MaxFileSize       int64        `json:"max_file_size,omitempty"`
	AllowSyntaxErrors bool         `json:"allow_syntax_errors,omitempty"`
}

type WorkerFile struct {
	Index    int    `json:"index"`
	Path     string `json:"path"`
	Language string `json:"language"`
}

// WorkerResponse is one line of worker stdout, one per requested file.
type WorkerResponse struct {
	Index    int             `json:"index"`
	Result   json.RawMessage `json:"result"`
	Error    string          `json:"error,omitempty"`
	Outcome  string          `json:"outcome,omitempty"`
	Duration float64         `json:"duration_seconds"`
}

// remoteError carries a worker-side failure back with its sentinel, so
// errors.Is keeps working across the process boundary.
type remoteError struct {
	msg      string
	sentinel error
}

func (e *remoteError) Error() string { return e.msg }
func (e *remoteError) Unwrap() error { return e.sentinel }

func sentinelFor(outcome string) error {
	switch outcome {
	case telemetry.OutcomeSyntax:
		return extractor.ErrSyntax
	case telemetry.OutcomeEncoding:
		return extractor.ErrInvalidEncoding
	case telemetry.OutcomeTooLarge:
		return extractor.ErrFileTooLarge
	case telemetry.OutcomeUnreadable:
		return extractor.ErrUnreadable
	case telemetry.OutcomePanic:
		return extractor.ErrAdapterPanic
	}
	return nil
}

// ServeWorker is the body of the hidden worker command: it reads one
// request from in and streams one response per file to out.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	var req WorkerRequest
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return fmt.Errorf("failed to decode worker request: %w", err)
	}

	opts := []extractor.Option{
		extractor.WithMaxFileSize(req.MaxFileSize),
		extractor.WithSyntaxErrors(req.AllowSyntaxErrors),
	}
	adapters := make(map[string]extractor.Adapter)
	enc := json.NewEncoder(out)

	for _, f := range req.Files {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp := WorkerResponse{Index: f.Index}

		a, ok := adapters[f.Language]
		if !ok {
			var err error
			a, err = extractor.NewAdapter(f.Language, opts...)
			if err != nil {
				resp.Error = err.Error()
				resp.Outcome = telemetry.Outcome(err)
				resp.Result, _ = json.Marshal(extractor.NewFileResult(f.Path, f.Language))
				if err := enc.Encode(resp); err != nil {
					return err
				}
				continue
			}
			adapters[f.Language] = a
		}

		start := time.Now()
		res, err := extractFile(ctx, a, f.Path, f.Language)
		resp.Duration = time.Since(start).Seconds()
		if err != nil {
			resp.Error = err.Error()
			resp.Outcome = telemetry.Outcome(err)
			logger.Debug("worker failed to extract file", slog.String("path", f.Path), slog.Any("error", err))
		}
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("failed to encode result for %s: %w", f.Path, err)
		}
		resp.Result = data
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return nil
}

// runProcesses shards files round-robin over worker processes. Each
// process feeds its own accumulator; a failing process only fails the
// files it had not answered yet.
func (c *Coordinator) runProcesses(ctx context.Context, files []crawler.Routed, workers int) []*accumulator {
	shards := make([][]int, workers)
	for pos := range files {
		shards[pos%workers] = append(shards[pos%workers], pos)
	}

	accs := make([]*accumulator, workers)
	var g errgroup.Group
	g.SetLimit(workers)
	for w, shard := range shards {
		acc := newAccumulator()
		accs[w] = acc
		g.Go(func() error {
			done, err := c.runWorkerProcess(ctx, files, shard, acc)
			if err == nil {
				return nil
			}
			if ctx.Err() == nil {
				c.logger.Warn("worker process failed", slog.Int("worker", w), slog.Any("error", err))
			}
			for _, pos := range shard {
				if !done[pos] {
					rt := files[pos]
					acc.add(pos, rt, extractor.NewFileResult(rt.Path, rt.Language), fmt.Errorf("worker process: %w", err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return accs
}

func (c *Coordinator) workerCommand() ([]string, error) {
	if len(c.opts.WorkerCommand) > 0 {
		return c.opts.WorkerCommand, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return []string{exe, "worker"}, nil
}

func (c *Coordinator) runWorkerProcess(ctx context.Context, files []crawler.Routed, shard []int, acc *accumulator) (map[int]bool, error) {
	done := make(map[int]bool, len(shard))
	if len(shard) == 0 {
		return done, nil
	}

	req := WorkerRequest{
		BuildIndex:        true,
		MaxFileSize:       c.opts.MaxFileSize,
		AllowSyntaxErrors: c.opts.AllowSyntaxErrors,
	}
	for _, pos := range shard {
		req.Files = append(req.Files, WorkerFile{Index: pos, Path: files[pos].Path, Language: files[pos].Language})
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return done, err
	}

	argv, err := c.workerCommand()
	if err != nil {
		return done, err
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), c.opts.WorkerEnv...)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = os.Stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return done, err
	}
	if err := cmd.Start(); err != nil {
		return done, fmt.Errorf("failed to start worker: %w", err)
	}

	inShard := make(map[int]bool, len(shard))
	for _, pos := range shard {
		inShard[pos] = true
	}

	dec := json.NewDecoder(stdout)
	var decodeErr error
	for {
		var resp WorkerResponse
		if err := dec.Decode(&resp); err != nil {
			if !errors.Is(err, io.EOF) {
				decodeErr = fmt.Errorf("failed to decode worker output: %w", err)
			}
			break
		}
		if !inShard[resp.Index] || done[resp.Index] {
			c.logger.Warn("worker answered for an unexpected file", slog.Int("index", resp.Index))
			continue
		}
		rt := files[resp.Index]
		res, uerr := decodeResult(rt, resp)
		c.metrics.ObserveFile(rt.Language, time.Duration(resp.Duration*float64(time.Second)), uerr)
		if uerr != nil {
			c.logger.Warn("failed to extract file",
				slog.String("path", rt.Path),
				slog.String("language", rt.Language),
				slog.Any("error", uerr))
		}
		acc.add(resp.Index, rt, res, uerr)
		done[resp.Index] = true
	}
	if decodeErr != nil {
		// unblock the child before waiting on it
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		return done, err
	}
	if decodeErr != nil {
		return done, decodeErr
	}
	if len(done) != len(shard) {
		return done, fmt.Errorf("worker answered %d of %d files", len(done), len(shard))
	}
	return done, nil
}

// decodeResult validates the graph part of a response against the snapshot
// schema before trusting it.
func decodeResult(rt crawler.Routed, resp WorkerResponse) (*extractor.FileResult, error) {
	empty := extractor.NewFileResult(rt.Path, rt.Language)

	var probe struct {
		Graph json.RawMessage `json:"graph"`
	}
	if err := json.Unmarshal(resp.Result, &probe); err != nil {
		return empty, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, rt.Path, err)
	}
	if err := graph.ValidateJSON(probe.Graph); err != nil {
		return empty, fmt.Errorf("%w: %s: %w", ErrInvalidPayload, rt.Path, err)
	}

	var res extractor.FileResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		return empty, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, rt.Path, err)
	}
	if res.Graph == nil {
		res.Graph = graph.NewGraph()
	}
	if res.Path != rt.Path {
		return empty, fmt.Errorf("%w: result for %s returned as %s", ErrInvalidPayload, rt.Path, res.Path)
	}

	if resp.Error != "" {
		return &res, &remoteError{msg: resp.Error, sentinel: sentinelFor(resp.Outcome)}
	}
	return &res, nil
}
