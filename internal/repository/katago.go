package repository

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"katrain/internal/bootstrap"
	"katrain/internal/domain"
	ownErrors "katrain/internal/errors"
)

const maxResponseLine = 32 * 1024 * 1024

var crashMarkers = []string{"Uncaught exception", "what()"}

type query struct {
	onResult    domain.ResultCallback
	onError     domain.ErrorCallback
	submitted   time.Time
	speculative bool
}

// KatagoClient drives one `katago analysis` process. Queries are written by a
// single writer goroutine and answered by a single reader goroutine; the mutex
// only guards the query map, the counters and the pending write queue.
type KatagoClient struct {
	log   *zap.SugaredLogger
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu           sync.Mutex
	queries      map[string]*query
	counter      int
	basePriority int
	pending      [][]byte
	wake         chan struct{}

	dead     chan struct{}
	deadOnce sync.Once
	err      error

	// readers drain stdout and stderr; the process is reaped after both finish.
	readers sync.WaitGroup
}

// NewKatagoClient starts the engine. A start failure is logged once and yields
// a disabled client instead of an error.
func NewKatagoClient(cfg *bootstrap.Config, log *zap.SugaredLogger) *KatagoClient {
	cmd := exec.Command(
		cfg.KatagoPath,
		"analysis",
		"-model",
		cfg.KatagoModel,
		"-config",
		cfg.KatagoConfig,
	)

	fail := func(err error) *KatagoClient {
		log.Errorw("failed to start katago", "path", cfg.KatagoPath, "error", err)
		return newDisabledClient(log, fmt.Errorf("%w: %v", ownErrors.ErrEngineNotStarted, err))
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fail(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fail(err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fail(err)
	}
	if err := cmd.Start(); err != nil {
		return fail(err)
	}

	log.Infow("katago started", "pid", cmd.Process.Pid, "model", cfg.KatagoModel)
	c := newKatagoClient(stdin, log)
	c.cmd = cmd
	c.startReaders(stdout, stderr, maxResponseLine)
	go c.reap()
	go c.writeRequests()
	return c
}

func newKatagoClient(stdin io.WriteCloser, log *zap.SugaredLogger) *KatagoClient {
	return &KatagoClient{
		log:     log,
		stdin:   stdin,
		queries: make(map[string]*query),
		wake:    make(chan struct{}, 1),
		dead:    make(chan struct{}),
	}
}

// newPipeClient wires a client to arbitrary streams, as if they were a process.
func newPipeClient(stdin io.WriteCloser, stdout, stderr io.Reader, maxLine int, log *zap.SugaredLogger) *KatagoClient {
	c := newKatagoClient(stdin, log)
	c.startReaders(stdout, stderr, maxLine)
	go c.writeRequests()
	return c
}

func (c *KatagoClient) startReaders(stdout, stderr io.Reader, maxLine int) {
	c.readers.Add(1)
	go func() {
		defer c.readers.Done()
		c.listenForResponses(stdout, maxLine)
	}()
	if stderr != nil {
		c.readers.Add(1)
		go func() {
			defer c.readers.Done()
			c.listenForStderr(stderr, maxLine)
		}()
	}
}

func newDisabledClient(log *zap.SugaredLogger, err error) *KatagoClient {
	c := newKatagoClient(nil, log)
	c.err = err
	c.deadOnce.Do(func() { close(c.dead) })
	return c
}

// reap waits for the process once the client is dead and both readers hit
// end of output, as exec.Cmd.Wait must not race pipe reads.
func (c *KatagoClient) reap() {
	<-c.dead
	c.readers.Wait()
	err := c.cmd.Wait()
	c.log.Debugw("katago process exited", "error", err)
}

// SendQuery submits req and returns its id, or "" when the engine is gone.
// Ids are QUERY:n, or REFINE:n for speculative queries, unless req.ID is set.
// Safe to call from inside a callback.
func (c *KatagoClient) SendQuery(req domain.AnalysisRequest, onResult domain.ResultCallback, onError domain.ErrorCallback, speculative bool) string {
	select {
	case <-c.dead:
		return ""
	default:
	}

	overrides := make(map[string]any, len(req.OverrideSettings)+1)
	overrides["reportAnalysisWinratesAs"] = "BLACK"
	for k, v := range req.OverrideSettings {
		overrides[k] = v
	}
	req.OverrideSettings = overrides

	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	if req.ID == "" {
		prefix := "QUERY"
		if speculative {
			prefix = "REFINE"
		}
		req.ID = prefix + ":" + strconv.Itoa(c.counter)
	}
	req.Priority += c.basePriority

	line, err := json.Marshal(req)
	if err != nil {
		c.log.Errorw("failed to marshal katago query", "id", req.ID, "error", err)
		return ""
	}

	c.queries[req.ID] = &query{
		onResult:    onResult,
		onError:     onError,
		submitted:   time.Now(),
		speculative: speculative,
	}
	c.enqueueLocked(append(line, '\n'))
	return req.ID
}

func (c *KatagoClient) enqueueLocked(line []byte) {
	c.pending = append(c.pending, line)
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// OnNewGame invalidates every outstanding query: base priority goes up so new
// queries run first, and the engine is told to terminate the old ones.
func (c *KatagoClient) OnNewGame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.basePriority++
	stale := c.queries
	c.queries = make(map[string]*query)
	c.pending = nil

	for id := range stale {
		c.counter++
		line, err := json.Marshal(domain.TerminateRequest{
			ID:          "TERMINATE:" + strconv.Itoa(c.counter),
			Action:      "terminate",
			TerminateID: id,
		})
		if err != nil {
			continue
		}
		c.enqueueLocked(append(line, '\n'))
	}
	if len(stale) > 0 {
		c.log.Debugw("terminating queries for new game", "count", len(stale), "basePriority", c.basePriority)
	}
}

func (c *KatagoClient) QueriesRemaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries)
}

// IsIdle is true when nothing is outstanding, and always for a dead client.
func (c *KatagoClient) IsIdle() bool {
	select {
	case <-c.dead:
		return true
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queries) == 0 && len(c.pending) == 0
}

// Dead is closed once the engine can no longer answer.
func (c *KatagoClient) Dead() <-chan struct{} {
	return c.dead
}

// Err explains why Dead was closed; it is nil while the engine runs.
func (c *KatagoClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *KatagoClient) Close() error {
	c.shutdown(fmt.Errorf("%w: client closed", ownErrors.ErrEngineDied))
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	return nil
}

func (c *KatagoClient) shutdown(err error) bool {
	stopped := false
	c.deadOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.queries = make(map[string]*query)
		c.pending = nil
		c.mu.Unlock()
		close(c.dead)
		stopped = true
	})
	return stopped
}

func (c *KatagoClient) die(reason string) {
	if c.shutdown(fmt.Errorf("%w: %s", ownErrors.ErrEngineDied, reason)) {
		c.log.Errorw("katago engine died", "reason", reason)
	}
}

func (c *KatagoClient) writeRequests() {
	for {
		select {
		case <-c.wake:
		case <-c.dead:
			return
		}
		for {
			c.mu.Lock()
			if len(c.pending) == 0 {
				c.mu.Unlock()
				break
			}
			line := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()

			if _, err := c.stdin.Write(line); err != nil {
				c.die("write failed: " + err.Error())
				return
			}
		}
	}
}

// listenForResponses reads until end of output. After the client died the
// rest of the output is drained so the process never blocks on a full pipe.
func (c *KatagoClient) listenForResponses(stdout io.Reader, maxLine int) {
	r := bufio.NewReaderSize(stdout, 64*1024)
	for {
		line, tooLong, err := readLine(r, maxLine)
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.die("engine closed its output")
			} else {
				c.die("read failed: " + err.Error())
			}
			return
		}
		if c.isDead() {
			continue
		}
		if tooLong {
			c.log.Warnw("skipping katago line",
				"error", fmt.Errorf("%w: line longer than %d bytes", ownErrors.ErrMalformedResponse, maxLine),
				"line", truncate(line))
			continue
		}
		if crashMarker(string(line)) != "" {
			c.die("crash marker in output: " + string(line))
			continue
		}
		c.handleLine(line)
	}
}

// listenForStderr logs every stderr line, including the ones after a crash
// marker, which usually explain it.
func (c *KatagoClient) listenForStderr(stderr io.Reader, maxLine int) {
	r := bufio.NewReader(stderr)
	for {
		line, _, err := readLine(r, maxLine)
		if err != nil {
			return
		}
		text := string(line)
		if crashMarker(text) != "" {
			c.die("crash marker on stderr: " + text)
		}
		c.log.Debugw("katago stderr", "line", text)
	}
}

// readLine returns the next line without its line ending. A line longer than
// maxLine is consumed whole, cut to maxLine bytes and reported as tooLong.
// A final line without a newline is returned before io.EOF.
func readLine(r *bufio.Reader, maxLine int) ([]byte, bool, error) {
	var line []byte
	read := 0
	for {
		chunk, err := r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			read += len(chunk)
			line = appendCapped(line, chunk, maxLine)
			continue
		}
		if err != nil && read == 0 && len(chunk) == 0 {
			return nil, false, err
		}
		body := bytes.TrimRight(chunk, "\r\n")
		read += len(body)
		line = appendCapped(line, body, maxLine)
		return bytes.TrimRight(line, "\r"), read > maxLine, nil
	}
}

func appendCapped(line, chunk []byte, maxLine int) []byte {
	room := maxLine - len(line)
	if room <= 0 {
		return line
	}
	if len(chunk) > room {
		chunk = chunk[:room]
	}
	return append(line, chunk...)
}

func (c *KatagoClient) isDead() bool {
	select {
	case <-c.dead:
		return true
	default:
		return false
	}
}

func crashMarker(line string) string {
	for _, m := range crashMarkers {
		if strings.Contains(line, m) {
			return m
		}
	}
	return ""
}

func (c *KatagoClient) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var resp domain.AnalysisResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		c.log.Warnw("skipping katago line",
			"error", fmt.Errorf("%w: %v", ownErrors.ErrMalformedResponse, err),
			"line", truncate(line))
		return
	}
	if resp.ID == "" {
		c.log.Errorw("katago response without id", "line", truncate(line))
		return
	}
	if resp.Action == "terminate" {
		c.log.Debugw("katago terminate acknowledged", "id", resp.ID, "terminateId", resp.TerminateID)
		return
	}

	c.mu.Lock()
	q, ok := c.queries[resp.ID]
	if !ok {
		c.mu.Unlock()
		c.log.Debugw("dropping response for unknown query", "id", resp.ID)
		return
	}
	switch {
	case resp.Error != "":
		delete(c.queries, resp.ID)
		c.mu.Unlock()
		c.handleError(q, &resp)
	case resp.Warning != "":
		c.mu.Unlock()
		c.log.Debugw("katago warning", "id", resp.ID, "warning", resp.Warning, "field", resp.Field)
	case resp.IsDuringSearch:
		c.mu.Unlock()
		c.invoke(resp.ID, func() { q.onResult(&resp, true) }, q.onResult != nil)
	default:
		delete(c.queries, resp.ID)
		c.mu.Unlock()
		c.log.Debugw("katago query finished", "id", resp.ID, "elapsed", time.Since(q.submitted))
		c.invoke(resp.ID, func() { q.onResult(&resp, false) }, q.onResult != nil)
	}
}

func (c *KatagoClient) handleError(q *query, resp *domain.AnalysisResponse) {
	if q.onError != nil {
		c.invoke(resp.ID, func() { q.onError(resp) }, true)
		return
	}
	if q.speculative && strings.Contains(resp.Error, "Illegal move") {
		c.log.Debugw("speculative query hit an illegal move", "id", resp.ID, "error", resp.Error)
		return
	}
	c.log.Errorw("katago query failed", "id", resp.ID, "error", resp.Error, "field", resp.Field)
}

func (c *KatagoClient) invoke(id string, fn func(), ok bool) {
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorw("katago callback panicked", "id", id, "panic", r)
		}
	}()
	fn()
}

func truncate(line []byte) string {
	const limit = 256
	if len(line) > limit {
		return string(line[:limit]) + "..."
	}
	return string(line)
}
