package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/go-remix/internal/conf"
	"github.com/tphakala/go-remix/internal/errors"
	"github.com/tphakala/go-remix/internal/logging"
)

const componentFFmpeg = "audiocore-ffmpeg"

func logger() *slog.Logger {
	return logging.ServiceOrDefault(componentFFmpeg)
}

// ValidatePath resolves the ffmpeg binary. An empty path looks up the
// platform default name on PATH.
func ValidatePath(path string) (string, error) {
	if path == "" {
		path = conf.GetFfmpegBinaryName()
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return "", errors.New(err).
			Component(componentFFmpeg).
			Category(errors.CategoryConfiguration).
			Context("ffmpeg_path", path).
			Build()
	}
	return resolved, nil
}

// stderrTail keeps the last bytes ffmpeg wrote to stderr
type stderrTail struct {
	mu sync.Mutex
	rb *ringbuffer.RingBuffer
}

func newStderrTail(size int) *stderrTail {
	return &stderrTail{rb: ringbuffer.New(size)}
}

// Write never fails; older output is dropped to make room.
func (t *stderrTail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if c := t.rb.Capacity(); len(p) > c {
		p = p[len(p)-c:]
	}
	if over := len(p) - t.rb.Free(); over > 0 {
		_, _ = t.rb.Read(make([]byte, over))
	}
	if len(p) > 0 {
		_, _ = t.rb.Write(p)
	}
	return n, nil
}

func (t *stderrTail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf := make([]byte, t.rb.Length())
	n, _ := t.rb.Read(buf)
	if n > 0 {
		_, _ = t.rb.Write(buf[:n])
	}
	return strings.TrimSpace(string(buf[:n]))
}

// process runs one ffmpeg invocation with stdin fed from a reader and stdout
// exposed for reading
type process struct {
	id     string
	config Config
	args   []string
	input  io.Reader

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *stderrTail
	cancel context.CancelFunc

	bytesRead atomic.Int64
	startTime time.Time
	stopped   atomic.Bool

	startOnce sync.Once
	startErr  error
	waitOnce  sync.Once
	waitErr   error
	stopOnce  sync.Once
	stopErr   error
	done      chan struct{}
}

func newProcess(cfg Config, args []string, input io.Reader) *process {
	return &process{
		id:     cfg.ID,
		config: cfg,
		args:   args,
		input:  input,
		stderr: newStderrTail(stderrTailSize),
		done:   make(chan struct{}),
	}
}

// Start launches ffmpeg. Later calls return the result of the first.
func (p *process) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		p.startErr = p.start(ctx)
	})
	return p.startErr
}

func (p *process) start(ctx context.Context) error {
	if p.config.FFmpegPath == "" {
		return errors.Newf("ffmpeg path is not configured").
			Component(componentFFmpeg).
			Category(errors.CategoryConfiguration).
			Context("process_id", p.id).
			Build()
	}

	var pctx context.Context
	pctx, p.cancel = context.WithCancel(ctx)

	p.cmd = exec.CommandContext(pctx, p.config.FFmpegPath, p.args...) //nolint:gosec // binary path comes from validated settings
	p.cmd.Stdin = p.input
	p.cmd.Stderr = p.stderr

	var err error
	p.stdout, err = p.cmd.StdoutPipe()
	if err != nil {
		p.cancel()
		return errors.New(err).
			Component(componentFFmpeg).
			Category(errors.CategoryProcess).
			Context("operation", "create-stdout-pipe").
			Context("process_id", p.id).
			Build()
	}

	if err := p.cmd.Start(); err != nil {
		p.cancel()
		logger().Error("failed to start ffmpeg",
			"process_id", p.id,
			"command", p.config.FFmpegPath,
			"error", err)
		return errors.New(err).
			Component(componentFFmpeg).
			Category(errors.CategoryProcess).
			Context("operation", "start-ffmpeg").
			Context("process_id", p.id).
			Context("command", p.config.FFmpegPath).
			Context("args", strings.Join(p.args, " ")).
			Build()
	}

	p.startTime = time.Now()
	logger().Debug("ffmpeg started",
		"process_id", p.id,
		"pid", p.cmd.Process.Pid,
		"arg_count", len(p.args))
	return nil
}

// Read reads decoded output from stdout.
func (p *process) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	p.bytesRead.Add(int64(n))
	return n, err
}

// Wait waits for ffmpeg to exit. The caller must have drained stdout.
// A non-zero exit is reported with the tail of stderr.
func (p *process) Wait() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	p.waitOnce.Do(func() {
		defer close(p.done)
		err := p.cmd.Wait()
		p.cancel()
		if err == nil || p.stopped.Load() {
			logger().Debug("ffmpeg exited",
				"process_id", p.id,
				"bytes_read", p.bytesRead.Load(),
				"runtime_ms", time.Since(p.startTime).Milliseconds())
			return
		}
		p.waitErr = p.exitError(err)
	})
	<-p.done
	return p.waitErr
}

func (p *process) exitError(err error) error {
	tail := p.stderr.String()
	msg := "ffmpeg failed"
	if tail != "" {
		msg = fmt.Sprintf("ffmpeg failed: %s", lastLine(tail))
	}
	return errors.New(fmt.Errorf("%s: %w", msg, err)).
		Component(componentFFmpeg).
		Category(errors.CategoryProcess).
		Context("process_id", p.id).
		Context("exit_code", exitCode(err)).
		Context("stderr", tail).
		Build()
}

// Stop ends the process early. Closing stdout makes ffmpeg fail its next
// write; if it has not exited within StopTimeout it is killed.
func (p *process) Stop() error {
	p.stopOnce.Do(func() {
		if p.cmd == nil || p.cmd.Process == nil {
			return
		}
		p.stopped.Store(true)
		_ = p.stdout.Close()

		waited := make(chan error, 1)
		go func() { waited <- p.Wait() }()

		select {
		case p.stopErr = <-waited:
		case <-time.After(p.config.StopTimeout):
			logger().Warn("ffmpeg did not exit after stop, killing",
				"process_id", p.id,
				"timeout_ms", p.config.StopTimeout.Milliseconds())
			p.cancel()
			p.stopErr = <-waited
		}
	})
	return p.stopErr
}

// Metrics returns process metrics.
func (p *process) Metrics() ProcessMetrics {
	m := ProcessMetrics{
		StartTime: p.startTime,
		BytesRead: p.bytesRead.Load(),
		ExitCode:  -1,
	}
	if !p.startTime.IsZero() {
		m.Runtime = time.Since(p.startTime)
	}
	if p.cmd != nil && p.cmd.ProcessState != nil {
		m.ExitCode = p.cmd.ProcessState.ExitCode()
	}
	return m
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// buildArgs assembles an ffmpeg command line reading input and writing
// output to stdout.
func buildArgs(input string, output []string, extra []string) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
	}
	args = append(args, output...)
	args = append(args, extra...)
	return append(args, "pipe:1")
}

// pcmOutputArgs selects raw little-endian 16-bit PCM at the configured rate.
func pcmOutputArgs(cfg Config) []string {
	return []string{
		"-f", "s16le",
		"-acodec", DefaultOutputCodec,
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-ac", strconv.Itoa(cfg.Channels),
	}
}

// inputSource returns the ffmpeg input argument and the reader to feed on
// stdin. In-memory data is piped; a bare path is read by ffmpeg directly.
func inputSource(data []byte, path string) (string, io.Reader) {
	if data == nil && path != "" {
		return path, nil
	}
	return "pipe:0", bytes.NewReader(data)
}
