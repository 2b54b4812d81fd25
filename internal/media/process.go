package media

import (
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Faiz-k/Intentify/internal/procgroup"
)

const stopGracePeriod = 2 * time.Second

// process runs an encoder subprocess whose stdout carries the stream.
// stdout is an io.Pipe so that Wait never races with readers.
type process struct {
	name   string
	cmd    *exec.Cmd
	stdout *io.PipeReader
	stderr *tailBuffer
	logger *slog.Logger

	done     chan struct{}
	waitErr  error
	stopOnce sync.Once
}

func startProcess(name string, args []string, logger *slog.Logger) (*process, error) {
	pr, pw := io.Pipe()
	tail := newTailBuffer(8 * 1024)

	cmd := exec.Command(name, args...)
	cmd.Stdout = pw
	cmd.Stderr = tail
	procgroup.Isolate(cmd)

	logger.Debug("Starting capture process", "cmd", name, "args", args)

	if err := cmd.Start(); err != nil {
		pw.Close()
		pr.Close()
		return nil, errors.Wrapf(err, "failed to start %s", name)
	}

	p := &process{
		name:   name,
		cmd:    cmd,
		stdout: pr,
		stderr: tail,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		p.waitErr = err
		pw.CloseWithError(io.EOF)
		if err != nil {
			logger.Debug("Capture process exited", "pid", cmd.Process.Pid, "error", err)
		} else {
			logger.Debug("Capture process exited", "pid", cmd.Process.Pid)
		}
		close(p.done)
	}()

	logger.Info("Capture process started", "cmd", name, "pid", cmd.Process.Pid)
	return p, nil
}

// stop asks the process to finish, killing it after the grace period.
// Safe to call more than once.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		// Unblocks the exec copy goroutine if nobody reads stdout anymore
		p.stdout.Close()

		if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
			// os.Interrupt is not supported on Windows
			_ = p.cmd.Process.Kill()
		}

		select {
		case <-p.done:
		case <-time.After(stopGracePeriod):
			p.logger.Warn("Capture process did not exit in time, killing", "pid", p.cmd.Process.Pid)
			_ = p.cmd.Process.Kill()
			<-p.done
		}
	})
}

// exited is closed when the process is gone.
func (p *process) exited() <-chan struct{} {
	return p.done
}

// failure waits briefly for the process to exit and classifies why it failed.
func (p *process) failure(source string, cause error) error {
	exited := false
	select {
	case <-p.done:
		exited = true
	case <-time.After(stopGracePeriod):
	}
	if exited && (cause == nil || errors.Is(cause, io.EOF) || errors.Is(cause, io.ErrUnexpectedEOF)) {
		cause = p.waitErr
	}
	return classifyFailure(source, p.stderr.String(), cause)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
