package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Command 外部进程调用参数
type Command struct {
	Path    string
	Args    []string
	Env     []string // 追加到当前进程环境变量之后
	Timeout time.Duration

	// CombineOutput 为 true 时 Result.Output 同时包含 stdout 和 stderr
	CombineOutput bool
}

// Result 进程退出信息, 超时 ExitStatus 为 -1
type Result struct {
	ExitStatus int
	Output     string
	TimedOut   bool
}

func (r *Result) Success() bool {
	return r.ExitStatus == 0 && !r.TimedOut
}

// LineSink 逐行处理 stdout, 返回错误会终止进程
type LineSink func(line string) error

// Runner 调用外部进程
//
// 非零退出和超时不作为 error 返回, 由调用方根据 Result 判断; error 只表示进程无法启动,
// 调用方 ctx 被取消, 或 sink 返回错误.
type Runner interface {
	Run(ctx context.Context, cmd Command, sink LineSink) (*Result, error)
}

const (
	maxLineSize = 1024 * 1024
	waitDelay   = time.Second
)

// ExecRunner os/exec 实现
type ExecRunner struct{}

func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(ctx context.Context, cmd Command, sink LineSink) (*Result, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if cmd.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, cmd.Timeout)
		defer cancelTimeout()
	}

	c := exec.CommandContext(runCtx, cmd.Path, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)
	// 子进程退出后, 孙进程仍可能持有输出管道
	c.WaitDelay = waitDelay

	diag := &syncBuffer{}
	c.Stderr = diag

	stdout, err := c.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	var sinkErr error
	readErr := readLines(stdout, maxLineSize, func(line string) error {
		if cmd.CombineOutput {
			_, _ = diag.Write([]byte(line + "\n"))
		}
		if sink == nil {
			return nil
		}
		if sinkErr = sink(line); sinkErr != nil {
			cancel()
		}
		return sinkErr
	})
	waitErr := c.Wait()

	if sinkErr != nil {
		return nil, sinkErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &Result{
			ExitStatus: -1,
			TimedOut:   true,
			Output:     diag.String() + fmt.Sprintf("timed out after %s", cmd.Timeout),
		}, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if readErr != nil {
		return nil, fmt.Errorf("read stdout of %s: %w", cmd.Path, readErr)
	}

	result := &Result{Output: diag.String()}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("wait %s: %w", cmd.Path, waitErr)
		}
		result.ExitStatus = exitErr.ExitCode()
	}
	return result, nil
}

// readLines 按行回调, 超过 maxLen 的行整行丢弃并继续读取, 保证管道一直被消费.
// fn 返回错误时停止读取并原样返回.
func readLines(r io.Reader, maxLen int, fn func(line string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)
	var (
		buf       []byte
		oversized bool
	)
	for {
		chunk, err := br.ReadSlice('\n')
		if !oversized {
			if len(buf)+len(chunk) > maxLen+1 {
				oversized = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		if !oversized && len(buf) > 0 {
			line := bytes.TrimRight(buf, "\r\n")
			if ferr := fn(string(line)); ferr != nil {
				return ferr
			}
		}
		buf = buf[:0]
		oversized = false

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return nil
		default:
			return err
		}
	}
}

// syncBuffer stderr 由 exec 的拷贝协程写入, 合并输出时和 stdout 并发写
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
