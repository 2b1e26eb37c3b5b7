package process

import (
	"context"
	"sync"
)

// FakeRunner 按脚本返回输出, 记录所有调用
type FakeRunner struct {
	mu sync.Mutex

	Lines      []string
	ExitStatus int
	Output     string
	Err        error

	Calls []Command
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command, sink LineSink) (*Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	for _, line := range f.Lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if sink == nil {
			continue
		}
		if err := sink(line); err != nil {
			return nil, err
		}
	}
	return &Result{ExitStatus: f.ExitStatus, Output: f.Output}, nil
}

// LastCall 最近一次调用
func (f *FakeRunner) LastCall() (Command, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return Command{}, false
	}
	return f.Calls[len(f.Calls)-1], true
}

func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
