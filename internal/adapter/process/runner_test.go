package process

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecRunner_StreamsLinesInOrder(t *testing.T) {
	script := writeScript(t, `echo "first"
echo "second"
echo "noise" 1>&2
echo "$CODE_INDEXER_OUTPUT_MODE"
`)

	var lines []string
	res, err := NewExecRunner().Run(context.Background(), Command{
		Path: script,
		Env:  []string{"CODE_INDEXER_OUTPUT_MODE=stream"},
	}, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, []string{"first", "second", "stream"}, lines)
	assert.Equal(t, "noise\n", res.Output)
}

func TestExecRunner_PassesArgs(t *testing.T) {
	script := writeScript(t, `for a in "$@"; do echo "$a"; done`)

	var lines []string
	_, err := NewExecRunner().Run(context.Background(), Command{
		Path: script,
		Args: []string{"-adapter", "elasticsearch", "-options", `{"a":1}`},
	}, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"-adapter", "elasticsearch", "-options", `{"a":1}`}, lines)
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "disk full" 1>&2
exit 3
`)

	res, err := NewExecRunner().Run(context.Background(), Command{Path: script}, nil)
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, 3, res.ExitStatus)
	assert.Contains(t, res.Output, "disk full")
}

func TestExecRunner_CombineOutput(t *testing.T) {
	script := writeScript(t, `echo "deleted partition"
echo "warn" 1>&2
exit 1
`)

	res, err := NewExecRunner().Run(context.Background(), Command{Path: script, CombineOutput: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitStatus)
	assert.Contains(t, res.Output, "deleted partition")
	assert.Contains(t, res.Output, "warn")
}

func TestExecRunner_Timeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)

	res, err := NewExecRunner().Run(context.Background(), Command{Path: script, Timeout: 100 * time.Millisecond}, nil)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Success())
	assert.Contains(t, res.Output, "timed out")
}

func TestExecRunner_SinkErrorStopsProcess(t *testing.T) {
	script := writeScript(t, `echo one
sleep 5
echo two
`)

	sinkErr := errors.New("tracking failed")
	start := time.Now()
	_, err := NewExecRunner().Run(context.Background(), Command{Path: script}, func(string) error {
		return sinkErr
	})
	assert.ErrorIs(t, err, sinkErr)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), Command{Path: filepath.Join(t.TempDir(), "missing")}, nil)
	assert.Error(t, err)
}

func TestExecRunner_DropsOversizedLine(t *testing.T) {
	script := writeScript(t, `head -c 2000000 /dev/zero | tr '\0' x
echo
i=0
while [ $i -lt 2000 ]; do echo "log $i"; i=$((i+1)); done
echo "after"
`)

	var lines []string
	start := time.Now()
	res, err := NewExecRunner().Run(context.Background(), Command{
		Path:    script,
		Timeout: 20 * time.Second,
	}, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Less(t, time.Since(start), 10*time.Second)
	require.Len(t, lines, 2001)
	assert.Equal(t, "log 0", lines[0])
	assert.Equal(t, "after", lines[len(lines)-1])
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReadLines(t *testing.T) {
	input := "a\r\n" + strings.Repeat("y", 40) + "\nb\n\nlast"
	var lines []string
	err := readLines(strings.NewReader(input), 16, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "", "last"}, lines)

	broken := errors.New("pipe broken")
	err = readLines(&failingReader{data: []byte("one\ntw"), err: broken}, 16, func(line string) error {
		return nil
	})
	assert.ErrorIs(t, err, broken)
}
