package indexer

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	hashA = "0f1e2d3c4b5a69788796a5b4c3d2e1f00f1e2d3c4b5a69788796a5b4c3d2e1f0"
	hashB = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func feedAll(t *testing.T, p *StreamParser, fixture string) {
	t.Helper()
	for _, line := range strings.Split(fixture, "\n") {
		require.NoError(t, p.Feed(line))
	}
}

func TestStreamParser_Fixture(t *testing.T) {
	fixture := strings.Join([]string{
		"--section-start--",
		"version,build_time",
		"v1.4.0,2024-11-02T10:00:00Z",
		"--section-start--",
		"id",
		hashA,
		`{"level":"info","msg":"indexed 12 files"}`,
		hashB,
	}, "\n")

	var got []string
	p := NewStreamParser(func(hash string) error {
		got = append(got, hash)
		return nil
	})
	feedAll(t, p, fixture)

	assert.Equal(t, []string{hashA, hashB}, got)
	assert.Equal(t, "v1.4.0", p.Version)
	assert.Equal(t, "2024-11-02T10:00:00Z", p.BuildTime)
}

func TestStreamParser_DiscardsNoise(t *testing.T) {
	fixture := strings.Join([]string{
		hashA, // 标记之前
		"--section-start--",
		"id",
		"",
		"   ",
		strings.ToUpper(hashB),
		hashB[:63],
		hashB + "0",
		"  " + hashB + "  ",
		"--section-start--",
		"chunks",
		hashA, // 未知段
		"--section-start--",
		"version,build_time",
		"only-one-field",
	}, "\n")

	var got []string
	p := NewStreamParser(func(hash string) error {
		got = append(got, hash)
		return nil
	})
	feedAll(t, p, fixture)

	assert.Equal(t, []string{hashB}, got)
	assert.Empty(t, p.Version)
}

func TestStreamParser_CallbackError(t *testing.T) {
	boom := errors.New("tracker unavailable")
	p := NewStreamParser(func(string) error { return boom })

	require.NoError(t, p.Feed("--section-start--"))
	require.NoError(t, p.Feed("id"))
	assert.ErrorIs(t, p.Feed(hashA), boom)
}
