package hints

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedLoader() (*Loader, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return NewLoader(zap.New(core)), logs
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPlainHintsSkipWrongLength(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hints.txt", "1.0,2.0\n1.0,2.0,3.0\n")
	loader, logs := newObservedLoader()

	var acc []Vector
	require.NoError(t, loader.Load([]string{path}, 2, false, &acc))

	assert.Equal(t, []Vector{{1.0, 2.0}}, acc)
	assert.Equal(t, 1, logs.FilterMessage("Skipped a hint line of unexpected length").Len())
}

func TestParameterFileKeepsMiddleSegment(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "params.ini", "0,0,5,5,10,10\n")
	loader, _ := newObservedLoader()

	var acc []Vector
	require.NoError(t, loader.Load([]string{path}, 2, true, &acc))

	assert.Equal(t, []Vector{{5, 5}}, acc)
}

func TestMalformedLinesDoNotStopLoading(t *testing.T) {
	dir := t.TempDir()
	content := "1 2 3\n\n  \nabc,1,2\n4;5;6\nNaN,1,2\n7\t8\t9\n1,2\n"
	path := writeFile(t, dir, "hints.txt", content)
	loader, logs := newObservedLoader()

	var acc []Vector
	require.NoError(t, loader.Load([]string{path}, 3, false, &acc))

	assert.Equal(t, []Vector{{1, 2, 3}, {4, 5, 6}, {7, 8, 9}}, acc)
	assert.Equal(t, 2, logs.FilterMessage("Skipped a possibly corrupted hint line").Len())
	assert.Equal(t, 1, logs.FilterMessage("Skipped a hint line of unexpected length").Len())

	loaded := logs.FilterMessage("Loaded hints").All()
	require.Len(t, loaded, 1)
	assert.Equal(t, int64(3), loaded[0].ContextMap()["count"])
}

func TestWildcardPattern(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hint", "1,1\n")
	writeFile(t, dir, "b.hint", "2,2\n3,3\n")
	writeFile(t, dir, "c.txt", "9,9\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d.hint"), 0755))

	loader, _ := newObservedLoader()
	loader.CaseInsensitive = false

	var acc []Vector
	require.NoError(t, loader.Load([]string{filepath.Join(dir, "*.hint")}, 2, false, &acc))
	assert.ElementsMatch(t, []Vector{{1, 1}, {2, 2}, {3, 3}}, acc)
}

func TestWildcardCaseSensitivity(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "UPPER.HINT", "1,1\n")
	pattern := filepath.Join(dir, "*.hint")

	loader, _ := newObservedLoader()

	loader.CaseInsensitive = false
	var acc []Vector
	require.NoError(t, loader.Load([]string{pattern}, 2, false, &acc))
	assert.Empty(t, acc)

	loader.CaseInsensitive = true
	require.NoError(t, loader.Load([]string{pattern}, 2, false, &acc))
	assert.Equal(t, []Vector{{1, 1}}, acc)
}

func TestMissingDirectoryFails(t *testing.T) {
	loader, _ := newObservedLoader()

	var acc []Vector
	err := loader.Load([]string{filepath.Join(t.TempDir(), "nope", "*.hint")}, 2, false, &acc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSource))
}

func TestExistingDirectoryWithoutMatchesIsNotAnError(t *testing.T) {
	loader, _ := newObservedLoader()

	var acc []Vector
	require.NoError(t, loader.Load([]string{filepath.Join(t.TempDir(), "*.hint")}, 2, false, &acc))
	assert.Empty(t, acc)
}

func TestRepeatedLoadIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hint", "1,2\n3,4\n")
	writeFile(t, dir, "b.hint", "5,6\n")
	pattern := filepath.Join(dir, "*.hint")
	loader, _ := newObservedLoader()

	var first, second []Vector
	require.NoError(t, loader.Load([]string{pattern}, 2, false, &first))
	require.NoError(t, loader.Load([]string{pattern}, 2, false, &second))
	assert.Equal(t, first, second)
}

func TestParseLine(t *testing.T) {
	values, err := ParseLine("1.5, -2e3;\t4")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2000, 4}, values)

	_, err = ParseLine("1,+Inf")
	assert.Error(t, err)
}
