// Package hints loads seed vectors for the solver from plain hint files and
// from parameter files.
//
// A hint file holds one vector per line, values separated by commas,
// semicolons or whitespace. A parameter file line holds a full bounded
// triple (lower bounds, values, upper bounds); only the values are kept.
package hints

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ErrSource is wrapped by errors for patterns whose directory cannot be resolved.
var ErrSource = errors.New("hint source cannot be resolved")

// Vector is one candidate parameter vector.
type Vector []float64

// Loader resolves hint patterns and parses the files they name.
type Loader struct {
	logger *zap.Logger
	// CaseInsensitive controls wildcard matching; it defaults to the
	// convention of the host filesystem.
	CaseInsensitive bool
}

// NewLoader creates a loader logging skipped lines and per-file counts to logger.
func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		logger:          logger.Named("hints"),
		CaseInsensitive: runtime.GOOS == "windows" || runtime.GOOS == "darwin",
	}
}

// Load appends to acc every vector of expectedSize found in the files named
// by patterns. With parameterFile set, lines must hold 3*expectedSize values
// and the middle third is kept. Malformed lines are skipped with a warning;
// only an unresolvable pattern directory fails the call, leaving vectors
// from earlier patterns in acc.
func (l *Loader) Load(patterns []string, expectedSize int, parameterFile bool, acc *[]Vector) error {
	for _, pattern := range patterns {
		files, err := l.resolve(pattern)
		if err != nil {
			return err
		}
		for _, file := range files {
			vectors, err := l.parseFile(file, expectedSize, parameterFile)
			if err != nil {
				l.logger.Warn("Cannot read hints file", zap.String("file", file), zap.Error(err))
				continue
			}
			*acc = append(*acc, vectors...)
			l.logger.Info("Loaded hints", zap.String("file", file), zap.Int("count", len(vectors)))
		}
	}
	return nil
}

// resolve returns the files a pattern stands for: the pattern itself when it
// names an existing regular file or symbolic link, otherwise every regular
// entry of its parent directory matching the file name wildcard, in
// directory order.
func (l *Loader) resolve(pattern string) ([]string, error) {
	if info, err := os.Lstat(pattern); err == nil {
		if info.Mode().IsRegular() || info.Mode()&os.ModeSymlink != 0 {
			return []string{pattern}, nil
		}
	}

	dir, wildcard := filepath.Split(pattern)
	if dir == "" {
		dir = "."
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: directory %q of pattern %q does not exist", ErrSource, dir, pattern)
	}
	if _, err := filepath.Match(wildcard, ""); err != nil {
		return nil, fmt.Errorf("%w: malformed pattern %q: %v", ErrSource, pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot list %q: %v", ErrSource, dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if l.match(wildcard, entry.Name()) {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

func (l *Loader) match(wildcard, name string) bool {
	if l.CaseInsensitive {
		wildcard, name = strings.ToLower(wildcard), strings.ToLower(name)
	}
	ok, _ := filepath.Match(wildcard, name)
	return ok
}

func (l *Loader) parseFile(path string, expectedSize int, parameterFile bool) ([]Vector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return l.parse(f, path, expectedSize, parameterFile)
}

func (l *Loader) parse(r io.Reader, source string, expectedSize int, parameterFile bool) ([]Vector, error) {
	want := expectedSize
	if parameterFile {
		want = 3 * expectedSize
	}

	var vectors []Vector
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		values, err := ParseLine(line)
		if err != nil {
			l.logger.Warn("Skipped a possibly corrupted hint line", zap.String("file", source), zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if len(values) != want {
			l.logger.Warn("Skipped a hint line of unexpected length",
				zap.String("file", source),
				zap.Int("line", lineNo),
				zap.Int("len", len(values)),
				zap.Int("expected", want),
			)
			continue
		}
		if parameterFile {
			values = values[expectedSize : 2*expectedSize]
		}
		vectors = append(vectors, Vector(values))
	}
	if err := scanner.Err(); err != nil {
		return vectors, fmt.Errorf("failed to scan %s: %w", source, err)
	}
	return vectors, nil
}

// ParseLine splits a line at commas, semicolons and whitespace and parses
// every field as a finite float.
func ParseLine(line string) ([]float64, error) {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	values := make([]float64, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", field)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite number %q", field)
		}
		values = append(values, v)
	}
	return values, nil
}
