package control

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// lineFilter holds the instrumented-lines sidecar: the (file basename,
// line) locations a partial instrumentation pass restricts itself to.
type lineFilter struct {
	mu    sync.Mutex
	lines map[fileLine]struct{}
}

type fileLine struct {
	file string
	line int
}

func newLineFilter() lineFilter {
	return lineFilter{lines: make(map[fileLine]struct{})}
}

// load parses the sidecar: "file line" per row, non-alphabetic first
// characters skipped, same conventions as the static profile itself.
func (f *lineFilter) load(path string) error {
	fh, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "control: open instrumented lines %s", path)
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		text := sc.Text()
		if text == "" || !isAlpha(text[0]) {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			continue
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.lines[fileLine{fields[0], n}] = struct{}{}
		f.mu.Unlock()
	}
	return errors.Wrapf(sc.Err(), "control: read instrumented lines %s", path)
}

// contains reports whether the location is instrumented. An empty filter
// means the sidecar was absent: everything is instrumented.
func (f *lineFilter) contains(file string, line int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) == 0 {
		return true
	}
	_, ok := f.lines[fileLine{file, line}]
	return ok
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
