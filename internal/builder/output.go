package builder

import (
	"bufio"
	"io"
	"strings"

	"go.uber.org/zap"
)

const (
	tailLines   = 20
	maxLineSize = 1024 * 1024
)

// tail keeps the last lines written to it.
type tail struct {
	lines []string
	next  int
	full  bool
}

func newTail(n int) *tail {
	return &tail{lines: make([]string, n)}
}

func (t *tail) add(line string) {
	t.lines[t.next] = line
	t.next = (t.next + 1) % len(t.lines)
	if t.next == 0 {
		t.full = true
	}
}

func (t *tail) String() string {
	if !t.full {
		return strings.Join(t.lines[:t.next], "\n")
	}
	ordered := append(append([]string{}, t.lines[t.next:]...), t.lines[:t.next]...)
	return strings.Join(ordered, "\n")
}

// stream logs r line by line and keeps its tail. Lines longer than maxLineSize end the
// logging but r is still drained so the writer never blocks.
func stream(r io.Reader, log *zap.SugaredLogger, t *tail) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		log.Info(line)
		t.add(line)
	}
	if err := scanner.Err(); err != nil {
		log.Warnw("build output is no longer logged", "error", err)
	}
	_, _ = io.Copy(io.Discard, r)
}
