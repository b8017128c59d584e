package remux

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/narwhalmedia/narwhal-player/internal/domain/download"
)

// parseProgress reads ffmpeg "-progress" key=value output and emits one
// sample per block. A block ends with a "progress=" line.
func parseProgress(r io.Reader, emit func(download.RemuxStats)) error {
	scanner := bufio.NewScanner(r)
	var cur download.RemuxStats

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch key {
		case "frame":
			if v, err := strconv.ParseInt(value, 10, 64); err == nil {
				cur.Frame = v
			}
		case "fps":
			if v, err := strconv.ParseFloat(value, 64); err == nil {
				cur.FPS = v
			}
		case "out_time_us", "out_time_ms":
			// both are microseconds
			if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
				cur.OutTime = time.Duration(v) * time.Microsecond
			}
		case "speed":
			if v, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
				cur.Speed = v
			}
		case "progress":
			cur.Done = value == "end"
			emit(cur)
			if cur.Done {
				return scanner.Err()
			}
		}
	}
	return scanner.Err()
}

// tailBuffer keeps the last n lines written to it
type tailBuffer struct {
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n, lines: make([]string, 0, n)}
}

func (t *tailBuffer) add(line string) {
	if len(t.lines) == t.n {
		copy(t.lines, t.lines[1:])
		t.lines = t.lines[:t.n-1]
	}
	t.lines = append(t.lines, line)
}

func (t *tailBuffer) snapshot() []string {
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}
