package orchestrator

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

// Progress renders per-job completion updates to an output stream. On
// a TTY it redraws a single updating line; otherwise (redirected to a
// file, piped, or running under CI) it falls back to periodic log
// lines so the output stays readable in a log viewer.
type Progress struct {
	out       io.Writer
	tty       bool
	total     int
	done      int
	startedAt time.Time
	lastLog   time.Time
	logEvery  time.Duration
}

// NewProgress builds a Progress writing to out, auto-detecting TTY-ness
// when out is an *os.File.
func NewProgress(out io.Writer, total int) *Progress {
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Progress{
		out:      out,
		tty:      tty,
		total:    total,
		logEvery: 2 * time.Second,
	}
}

// Start records the run's starting time; call once before the first Advance.
func (p *Progress) Start() {
	p.startedAt = time.Now()
	p.lastLog = p.startedAt
}

// Advance records one more completed job and renders progress.
func (p *Progress) Advance(status string) {
	p.done++
	elapsed := time.Since(p.startedAt)

	if p.tty {
		fmt.Fprintf(p.out, "\r%s/%s (%s) elapsed %s", humanize.Comma(int64(p.done)), humanize.Comma(int64(p.total)), status, elapsed.Round(time.Second))
		if p.done == p.total {
			fmt.Fprintln(p.out)
		}
		return
	}

	if p.done == p.total || time.Since(p.lastLog) >= p.logEvery {
		fmt.Fprintf(p.out, "%s/%s done (%s elapsed)\n", humanize.Comma(int64(p.done)), humanize.Comma(int64(p.total)), elapsed.Round(time.Second))
		p.lastLog = time.Now()
	}
}
