package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
)

const barWidth = 30

// Reader passes reads through and reports every chunk to onRead.
type Reader struct {
	r      io.Reader
	total  int64
	read   int64
	onRead func(n int64)
}

// NewReader wraps r, a stream of total bytes. onRead may be nil.
func NewReader(r io.Reader, total int64, onRead func(n int64)) *Reader {
	return &Reader{r: r, total: total, onRead: onRead}
}

func (p *Reader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.onRead != nil {
			p.onRead(int64(n))
		}
	}
	return n, err
}

// Progress returns the bytes consumed so far and the expected total.
func (p *Reader) Progress() (read, total int64) { return p.read, p.total }

// Reporter renders transfer progress for one file. On a terminal it redraws a
// single-line bar; elsewhere it logs a debug event per 10% step.
type Reporter struct {
	mu    sync.Mutex
	name  string
	total int64
	done  int64
	out   io.Writer
	tty   bool
	step  int // last reported 10% step
	start time.Time
}

// NewReporter reports on out (usually os.Stderr).
func NewReporter(name string, total int64, out io.Writer) *Reporter {
	return &Reporter{
		name:  name,
		total: total,
		out:   out,
		tty:   isTerminal(out),
		step:  -1,
		start: time.Now(),
	}
}

// Add records n more transferred bytes.
func (r *Reporter) Add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done += n

	pct := 100
	if r.total > 0 {
		pct = int(r.done * 100 / r.total)
	}
	if r.tty {
		r.draw(pct)
		return
	}
	if step := pct / 10; step > r.step {
		r.step = step
		log.Debug().
			Str("action", "upload_progress").
			Str("name", r.name).
			Int("percent", pct).
			Str("sent", humanize.Bytes(uint64(r.done))).
			Str("total", humanize.Bytes(uint64(r.total))).
			Msg("transfer progress")
	}
}

// Finish terminates the bar line.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tty {
		fmt.Fprintln(r.out)
	}
	log.Debug().
		Str("action", "upload_progress").
		Str("name", r.name).
		Str("sent", humanize.Bytes(uint64(r.done))).
		Dur("elapsed_ms", time.Since(r.start)).
		Msg("transfer done")
}

func (r *Reporter) draw(pct int) {
	pct = min(max(pct, 0), 100)
	filled := barWidth * pct / 100
	fmt.Fprintf(r.out, "\r%s [%s%s] %3d%% %s / %s",
		r.name,
		strings.Repeat("#", filled),
		strings.Repeat(".", barWidth-filled),
		pct,
		humanize.Bytes(uint64(r.done)),
		humanize.Bytes(uint64(r.total)),
	)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
