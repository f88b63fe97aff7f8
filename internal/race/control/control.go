// Package control implements execution control: the layer between the
// instrumentation runtime and the analyzers.
//
// It owns the option registry, the static info database, the analyzer
// list and the thread id space. Every event from
// the instrumentation enters through a Control method, which forwards it to
// each attached analyzer: inline by default, or through the parallel
// detection workers when parallel_detector_number is set.
package control

import (
	"hash/fnv"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/mod/modfile"
	"golang.org/x/sync/errgroup"

	"github.com/kolkov/raceverify/internal/race/analyzer"
	"github.com/kolkov/raceverify/internal/race/event"
	"github.com/kolkov/raceverify/internal/race/knob"
	"github.com/kolkov/raceverify/internal/race/sinfo"
)

// Control is the execution-control instance. The top-level binary creates
// exactly one and passes it to everything that needs it; analyzers receive
// their dependencies at setup time instead of reaching through a global.
type Control struct {
	log   *logrus.Logger
	knobs *knob.Knob
	sinfo *sinfo.StaticInfo

	mu        sync.Mutex
	analyzers []analyzer.Analyzer

	nextThread atomic.Uint64

	workers []*worker
	eg      *errgroup.Group

	lines lineFilter
}

// New creates a control instance over the given logger and registry.
func New(log *logrus.Logger, k *knob.Knob) *Control {
	return &Control{
		log:   log,
		knobs: k,
		sinfo: sinfo.New(),
		lines: newLineFilter(),
	}
}

// Register declares the framework-level options. Analyzer options are
// registered by the analyzers themselves.
func (c *Control) Register() {
	k := c.knobs
	k.RegisterStr("debug_out", "the output file for the debug messages", "stdout")
	k.RegisterStr("sinfo_in", "the input static info database path", "sinfo.db")
	k.RegisterStr("sinfo_out", "the output static info database path", "sinfo.db")
	k.RegisterBool("partial_instrument", "whether instrument a part of the program or not", false)
	k.RegisterStr("static_profile", "the potential race statement pairs generated by static race detector", "0")
	k.RegisterStr("instrumented_lines", "the instrumented lines traversed from static_profile", "0")
	k.RegisterInt("parallel_detector_number", "the number of the parallel detector threads", 0)
	k.RegisterInt("parallel_verifier_number", "the number of the parallel verifier threads", 0)
	k.RegisterBool("ignore_lib", "whether ignore accesses from common libraries", false)
}

// Setup applies the parsed options: debug log destination, the static info
// database, the instrumented-lines filter and the worker pool. Returns an
// error only for operator mistakes; missing databases are tolerated.
func (c *Control) Setup() error {
	switch out := c.knobs.ValueStr("debug_out"); out {
	case "stdout":
		c.log.SetOutput(os.Stdout)
	case "stderr":
		c.log.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "control: open debug_out %s", out)
		}
		c.log.SetOutput(f)
	}

	if err := c.sinfo.Load(c.knobs.ValueStr("sinfo_in")); err != nil {
		c.log.WithError(err).Warn("static info not loaded; proceeding with empty tables")
	}
	if c.sinfo.FindImage(sinfo.PseudoImageName) == nil {
		c.sinfo.CreateImage(sinfo.PseudoImageName)
	}

	if c.knobs.ValueBool("partial_instrument") {
		if path := c.knobs.ValueStr("instrumented_lines"); path != "0" {
			if err := c.lines.load(path); err != nil {
				c.log.WithError(err).Warn("instrumented lines not loaded; instrumenting everything")
			}
		}
	}

	if n := c.knobs.ValueInt("parallel_detector_number"); n > 0 {
		c.startWorkers(n)
	}
	if n := c.knobs.ValueInt("parallel_verifier_number"); n > 0 {
		// Verification threads are owned by the embedding instrumentation
		// runtime; the knob is carried here so sessions round-trip it.
		c.log.Debugf("parallel_verifier_number=%d requested", n)
	}
	return nil
}

// StaticInfo exposes the interning tables to the instrumentation side.
func (c *Control) StaticInfo() *sinfo.StaticInfo { return c.sinfo }

// Knobs exposes the option registry.
func (c *Control) Knobs() *knob.Knob { return c.knobs }

// AddAnalyzer attaches an analyzer to the dispatch list. The caller checks
// Enabled and runs Setup first.
func (c *Control) AddAnalyzer(a analyzer.Analyzer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.analyzers = append(c.analyzers, a)
}

// NewThreadID allocates the next application thread id. Ids start at 1 and
// are never reused within a run.
func (c *Control) NewThreadID() event.ThreadID {
	return event.ThreadID(c.nextThread.Add(1))
}

// ShouldInstrumentLine reports whether a source line is interesting under
// partial instrumentation. With partial_instrument off, or no sidecar
// loaded, every line is.
func (c *Control) ShouldInstrumentLine(file string, line int) bool {
	if !c.knobs.ValueBool("partial_instrument") {
		return true
	}
	return c.lines.contains(filepath.Base(file), line)
}

// IgnoreImage reports whether memory accesses from an image should be
// skipped: the pthread runtime always, common system libraries when
// ignore_lib is set.
func (c *Control) IgnoreImage(img *sinfo.Image) bool {
	if img == nil {
		return true
	}
	if img.IsPthread() {
		return true
	}
	if c.knobs.ValueBool("ignore_lib") && img.IsCommonLib() {
		return true
	}
	return false
}

// TargetModule resolves the module path of the program under test by
// parsing the go.mod in its source directory. IgnoreImage does not consult
// the result; ignore_lib decisions rest on the image name alone.
func TargetModule(dir string) (string, error) {
	path := filepath.Join(dir, "go.mod")
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "control: read %s", path)
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return "", errors.Wrapf(err, "control: parse %s", path)
	}
	if f.Module == nil {
		return "", errors.Newf("control: %s has no module directive", path)
	}
	return f.Module.Mod.Path, nil
}

// ProgramExit drains the worker pool, notifies every analyzer and persists
// the static info database.
func (c *Control) ProgramExit() error {
	c.stopWorkers()

	c.mu.Lock()
	analyzers := append([]analyzer.Analyzer(nil), c.analyzers...)
	c.mu.Unlock()
	for _, a := range analyzers {
		a.ProgramExit()
	}

	if err := c.sinfo.Save(c.knobs.ValueStr("sinfo_out")); err != nil {
		return err
	}
	return nil
}

// --- dispatch ---

// each calls fn on every attached analyzer, in attach order.
func (c *Control) each(fn func(analyzer.Analyzer)) {
	c.mu.Lock()
	analyzers := c.analyzers
	c.mu.Unlock()
	for _, a := range analyzers {
		fn(a)
	}
}

// dispatchAccess routes a memory access: inline without workers, otherwise
// onto the deque of the worker owning the address so that all events for
// one address stay in FIFO order on one worker.
func (c *Control) dispatchAccess(addr event.Addr, fn func(analyzer.Analyzer)) {
	if len(c.workers) == 0 {
		c.each(fn)
		return
	}
	w := c.workers[addrHash(addr)%uint64(len(c.workers))]
	w.push(func() { c.each(fn) })
}

// dispatchSync handles a synchronization event: the worker deques are
// drained first so every memory event already emitted is applied before
// the clocks move.
func (c *Control) dispatchSync(fn func(analyzer.Analyzer)) {
	c.drainWorkers()
	c.each(fn)
}

func addrHash(addr event.Addr) uint64 {
	h := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(addr >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}

// --- worker pool ---

// worker owns a private FIFO deque and its lock; access handlers enqueue,
// the worker goroutine consumes in order.
type worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	deque  []func()
	busy   bool
	closed bool
}

func newWorker() *worker {
	w := &worker{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *worker) push(fn func()) {
	w.mu.Lock()
	w.deque = append(w.deque, fn)
	w.mu.Unlock()
	w.cond.Signal()
}

// empty reports whether the worker has neither queued nor in-flight work.
func (w *worker) empty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.deque) == 0 && !w.busy
}

func (w *worker) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Signal()
}

// run consumes the deque until closed and drained.
func (w *worker) run() error {
	for {
		w.mu.Lock()
		for len(w.deque) == 0 && !w.closed {
			w.cond.Wait()
		}
		if len(w.deque) == 0 && w.closed {
			w.mu.Unlock()
			return nil
		}
		fn := w.deque[0]
		w.deque = w.deque[1:]
		w.busy = true
		w.mu.Unlock()
		fn()
		w.mu.Lock()
		w.busy = false
		w.mu.Unlock()
	}
}

func (c *Control) startWorkers(n int) {
	c.eg = &errgroup.Group{}
	for i := 0; i < n; i++ {
		w := newWorker()
		c.workers = append(c.workers, w)
		c.eg.Go(w.run)
	}
	c.log.Debugf("started %d parallel detection workers", n)
}

// drainWorkers spins until every deque is empty. Handlers running on the
// workers serialize on the analyzers' internal locks, so an empty deque
// means the events were applied.
func (c *Control) drainWorkers() {
	for _, w := range c.workers {
		for !w.empty() {
			runtime.Gosched()
		}
	}
}

func (c *Control) stopWorkers() {
	if c.eg == nil {
		return
	}
	for _, w := range c.workers {
		w.close()
	}
	if err := c.eg.Wait(); err != nil {
		c.log.Fatalf("detection worker failed: %v", err)
	}
	c.workers = nil
	c.eg = nil
}
