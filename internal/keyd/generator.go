package keyd

import (
	"sync"
	"time"

	"github.com/allnet-project/allnet/internal/logging"
	"github.com/robfig/cron/v3"
)

// SparePool is the spare-key pool keyd keeps topped up.
// internal/keystore.Store satisfies this directly (CreateSpareKey,
// NumSpareKeys).
type SparePool interface {
	NumSpareKeys() int
	CreateSpareKey(keyBits int) (int, error)
}

const (
	// SpareKeyTarget is keyd.c's hardcoded pool ceiling ("generate up
	// to 100 keys, then generate more as they are used").
	SpareKeyTarget = 100
	// MinGenerationInterval is keyd.c's floor on how often a key is
	// generated, regardless of how fast the last one took.
	MinGenerationInterval = 10 * time.Minute
	// generationSlowdown is keyd.c's "sleep_time = 100 * last interval"
	// throttle: each generation is followed by a pause 100x longer than
	// the time the generation itself took.
	generationSlowdown = 100
	// DefaultKeyBits is keyd.c's KEY_GEN_BITS.
	DefaultKeyBits = 4096
)

// Generator runs keyd.c's keyd_generate loop as a self-rescheduling
// robfig/cron job, grounded on internal/scheduler.Scheduler's pattern
// of computing each job's own next run time from its last observed
// duration rather than a fixed cron expression.
type Generator struct {
	pool    SparePool
	keyBits int
	cron    *cron.Cron
	log     logging.Logger

	mu      sync.Mutex
	entryID cron.EntryID
	next    time.Duration
}

// NewGenerator builds a Generator over an already-running *cron.Cron
// (callers typically share one Cron instance across keyd and any other
// scheduled maintenance, per internal/scheduler's convention).
func NewGenerator(c *cron.Cron, pool SparePool, keyBits int) *Generator {
	if keyBits <= 0 {
		keyBits = DefaultKeyBits
	}
	return &Generator{pool: pool, keyBits: keyBits, cron: c, log: logging.New("keyd"), next: MinGenerationInterval}
}

// Start schedules the first generation cycle at the shortest delay
// cron.Every allows (it rounds a zero delay up to one second).
func (g *Generator) Start() {
	g.scheduleIn(0)
}

// Stop cancels any pending generation cycle.
func (g *Generator) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entryID != 0 {
		g.cron.Remove(g.entryID)
		g.entryID = 0
	}
}

func (g *Generator) scheduleIn(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.entryID != 0 {
		g.cron.Remove(g.entryID)
	}
	g.entryID = g.cron.Schedule(cron.Every(d), cron.FuncJob(g.runCycle))
}

// runCycle generates at most one spare key per invocation, then
// reschedules itself: 100x the time this generation took, floored at
// MinGenerationInterval, or MinGenerationInterval outright if the pool
// is already at SpareKeyTarget (keyd.c's "else" branch, which just
// waits out the interval without generating).
func (g *Generator) runCycle() {
	start := time.Now()
	if g.pool.NumSpareKeys() < SpareKeyTarget {
		if _, err := g.pool.CreateSpareKey(g.keyBits); err != nil {
			g.log.Error("spare key generation failed: %v", err)
		}
	}
	elapsed := time.Since(start)

	next := elapsed * generationSlowdown
	if next < MinGenerationInterval {
		next = MinGenerationInterval
	}
	g.mu.Lock()
	g.next = next
	g.mu.Unlock()
	g.scheduleIn(next)
}
