// Package liability tracks booked redemption obligations by UTC settlement day.
//
// Each bucket holds the gross amount scheduled to settle on that day. The
// ledger also keeps overdueLiability, a running cache of every bucket whose
// day is already in the past. The cache is advanced lazily: before any read
// or write, days between the last processed day and today are folded in, and
// removals against a past day take their amount back out of it.
package liability

import (
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/amount"
	"github.com/LeJamon/goVaultd/internal/core/journal"
)

// SecondsPerDay is the bucket width.
const SecondsPerDay = 86_400

// ForwardWindowDays is the number of days after today covered by SevenDayLiability.
const ForwardWindowDays = 7

// DayIndex returns floor(unix(t) / 86400).
func DayIndex(t time.Time) int64 {
	sec := t.Unix()
	if sec < 0 {
		return (sec - SecondsPerDay + 1) / SecondsPerDay
	}
	return sec / SecondsPerDay
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// Bucket is one day's booked liability.
type Bucket struct {
	Day    int64
	Amount *uint256.Int
}

func lessBucket(a, b Bucket) bool {
	return a.Day < b.Day
}

// State is the persisted form of a ledger.
type State struct {
	Buckets       []Bucket
	Overdue       *uint256.Int
	LastRolledDay int64
}

// Ledger is the day-bucketed liability map.
type Ledger struct {
	mu            sync.Mutex
	buckets       *btree.BTreeG[Bucket]
	overdue       *uint256.Int
	lastRolledDay int64

	clock   Clock
	journal *journal.Journal
	logger  *zap.Logger
}

// New creates an empty ledger. Nothing is overdue at creation.
func New(clock Clock, j *journal.Journal, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		buckets:       btree.NewG[Bucket](16, lessBucket),
		overdue:       amount.Zero(),
		lastRolledDay: DayIndex(clock.Now()),
		clock:         clock,
		journal:       j,
		logger:        logger,
	}
}

// Restore replaces the ledger contents with a persisted state.
func (l *Ledger) Restore(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buckets.Clear(false)
	for _, b := range s.Buckets {
		if b.Amount != nil && !b.Amount.IsZero() {
			l.buckets.ReplaceOrInsert(Bucket{Day: b.Day, Amount: b.Amount.Clone()})
		}
	}
	l.overdue = amount.Or(s.Overdue).Clone()
	l.lastRolledDay = s.LastRolledDay
}

// Snapshot returns the persisted form of the ledger, buckets in day order.
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	s := State{Overdue: l.overdue.Clone(), LastRolledDay: l.lastRolledDay}
	l.buckets.Ascend(func(b Bucket) bool {
		s.Buckets = append(s.Buckets, Bucket{Day: b.Day, Amount: b.Amount.Clone()})
		return true
	})
	return s
}

// AddDailyLiability books amt against the day of settlementTime.
func (l *Ledger) AddDailyLiability(settlementTime time.Time, amt *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	day := DayIndex(settlementTime)
	next, err := amount.Add(l.bucketLocked(day), amt)
	if err != nil {
		return err
	}
	if day < l.lastRolledDay {
		overdue, err := amount.Add(l.overdue, amt)
		if err != nil {
			return err
		}
		l.setOverdueLocked(overdue)
	}
	l.setBucketLocked(day, next)
	return nil
}

// RemoveLiability releases amt from the day of settlementTime. Neither the
// bucket nor the overdue cache can go below zero.
func (l *Ledger) RemoveLiability(settlementTime time.Time, amt *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	day := DayIndex(settlementTime)
	current := l.bucketLocked(day)
	l.setBucketLocked(day, new(uint256.Int).Sub(current, amount.Min(amt, current)))

	if day < l.lastRolledDay {
		l.setOverdueLocked(new(uint256.Int).Sub(l.overdue, amount.Min(amt, l.overdue)))
	}
}

// DailyLiability returns the amount booked for a day index.
func (l *Ledger) DailyLiability(day int64) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucketLocked(day).Clone()
}

// SevenDayLiability sums today and the next seven days (eight buckets).
func (l *Ledger) SevenDayLiability() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	today := l.lastRolledDay
	total := amount.Zero()
	l.buckets.AscendRange(Bucket{Day: today}, Bucket{Day: today + ForwardWindowDays + 1}, func(b Bucket) bool {
		total.Add(total, b.Amount)
		return true
	})
	return total
}

// OverdueLiability returns the overdue cache.
func (l *Ledger) OverdueLiability() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()
	return l.overdue.Clone()
}

// RecomputeOverdue sums every bucket before today from scratch. It is the
// reference value the cache is expected to match.
func (l *Ledger) RecomputeOverdue() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	total := amount.Zero()
	l.buckets.AscendLessThan(Bucket{Day: l.lastRolledDay}, func(b Bucket) bool {
		total.Add(total, b.Amount)
		return true
	})
	return total
}

// TotalBooked sums every bucket.
func (l *Ledger) TotalBooked() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := amount.Zero()
	l.buckets.Ascend(func(b Bucket) bool {
		total.Add(total, b.Amount)
		return true
	})
	return total
}

// OverrideDailyLiability sets a bucket directly and returns the previous
// value. It skips every consistency rule, including the overdue cache; it
// exists for incident recovery only.
func (l *Ledger) OverrideDailyLiability(day int64, amt *uint256.Int) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	prev := l.bucketLocked(day).Clone()
	l.setBucketLocked(day, amt.Clone())
	l.logger.Warn("daily liability overridden",
		zap.Int64("day", day),
		zap.String("previous", prev.Dec()),
		zap.String("amount", amt.Dec()),
	)
	return prev
}

// OverrideOverdueLiability sets the overdue cache directly and returns the
// previous value. Incident recovery only.
func (l *Ledger) OverrideOverdueLiability(amt *uint256.Int) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rollLocked()

	prev := l.overdue.Clone()
	l.setOverdueLocked(amt.Clone())
	l.logger.Warn("overdue liability overridden",
		zap.String("previous", prev.Dec()),
		zap.String("amount", amt.Dec()),
	)
	return prev
}

// rollLocked folds every bucket of the days that became past since the last
// call into the overdue cache.
func (l *Ledger) rollLocked() {
	today := DayIndex(l.clock.Now())
	if today <= l.lastRolledDay {
		return
	}
	from := l.lastRolledDay
	folded := amount.Zero()
	l.buckets.AscendRange(Bucket{Day: from}, Bucket{Day: today}, func(b Bucket) bool {
		folded.Add(folded, b.Amount)
		return true
	})

	prevDay := l.lastRolledDay
	l.lastRolledDay = today
	l.journal.Record(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.lastRolledDay = prevDay
	})
	if !folded.IsZero() {
		l.setOverdueLocked(new(uint256.Int).Add(l.overdue, folded))
		l.logger.Debug("liability rolled into overdue",
			zap.Int64("fromDay", from),
			zap.Int64("toDay", today),
			zap.String("amount", folded.Dec()),
		)
	}
}

func (l *Ledger) bucketLocked(day int64) *uint256.Int {
	if b, ok := l.buckets.Get(Bucket{Day: day}); ok {
		return b.Amount
	}
	return amount.Zero()
}

func (l *Ledger) setBucketLocked(day int64, v *uint256.Int) {
	prev, had := l.buckets.Get(Bucket{Day: day})
	if v.IsZero() {
		l.buckets.Delete(Bucket{Day: day})
	} else {
		l.buckets.ReplaceOrInsert(Bucket{Day: day, Amount: v})
	}
	l.journal.Record(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if had {
			l.buckets.ReplaceOrInsert(prev)
		} else {
			l.buckets.Delete(Bucket{Day: day})
		}
	})
}

func (l *Ledger) setOverdueLocked(v *uint256.Int) {
	prev := l.overdue
	l.overdue = v
	l.journal.Record(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.overdue = prev
	})
}
