package games

import "sync"

// DefaultHistorySize is how many dice results a DiceHistory keeps
const DefaultHistorySize = 20

// DiceOutcome is one recorded dice-total result
type DiceOutcome struct {
	RoundID int64
	Dice    []int
	Total   int
	Triple  bool
}

// Upper reports whether the outcome paid the upper bet
func (o DiceOutcome) Upper() bool {
	return !o.Triple && o.Total >= taiThreshold
}

// Lower reports whether the outcome paid the lower bet
func (o DiceOutcome) Lower() bool {
	return !o.Triple && o.Total < taiThreshold
}

// DiceStats summarises the recorded window
type DiceStats struct {
	Total         int
	TaiCount      int
	XiuCount      int
	TripleCount   int
	TaiPercent    float64 // of non-triple results
	XiuPercent    float64 // of non-triple results
	TriplePercent float64
	CurrentStreak int
	CurrentSide   string // BetTai, BetXiu or "" after a triple
	LongestTaiRun int
	LongestXiuRun int
}

// DiceHistory is a bounded, most-recent-first window of dice results
type DiceHistory struct {
	mu      sync.RWMutex
	size    int
	entries []DiceOutcome
}

// NewDiceHistory creates a history keeping up to size results
func NewDiceHistory(size int) *DiceHistory {
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &DiceHistory{size: size, entries: make([]DiceOutcome, 0, size)}
}

// Record prepends a result, dropping the oldest when full
func (h *DiceHistory) Record(roundID int64, dice []int) {
	outcome := DiceOutcome{
		RoundID: roundID,
		Dice:    append([]int(nil), dice...),
		Total:   DiceSum(dice),
		Triple:  IsTriple(dice),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append([]DiceOutcome{outcome}, h.entries...)
	if len(h.entries) > h.size {
		h.entries = h.entries[:h.size]
	}
}

// Recent returns up to n results, newest first. n <= 0 returns everything.
func (h *DiceHistory) Recent(n int) []DiceOutcome {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]DiceOutcome, n)
	copy(out, h.entries[:n])
	return out
}

// Len returns the number of recorded results
func (h *DiceHistory) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// Stats computes counts, percentages and streaks over the window
func (h *DiceHistory) Stats() DiceStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := DiceStats{Total: len(h.entries)}
	if stats.Total == 0 {
		return stats
	}

	for _, o := range h.entries {
		switch {
		case o.Triple:
			stats.TripleCount++
		case o.Upper():
			stats.TaiCount++
		default:
			stats.XiuCount++
		}
	}

	if decided := stats.TaiCount + stats.XiuCount; decided > 0 {
		stats.TaiPercent = float64(stats.TaiCount) * 100 / float64(decided)
		stats.XiuPercent = float64(stats.XiuCount) * 100 / float64(decided)
	}
	stats.TriplePercent = float64(stats.TripleCount) * 100 / float64(stats.Total)

	// entries are newest first, so the current streak is the leading run
	first := h.entries[0]
	if !first.Triple {
		stats.CurrentSide = sideOf(first)
		for _, o := range h.entries {
			if o.Triple || sideOf(o) != stats.CurrentSide {
				break
			}
			stats.CurrentStreak++
		}
	}

	run, side := 0, ""
	for _, o := range h.entries {
		if o.Triple {
			run, side = 0, ""
			continue
		}
		if s := sideOf(o); s == side {
			run++
		} else {
			run, side = 1, s
		}
		if side == BetTai && run > stats.LongestTaiRun {
			stats.LongestTaiRun = run
		}
		if side == BetXiu && run > stats.LongestXiuRun {
			stats.LongestXiuRun = run
		}
	}

	return stats
}

func sideOf(o DiceOutcome) string {
	if o.Upper() {
		return BetTai
	}
	return BetXiu
}
