package entities

import "sort"

// GameResult is the immutable outcome of a settled round
type GameResult struct {
	ServerSeed     string
	ServerSeedHash string
	RawValues      []int
	Display        string
	WinningBets    map[string]bool
	// MatchCounts is filled by games that pay per matching draw
	MatchCounts map[string]int
}

// Wins reports whether betTypeID is in the winning set
func (r *GameResult) Wins(betTypeID string) bool {
	return r.WinningBets[betTypeID]
}

// MatchCount returns how many draws matched betTypeID
func (r *GameResult) MatchCount(betTypeID string) int {
	return r.MatchCounts[betTypeID]
}

// WinningBetIDs returns the winning bet type ids in sorted order
func (r *GameResult) WinningBetIDs() []string {
	ids := make([]string, 0, len(r.WinningBets))
	for id, won := range r.WinningBets {
		if won {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
