package progression

import (
	"math"
)

// maxLevel is the last level whose threshold fits in an int64. From
// maxLevel+1 on, XPForLevel saturates at MaxInt64.
const maxLevel = 324_050_837_588

// XPForLevel returns the cumulative XP required to reach a given level.
// Level 1 needs 0 XP; above that the curve is floor(50 * (level-1)^1.5), so
// level 2 needs 50, level 3 needs 141 and level 5 needs 400.
//
// The curve is strictly increasing on [1, maxLevel]. Levels above maxLevel
// all return MaxInt64.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	required := math.Floor(50 * math.Pow(float64(level-1), 1.5))
	if required >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(required)
}

// LevelFromXP returns the largest level whose threshold does not exceed xp,
// capped at maxLevel. Searches the curve (doubling probe, then binary search)
// so it stays consistent with XPForLevel: LevelFromXP(XPForLevel(L)) == L for
// every L in [1, maxLevel].
func LevelFromXP(xp int64) int {
	if xp < XPForLevel(2) {
		return 1
	}
	if xp >= XPForLevel(maxLevel) {
		return maxLevel
	}

	// Invariant: XPForLevel(lo) <= xp < XPForLevel(hi).
	lo, hi := 2, 4
	for XPForLevel(hi) <= xp {
		lo = hi
		hi *= 2
	}
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if XPForLevel(mid) <= xp {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

// LevelProgress returns whole-percent progress from the current level's
// threshold toward the next one, in [0, 100].
func LevelProgress(xp int64) int {
	if xp < 0 {
		xp = 0
	}
	level := LevelFromXP(xp)
	thisLevel := XPForLevel(level)
	nextLevel := XPForLevel(level + 1)
	span := nextLevel - thisLevel
	if span <= 0 {
		return 100
	}
	pct := int(math.Floor(float64(xp-thisLevel) / float64(span) * 100))
	return min(max(pct, 0), 100)
}

// XPToNextLevel returns XP remaining until the next level.
func XPToNextLevel(xp int64) int64 {
	if xp < 0 {
		xp = 0
	}
	return XPForLevel(LevelFromXP(xp)+1) - xp
}

// levelTitles is ordered by descending minimum level.
var levelTitles = []struct {
	minLevel int
	title    string
}{
	{50, "Communication Legend"},
	{40, "Master Negotiator"},
	{30, "Senior Communicator"},
	{20, "Skilled Professional"},
	{15, "Rising Star"},
	{10, "Confident Speaker"},
	{5, "Apprentice"},
	{1, "Beginner"},
}

// LevelTitle returns the cosmetic title of the highest tier reached by level.
func LevelTitle(level int) string {
	for _, t := range levelTitles {
		if level >= t.minLevel {
			return t.title
		}
	}
	return levelTitles[len(levelTitles)-1].title
}

// LevelStep is one row of the level curve table.
type LevelStep struct {
	Level      int    `json:"level"`
	XPRequired int64  `json:"xp_required"`
	Title      string `json:"title"`
}

// LevelCurve returns the curve rows for levels from..to inclusive.
func LevelCurve(from, to int) []LevelStep {
	from = max(from, 1)
	if to < from {
		return nil
	}
	steps := make([]LevelStep, 0, to-from+1)
	for level := from; level <= to; level++ {
		steps = append(steps, LevelStep{
			Level:      level,
			XPRequired: XPForLevel(level),
			Title:      LevelTitle(level),
		})
	}
	return steps
}
