package multiplex

import "math"

// maxRank sorts below every real rank; a loaded image whose identifier left
// the candidate list gets it, so any current candidate supersedes it.
const maxRank = math.MaxInt

// ledger tracks the candidate list and per-identifier resolution state.
// All access happens under the resolver's lock.
type ledger[ID comparable] struct {
	candidates []ID
	ranks      map[ID]int
	failed     map[ID]error
	ops        map[ID]*operation[ID]
	loaded     loadedImage[ID]
	displayed  displayedImage[ID]
}

// loadedImage is the best fetched image so far plus the source fingerprint
// used by reload to detect changed sources.
type loadedImage[ID comparable] struct {
	ok     bool
	id     ID
	img    *Image
	url    string
	direct *Image
}

type displayedImage[ID comparable] struct {
	ok  bool
	id  ID
	img *Image
}

func newLedger[ID comparable]() ledger[ID] {
	return ledger[ID]{
		ranks:  make(map[ID]int),
		failed: make(map[ID]error),
		ops:    make(map[ID]*operation[ID]),
	}
}

// setCandidates replaces the list, keeping only the first occurrence of a
// duplicated identifier. Failure records belong to the replaced list and are
// cleared. Returns the identifiers that were dropped as duplicates.
func (l *ledger[ID]) setCandidates(ids []ID) []ID {
	l.candidates = make([]ID, 0, len(ids))
	l.ranks = make(map[ID]int, len(ids))
	l.failed = make(map[ID]error)

	var dupes []ID
	for _, id := range ids {
		if _, ok := l.ranks[id]; ok {
			dupes = append(dupes, id)
			continue
		}
		l.ranks[id] = len(l.candidates)
		l.candidates = append(l.candidates, id)
	}
	return dupes
}

// rankOf returns the identifier's position in the candidate list, best
// first. ok is false for identifiers not currently tracked.
func (l *ledger[ID]) rankOf(id ID) (int, bool) {
	rank, ok := l.ranks[id]
	return rank, ok
}

// best returns the best-ranked identifier.
func (l *ledger[ID]) best() (ID, bool) {
	if len(l.candidates) == 0 {
		var zero ID
		return zero, false
	}
	return l.candidates[0], true
}

// loadedRank returns the loaded image's rank under the current list, or
// maxRank when nothing is loaded or the loaded identifier left the list.
func (l *ledger[ID]) loadedRank() int {
	if !l.loaded.ok {
		return maxRank
	}
	rank, ok := l.ranks[l.loaded.id]
	if !ok {
		return maxRank
	}
	return rank
}

// snapshot returns a copy of the candidate list.
func (l *ledger[ID]) snapshot() []ID {
	out := make([]ID, len(l.candidates))
	copy(out, l.candidates)
	return out
}
