package ice

import (
	"sort"
	"testing"
	"time"
)

func TestPairStateString(t *testing.T) {
	for _, tc := range []struct {
		s    PairState
		want string
	}{
		{PairFrozen, "frozen"},
		{PairWaiting, "waiting"},
		{PairInProgress, "in-progress"},
		{PairSucceeded, "succeeded"},
		{PairFailed, "failed"},
		{PairState(255), "unknown"},
	} {
		if got := tc.s.String(); got != tc.want {
			t.Errorf("PairState(%d).String() = %q, want %q", tc.s, got, tc.want)
		}
	}
}

func TestPairPriority(t *testing.T) {
	// RFC 8445 Section 6.1.2.3: priority favors the controlling side's
	// (higher) candidate priority via the +1 tie-break term.
	a := PairPriority(10, 5)
	b := PairPriority(5, 10)
	if a == b {
		t.Fatal("priority should depend on argument order")
	}
	if a != (uint64(5)<<32)+2*10+1 {
		t.Errorf("unexpected priority %d", a)
	}
	if b != (uint64(5)<<32)+2*10 {
		t.Errorf("unexpected priority %d", b)
	}
}

func TestCandidatePairSetStateClearsTransaction(t *testing.T) {
	p := NewCandidatePair("audio", 1, 1, 2, "f1")
	p.SetState(PairInProgress)
	p.SetTransaction([12]byte{1, 2, 3})
	if _, ok := p.Transaction(); !ok {
		t.Fatal("expected a pending transaction")
	}
	p.SetState(PairSucceeded)
	if _, ok := p.Transaction(); ok {
		t.Error("transaction id should be cleared on leaving PairInProgress")
	}
	if p.State() != PairSucceeded {
		t.Errorf("unexpected state %v", p.State())
	}
}

func TestCandidatePairInitialStateIsFrozen(t *testing.T) {
	p := NewCandidatePair("audio", 1, 1, 2, "f1")
	if p.State() != PairFrozen {
		t.Errorf("expected initial state frozen, got %v", p.State())
	}
}

func TestCandidatePairConsentFreshness(t *testing.T) {
	p := NewCandidatePair("audio", 1, 1, 2, "f1")
	if _, ok := p.ConsentFreshness(); ok {
		t.Error("expected no consent freshness recorded yet")
	}
	now := time.Unix(1000, 0)
	p.RefreshConsent(now)
	got, ok := p.ConsentFreshness()
	if !ok || !got.Equal(now) {
		t.Errorf("unexpected consent freshness %v, ok=%v", got, ok)
	}
}

func TestPairsSortByPriorityDescending(t *testing.T) {
	low := NewCandidatePair("a", 1, 1, 2, "f1")
	low.SetPriority(10)
	high := NewCandidatePair("a", 1, 1, 2, "f1")
	high.SetPriority(100)
	mid := NewCandidatePair("a", 1, 1, 2, "f1")
	mid.SetPriority(50)

	pairs := Pairs{low, high, mid}
	sort.Sort(pairs)
	if pairs[0] != high || pairs[1] != mid || pairs[2] != low {
		t.Errorf("unexpected sort order: %v, %v, %v",
			pairs[0].Priority(), pairs[1].Priority(), pairs[2].Priority())
	}
}
