package device

import "sync"

// DiffKind classifies how a State's pending changes should be committed to
// the wire, per spec §4.4 "Configuration commit".
type DiffKind int

const (
	// DiffNone: new == now, nothing to send.
	DiffNone DiffKind = iota
	// DiffSingle: exactly one index differs.
	DiffSingle
	// DiffAll: more than one index differs, but all new values are equal.
	DiffAll
	// DiffBulk: general case, send the full vector.
	DiffBulk
)

// BoolDiff is the result of diffing the enable snapshots.
type BoolDiff struct {
	Kind  DiffKind
	Index int  // valid when Kind == DiffSingle
	Value bool // valid when Kind == DiffSingle or DiffAll
	All   []bool
}

// IntDiff is the result of diffing the divider snapshots.
type IntDiff struct {
	Kind  DiffKind
	Index int
	Value uint8
	All   []uint8
}

// State holds the per-channel enabled/divider "now" (device-confirmed) and
// "new" (client-pending) snapshots under a single mutex. len(enNow) ==
// len(enNew) == len(divNow) == len(divNew) == chmax at all times.
type State struct {
	mu     sync.Mutex
	enNow  []bool
	enNew  []bool
	divNow []uint8
	divNew []uint8
}

// NewState initializes all four snapshots to the device-reported values.
func NewState(en []bool, div []uint8) *State {
	s := &State{
		enNow:  append([]bool(nil), en...),
		enNew:  append([]bool(nil), en...),
		divNow: append([]uint8(nil), div...),
		divNew: append([]uint8(nil), div...),
	}
	return s
}

// ChMax returns the number of managed channels.
func (s *State) ChMax() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.enNow)
}

// Enable sets en_new[i] = true for each given index.
func (s *State) Enable(idx ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range idx {
		s.enNew[i] = true
	}
}

// Disable sets en_new[i] = false for each given index.
func (s *State) Disable(idx ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range idx {
		s.enNew[i] = false
	}
}

// EnableAll sets every en_new to true.
func (s *State) EnableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.enNew {
		s.enNew[i] = true
	}
}

// DisableAll sets every en_new to false.
func (s *State) DisableAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.enNew {
		s.enNew[i] = false
	}
}

// SetDivider sets div_new[i] = d for each given index. Callers are
// responsible for validating 0<=d<=255 before calling (State itself takes a
// uint8 so the range is enforced by the type).
func (s *State) SetDivider(d uint8, idx ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range idx {
		s.divNew[i] = d
	}
}

// DefaultCfg disables all channels and zeroes all dividers in en_new/div_new.
// Does not auto-commit.
func (s *State) DefaultCfg() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.enNew {
		s.enNew[i] = false
		s.divNew[i] = 0
	}
}

// IsEnabled returns en_now[i].
func (s *State) IsEnabled(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enNow[i]
}

// DivGet returns div_now[i].
func (s *State) DivGet(i int) uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.divNow[i]
}

// diffBool computes the minimal-emission diff kind for a pair of bool
// snapshots, per the commit-minimality invariant of spec §8.
func diffBool(now, new []bool) BoolDiff {
	idx := -1
	count := 0
	for i := range now {
		if now[i] != new[i] {
			count++
			idx = i
		}
	}
	switch {
	case count == 0:
		return BoolDiff{Kind: DiffNone}
	case count == 1:
		return BoolDiff{Kind: DiffSingle, Index: idx, Value: new[idx]}
	default:
		allSame := true
		for i := 1; i < len(new); i++ {
			if new[i] != new[0] {
				allSame = false
				break
			}
		}
		if allSame {
			return BoolDiff{Kind: DiffAll, Value: new[0]}
		}
		return BoolDiff{Kind: DiffBulk, All: append([]bool(nil), new...)}
	}
}

func diffUint8(now, new []uint8) IntDiff {
	idx := -1
	count := 0
	for i := range now {
		if now[i] != new[i] {
			count++
			idx = i
		}
	}
	switch {
	case count == 0:
		return IntDiff{Kind: DiffNone}
	case count == 1:
		return IntDiff{Kind: DiffSingle, Index: idx, Value: new[idx]}
	default:
		allSame := true
		for i := 1; i < len(new); i++ {
			if new[i] != new[0] {
				allSame = false
				break
			}
		}
		if allSame {
			return IntDiff{Kind: DiffAll, Value: new[0]}
		}
		return IntDiff{Kind: DiffBulk, All: append([]uint8(nil), new...)}
	}
}

// EnableDiff computes the pending enable diff without mutating state.
func (s *State) EnableDiff() BoolDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return diffBool(s.enNow, s.enNew)
}

// DividerDiff computes the pending divider diff without mutating state.
func (s *State) DividerDiff() IntDiff {
	s.mu.Lock()
	defer s.mu.Unlock()
	return diffUint8(s.divNow, s.divNew)
}

// CommitEnable copies en_new into en_now (called once the device has ACKed).
func (s *State) CommitEnable() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.enNow, s.enNew)
	return append([]bool(nil), s.enNow...)
}

// CommitDivider copies div_new into div_now (called once the device has ACKed).
func (s *State) CommitDivider() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.divNow, s.divNew)
	return append([]uint8(nil), s.divNow...)
}
