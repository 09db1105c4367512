// Package diff computes minimal edit scripts between strings, used to turn a whole new
// text value into the few edits that produce it.
package diff

import (
	"errors"
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned for strings that are not valid UTF-8.
var ErrInvalidUTF8 = errors.New("invalid utf8 string")

// StepType is the kind of a Step.
type StepType int

const (
	Keep StepType = iota
	Insert
	Delete
)

func (t StepType) String() string {
	switch t {
	case Keep:
		return "keep"
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	}
	return fmt.Sprintf("StepType(%d)", int(t))
}

// Step is one character of an edit script. Dist is the number of inserts and deletes
// from this step to the end of the script.
type Step struct {
	Op   StepType
	Char rune
	Dist int
}

// Example: abcd -> xabdy
//           s1      s2
//
// Legend:
//   ix = insert(x)
//   ka = keep(a)
//   dc = delete(c)
//
//          xabdy   xabdy   xabdy   xabdy   xabdy   xabdy
//  s1\s2   ^        ^        ^        ^        ^        ^
//        +-------+-------+-------+-------+-------+-------+
//  abcd  | ix 3  < ka 2  | da 3  | da 4  | iy 5  < da 4  |
//  ^     |       |      \|       |       |       |       |
//        +-------+-------+---^---+---^---+-------+---^---+
//  abcd  | ix 4  < ia 3  < kb 2  | db 3  | iy 4  < db 3  |
//   ^    |       |       |      \|       |       |       |
//        +-------+-------+-------+---^---+-------+---^---+
//  abcd  | ix 5  < ia 4  < ib 3  < dc 2  | iy 3  < dc 2  |
//    ^   |       |       |       |       |       |       |
//        +-------+-------+-------+---^---+-------+---^---+
//  abcd  | ix 4  < ia 3  < ib 2  < kd 1  | iy 2  < dd 1  |
//     ^  |       |       |       |      \|       |       |
//        +-------+-------+-------+-------+-------+---^---+
//  abcd  | ix 5  < ia 4  < ib 3  < id 2  < iy 1  < k0 0  |
//      ^ |       |       |       |       |       |       |
//        +-------+-------+-------+-------+-------+-------+

// Diff returns the shortest sequence of keeps, inserts and deletes that transforms s1
// into s2. On a tie, inserts come before deletes.
func Diff(s1, s2 string) ([]Step, error) {
	if !utf8.ValidString(s1) {
		return nil, fmt.Errorf("s1: %w", ErrInvalidUTF8)
	}
	if !utf8.ValidString(s2) {
		return nil, fmt.Errorf("s2: %w", ErrInvalidUTF8)
	}
	chars1, chars2 := []rune(s1), []rune(s2)
	table := newTable(chars1, chars2)

	var steps []Step
	for i, j := 0, 0; i < len(chars1) || j < len(chars2); {
		step := table.at(i, j)
		steps = append(steps, step)
		switch step.Op {
		case Keep:
			i++
			j++
		case Insert:
			j++
		case Delete:
			i++
		}
	}
	return steps, nil
}

// table holds, for each pair of suffixes of both strings, the first step of a minimal
// script between them.
type table struct {
	steps []Step
	n     int
}

func (t table) at(i, j int) Step {
	return t.steps[i*(t.n+1)+j]
}

func (t table) set(i, j int, step Step) {
	t.steps[i*(t.n+1)+j] = step
}

func newTable(chars1, chars2 []rune) table {
	m, n := len(chars1), len(chars2)
	t := table{steps: make([]Step, (m+1)*(n+1)), n: n}
	// Towards an empty string, delete all chars.
	for i, ch := range chars1 {
		t.set(i, n, Step{Op: Delete, Char: ch, Dist: m - i})
	}
	// From an empty string, insert all chars.
	for j, ch := range chars2 {
		t.set(m, j, Step{Op: Insert, Char: ch, Dist: n - j})
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if chars1[i] == chars2[j] {
				t.set(i, j, Step{Op: Keep, Char: chars1[i], Dist: t.at(i+1, j+1).Dist})
				continue
			}
			deleted, inserted := t.at(i+1, j), t.at(i, j+1)
			if inserted.Dist <= deleted.Dist {
				t.set(i, j, Step{Op: Insert, Char: chars2[j], Dist: 1 + inserted.Dist})
			} else {
				t.set(i, j, Step{Op: Delete, Char: chars1[i], Dist: 1 + deleted.Dist})
			}
		}
	}
	return t
}

// Distance returns the number of inserts and deletes to transform s1 into s2.
func Distance(s1, s2 string) (int, error) {
	steps, err := Diff(s1, s2)
	if err != nil {
		return 0, err
	}
	if len(steps) == 0 {
		return 0, nil
	}
	return steps[0].Dist, nil
}

// Hunk replaces the range [From, To) of the original string with Insert. Positions are
// in UTF-16 code units.
type Hunk struct {
	From, To int
	Insert   string
}

// Hunks collapses the script between s1 and s2 into replacements of contiguous ranges,
// in increasing order of position in s1. Applying them from last to first keeps the
// positions of the others valid.
func Hunks(s1, s2 string) ([]Hunk, error) {
	steps, err := Diff(s1, s2)
	if err != nil {
		return nil, err
	}
	var hunks []Hunk
	var current *Hunk
	pos := 0
	for _, step := range steps {
		if step.Op == Keep {
			if current != nil {
				hunks = append(hunks, *current)
				current = nil
			}
			pos += utf16.RuneLen(step.Char)
			continue
		}
		if current == nil {
			current = &Hunk{From: pos, To: pos}
		}
		switch step.Op {
		case Insert:
			current.Insert += string(step.Char)
		case Delete:
			pos += utf16.RuneLen(step.Char)
			current.To = pos
		}
	}
	if current != nil {
		hunks = append(hunks, *current)
	}
	return hunks, nil
}
