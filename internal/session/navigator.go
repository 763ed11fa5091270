package session

import (
	"errors"
	"fmt"

	"github.com/mind-engage/ieltsprep/internal/exam"
)

var ErrUnknownPassage = errors.New("unknown passage")

// Navigator tracks the displayed passage and the question to bring into view.
// A focus request that needs a passage switch waits for Committed on that
// passage before it fires.
type Navigator struct {
	test        *exam.Test
	active      int
	pending     int
	highlighted int
}

func NewNavigator(t *exam.Test) *Navigator {
	return &Navigator{test: t, active: t.FirstPassage()}
}

func (n *Navigator) Active() int      { return n.active }
func (n *Navigator) Highlighted() int { return n.highlighted }
func (n *Navigator) Pending() int     { return n.pending }

func (n *Navigator) SelectPassage(p int) error {
	if !n.test.HasPassage(p) {
		return fmt.Errorf("%w: %d", ErrUnknownPassage, p)
	}
	if p != n.active {
		n.active = p
		n.pending = 0
	}
	return nil
}

// ScrollToQuestion highlights qn, switching passages first if needed. It
// returns true when the highlight was applied immediately.
func (n *Navigator) ScrollToQuestion(qn int) (bool, error) {
	p := n.test.PassageOf(qn)
	if p == 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownQuestion, qn)
	}
	if p == n.active {
		n.pending = 0
		n.highlighted = qn
		return true, nil
	}
	n.active = p
	n.pending = qn
	return false, nil
}

// Committed is the ready signal that passage p has rendered. A pending focus
// on p fires and its question number is returned.
func (n *Navigator) Committed(p int) (int, bool) {
	if n.pending == 0 || p != n.active || n.test.PassageOf(n.pending) != p {
		return 0, false
	}
	n.highlighted = n.pending
	n.pending = 0
	return n.highlighted, true
}
