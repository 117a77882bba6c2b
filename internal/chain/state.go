package chain

import (
	"fmt"

	"github.com/roach88/sensorq/internal/querynode"
)

// ConsecutiveCallState tracks which query methods may legally follow the
// nodes appended so far. One instance serves one Parse call.
//
// Rules:
//   - nothing may follow a terminal (Any, Count, First, Last)
//   - Where and OrderBy may not follow Skip or Take (paging happens last on
//     the server)
//   - Skip may not follow Take
//   - Select forecloses Where, OrderBy and predicates on the original
//     element; SelectMany additionally forecloses Skip, whose offset only
//     exists on the server
//   - once a call has been demoted to local evaluation every later call is
//     local too, so no rule applies
type ConsecutiveCallState struct {
	last      querynode.Kind
	paged     bool
	taken     bool
	projected bool
	flattened bool
	local     bool
}

// NewConsecutiveCallState returns the state for an empty chain.
func NewConsecutiveCallState() *ConsecutiveCallState {
	return &ConsecutiveCallState{last: querynode.KindRoot}
}

// Last returns the kind of the most recently appended node.
func (s *ConsecutiveCallState) Last() querynode.Kind {
	return s.last
}

// Local reports whether a call has been demoted to local evaluation.
func (s *ConsecutiveCallState) Local() bool {
	return s.local
}

// Terminated reports whether the last node produces a scalar.
func (s *ConsecutiveCallState) Terminated() bool {
	return s.last.IsTerminal()
}

// Check returns a description of the violated rule if next may not follow
// the current chain, or "" if it may.
func (s *ConsecutiveCallState) Check(next querynode.Kind, hasPredicate bool) string {
	if s.local {
		return ""
	}

	switch next {
	case querynode.KindWhere, querynode.KindOrderBy:
		if s.paged {
			return fmt.Sprintf("%s cannot follow %s", next, s.last)
		}
		if s.projected || s.flattened {
			return fmt.Sprintf("%s cannot follow a projection", next)
		}
	case querynode.KindSkip:
		if s.taken {
			return "Skip cannot follow Take"
		}
		if s.flattened {
			return "Skip cannot follow SelectMany"
		}
	case querynode.KindAny, querynode.KindCount, querynode.KindFirst, querynode.KindLast:
		if hasPredicate && (s.projected || s.flattened) {
			return fmt.Sprintf("%s with a predicate cannot follow a projection", next)
		}
	}
	return ""
}

// Append records next as the latest node.
func (s *ConsecutiveCallState) Append(next querynode.Kind) {
	switch next {
	case querynode.KindSkip:
		s.paged = true
	case querynode.KindTake:
		s.paged = true
		s.taken = true
	case querynode.KindSelect:
		s.projected = true
	case querynode.KindSelectMany:
		s.flattened = true
	case querynode.KindLocalOnly:
		s.local = true
	}
	s.last = next
}
