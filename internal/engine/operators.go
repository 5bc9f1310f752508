package engine

import (
	"strings"

	"akasha/internal/storage/pager"
)

// likeMatch implements LIKE / NOT LIKE as substring containment on Text
// values (§4.8); any other value kind on either side is simply false,
// never an error.
func likeMatch(a, b pager.Value, negate bool) bool {
	if a.Kind != pager.KindText || b.Kind != pager.KindText {
		return false
	}
	match := strings.Contains(a.Text, b.Text)
	if negate {
		return !match
	}
	return match
}

func evalFilterOp(op TableOp, tup pager.Tuple) bool {
	return evalComparison(op.CmpOp, tup.Values[op.Column], op.Value)
}

func projectTuple(tup pager.Tuple, columns []uint32) pager.Tuple {
	values := make([]pager.Value, len(columns))
	for i, id := range columns {
		values[i] = tup.Values[id]
	}
	return pager.Tuple{Values: values}
}

// TupleStream is a lazy, pull-based source of tuples. A consumer that
// stops before exhausting a stream must call Close to release any page
// the stream holds pinned.
type TupleStream interface {
	Next() (pager.Tuple, bool, error)
	Close()
}

// composedOperator walks an upstream TupleStream and applies a
// compiled op pipeline to each tuple in order, with offset and limit
// pre-computed into counters rather than re-walked per tuple (§4.8).
type composedOperator struct {
	upstream TupleStream
	ops      []TableOp

	offsetRemaining int64
	hasLimit        bool
	limit           int64
	emitted         int64
	done            bool
}

// newComposedOperator builds the streaming pipeline for ops over
// upstream. Offset and Limit ops are extracted into counters once;
// Filter/PredicativeFilter/Project/Map stay in ops and are applied, in
// order, to every tuple that survives.
func newComposedOperator(upstream TupleStream, ops []TableOp) *composedOperator {
	c := &composedOperator{upstream: upstream, ops: ops}
	for _, op := range ops {
		switch op.Kind {
		case OpOffset:
			c.offsetRemaining = op.N
		case OpLimit:
			c.hasLimit = true
			c.limit = op.N
		}
	}
	return c
}

// Next pulls the next tuple that survives the full pipeline, or ok=false
// once upstream is exhausted or the limit has been reached.
func (c *composedOperator) Next() (pager.Tuple, bool, error) {
	if c.done {
		return pager.Tuple{}, false, nil
	}
	if c.hasLimit && c.emitted >= c.limit {
		c.done = true
		c.upstream.Close()
		return pager.Tuple{}, false, nil
	}

	for {
		tup, ok, err := c.upstream.Next()
		if err != nil {
			return pager.Tuple{}, false, err
		}
		if !ok {
			c.done = true
			return pager.Tuple{}, false, nil
		}

		kept, tup, err := c.applyRowOps(tup)
		if err != nil {
			return pager.Tuple{}, false, err
		}
		if !kept {
			continue
		}

		if c.offsetRemaining > 0 {
			c.offsetRemaining--
			continue
		}

		c.emitted++
		return tup, true, nil
	}
}

// applyRowOps runs a single tuple through every Filter/
// PredicativeFilter/Project/Map stage in pipeline order, stopping (and
// reporting rejection) as soon as a filter fails.
func (c *composedOperator) applyRowOps(tup pager.Tuple) (bool, pager.Tuple, error) {
	for _, op := range c.ops {
		switch op.Kind {
		case OpFilter:
			if !evalFilterOp(op, tup) {
				return false, tup, nil
			}
		case OpPredicativeFilter:
			ok, err := op.Predicate(tup)
			if err != nil {
				return false, tup, err
			}
			if !ok {
				return false, tup, nil
			}
		case OpProject:
			tup = projectTuple(tup, op.Columns)
		case OpMap:
			mapped, err := op.Mapper(tup)
			if err != nil {
				return false, tup, err
			}
			tup = mapped
		case OpLimit, OpOffset:
			// pre-computed into counters; no per-tuple work here.
		}
	}
	return true, tup, nil
}

// Close releases the upstream source.
func (c *composedOperator) Close() {
	if !c.done {
		c.upstream.Close()
		c.done = true
	}
}

// singleTupleStream yields exactly one tuple, used for an Insert's
// RETURNING stream.
type singleTupleStream struct {
	tup     pager.Tuple
	yielded bool
}

func (s *singleTupleStream) Next() (pager.Tuple, bool, error) {
	if s.yielded {
		return pager.Tuple{}, false, nil
	}
	s.yielded = true
	return s.tup, true, nil
}

func (s *singleTupleStream) Close() {}

// emptyStream yields no tuples, used for an Insert without RETURNING.
type emptyStream struct{}

func (emptyStream) Next() (pager.Tuple, bool, error) { return pager.Tuple{}, false, nil }
func (emptyStream) Close()                           {}
