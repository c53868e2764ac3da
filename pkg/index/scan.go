package index

import "github.com/nainya/storagecore/pkg/common"

// CompareOp names a scan_key operator.
type CompareOp int

const (
	OpEqual CompareOp = iota
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual
	OpNotEqual
)

// ScanKey appends every RowId whose stored key satisfies `stored op key` to
// results. Equality is a point lookup; every other operator positions at
// the appropriate leaf boundary and walks the leaf chain, stopping as
// soon as the ordering guarantees the rest of the chain cannot match.
func (t *Tree) ScanKey(key []byte, op CompareOp, results *[]common.RowID) error {
	if op == OpEqual {
		v, ok, err := t.GetValue(key)
		if err != nil {
			return err
		}
		if ok {
			*results = append(*results, v)
		}
		return nil
	}

	it, err := t.scanStart(key, op)
	if err != nil {
		return err
	}
	for !it.Done() {
		k, err := it.Key()
		if err != nil {
			return err
		}
		cmp := t.km.Compare(k, key)
		if op == OpLess && cmp >= 0 {
			break
		}
		if op == OpLessEqual && cmp > 0 {
			break
		}
		if matches(cmp, op) {
			v, err := it.Value()
			if err != nil {
				return err
			}
			*results = append(*results, v)
		}
		if err := it.Next(); err != nil {
			return err
		}
	}
	return nil
}

func matches(cmp int, op CompareOp) bool {
	switch op {
	case OpLess:
		return cmp < 0
	case OpLessEqual:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpNotEqual:
		return cmp != 0
	}
	return false
}

// scanStart picks the leaf-chain entry point: >, >= start at the first
// entry >= key; <, <= and != start at the leftmost leaf (a != scan has to
// walk the smaller keys too).
func (t *Tree) scanStart(key []byte, op CompareOp) (*Iterator, error) {
	if t.IsEmpty() {
		return t.End(), nil
	}
	switch op {
	case OpGreater, OpGreaterEqual:
		return t.BeginAt(key)
	default:
		return t.Begin()
	}
}
