// Package indel implements the small single-base indel detector (spec
// §4.6): a shortest-edit-script diff between a reference snippet and a read,
// classified into "read has a 1-base deletion", "read has a 1-base
// insertion", or "nothing interesting enough to call".
//
// The edit script itself comes from github.com/pmezard/go-difflib, an
// indirect dependency of erunyan6-Lab_Buddy promoted to direct here: its
// SequenceMatcher computes the same kind of minimal equal/insert/delete
// opcode script as the original program's mba/diff, which this package
// reads in exactly the shape spec §4.6 describes.
package indel

import "github.com/pmezard/go-difflib/difflib"

// Classify computes the shortest edit script between ref and read (which
// must be the same length, as produced by a reference snippet taken to
// match the read's length) and returns:
//
//	0   nothing recognizable (including scripts with more than 6 edits)
//	-n  the read has a 1-base deletion at read offset n
//	+n  the read has a 1-base insertion at read offset n
func Classify(ref, read []byte) int32 {
	a := splitBytes(ref)
	b := splitBytes(read)

	sm := difflib.NewMatcher(a, b)
	ops := sm.GetOpCodes()

	var script []difflib.OpCode
	for _, op := range ops {
		if op.Tag == 'e' && op.I1 == op.I2 && op.J1 == op.J2 {
			continue
		}
		script = append(script, op)
	}

	if len(script) > 6 {
		return 0
	}
	if len(script) != 4 {
		return 0
	}

	match1, change1, match2, change2 := script[0], script[1], script[2], script[3]
	if match1.Tag != 'e' || match2.Tag != 'e' {
		return 0
	}
	if opLen(change1) != 1 || opLen(change2) != 1 {
		return 0
	}

	offset := int32(change1.J1)
	switch {
	case change1.Tag == 'd' && change2.Tag == 'i':
		return -offset
	case change1.Tag == 'i' && change2.Tag == 'd':
		return offset
	default:
		return 0
	}
}

func opLen(op difflib.OpCode) int {
	di := op.I2 - op.I1
	dj := op.J2 - op.J1
	if di > dj {
		return di
	}
	return dj
}

func splitBytes(b []byte) []string {
	out := make([]string, len(b))
	for i, c := range b {
		out[i] = string(c)
	}
	return out
}
