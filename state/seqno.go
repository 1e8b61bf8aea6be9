package state

const seqnoHalf = uint16(1 << 15)

// SeqnoCmp returns 0 if equal, 1 if a is newer than b and -1 otherwise.
func SeqnoCmp(a, b uint16) int {
	if a == b {
		return 0
	}
	if (a > b && a-b <= seqnoHalf) || (b > a && b-a > seqnoHalf) {
		return 1
	}
	return -1
}

func SeqnoLt(a, b uint16) bool { return SeqnoCmp(a, b) < 0 }
func SeqnoLe(a, b uint16) bool { return SeqnoCmp(a, b) <= 0 }
func SeqnoGt(a, b uint16) bool { return SeqnoCmp(a, b) > 0 }
func SeqnoGe(a, b uint16) bool { return SeqnoCmp(a, b) >= 0 }
