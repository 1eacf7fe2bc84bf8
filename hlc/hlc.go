package hlc

import (
	"fmt"
)

/*
Package hlc implements hybrid logical clocks. A timestamp is a triple of wall
clock milliseconds, a logical counter used to break ties within a
millisecond, and the issuing node's identifier. Timestamps are totally
ordered: wall, then logical, then node. The node component makes the order
total across the cluster, which is what lets last-write-wins resolution
produce the same winner on every replica.
*/

////////////////////////////////////////////////////////////////////////////////

// Timestamp is a hybrid logical clock reading. The zero value means "no
// information" and sorts before every real timestamp.
type Timestamp struct {
	Wall    int64  `json:"wall"`
	Logical int32  `json:"logical"`
	Node    string `json:"node"`
}

// Compare returns -1, 0, or 1 according to the total order on timestamps.
func Compare(a, b Timestamp) int {
	if a.Wall != b.Wall {
		if a.Wall < b.Wall {
			return -1
		}
		return 1
	}
	if a.Logical != b.Logical {
		if a.Logical < b.Logical {
			return -1
		}
		return 1
	}
	if a.Node != b.Node {
		if a.Node < b.Node {
			return -1
		}
		return 1
	}
	return 0
}

// Before reports whether t orders strictly before other.
func (t Timestamp) Before(other Timestamp) bool {
	return Compare(t, other) < 0
}

// After reports whether t orders strictly after other.
func (t Timestamp) After(other Timestamp) bool {
	return Compare(t, other) > 0
}

// IsZero reports whether t is the zero timestamp.
func (t Timestamp) IsZero() bool {
	return t.Wall == 0 && t.Logical == 0 && t.Node == ""
}

// String returns a compact representation for logs.
func (t Timestamp) String() string {
	return fmt.Sprintf("(%d, %d, %s)", t.Wall, t.Logical, t.Node)
}

// Max returns the later of a and b.
func Max(a, b Timestamp) Timestamp {
	if Compare(a, b) >= 0 {
		return a
	}
	return b
}
