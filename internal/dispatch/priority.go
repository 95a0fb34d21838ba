// Package dispatch implements the prioritized callback engine that routes
// decoded autohost commands to subscribers. Each command runs two phases of
// subscribers (pre-callbacks before the built-in state update, callbacks
// after), ordered by priority token within each phase.
package dispatch

import (
	"math"
	"strconv"
)

// labelRank is the sort rank of every non-numeric priority token; any
// numeric token sorts before it.
const labelRank = int64(math.MaxInt64)

// Priority is a subscription sort key: either a numeric token or an
// arbitrary label. Numeric tokens order ascending among themselves and
// always before labels; labels have no order among themselves and fall back
// to registration order.
type Priority struct {
	token   string
	num     int64
	numeric bool
}

// ParsePriority classifies a priority token.
func ParsePriority(token string) Priority {
	if n, err := strconv.ParseInt(token, 10, 64); err == nil {
		return Priority{token: token, num: n, numeric: true}
	}
	return Priority{token: token}
}

// Token returns the original token.
func (p Priority) Token() string {
	return p.token
}

// Numeric reports whether the token is numeric.
func (p Priority) Numeric() bool {
	return p.numeric
}

func (p Priority) rank() int64 {
	if p.numeric {
		return p.num
	}
	return labelRank
}

// Less reports whether p orders before other. Equal ranks (two labels, or
// two equal numbers) report false; callers break the tie by registration
// order.
func (p Priority) Less(other Priority) bool {
	return p.rank() < other.rank()
}
