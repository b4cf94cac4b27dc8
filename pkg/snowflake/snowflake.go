// Package snowflake hands out node-scoped ids: int64 event ids and the
// "<epoch-ms>_<suffix>" message ids.
package snowflake

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	nodeBits        = 10
	stepBits        = 12
	nodeMax         = -1 ^ (-1 << nodeBits)
	stepMask        = -1 ^ (-1 << stepBits)
	timeShift       = nodeBits + stepBits
	nodeShift       = stepBits
	epoch     int64 = 1704067200000 // 2024-01-01 00:00:00 UTC

	randomChars = 5
)

var ErrNodeRange = errors.New("node number must be between 0 and 1023")

type Node struct {
	mu   sync.Mutex
	now  func() time.Time
	time int64
	node int64
	step int64
}

func NewNode(node int64) (*Node, error) {
	if node < 0 || node > nodeMax {
		return nil, ErrNodeRange
	}
	return &Node{node: node, now: time.Now}, nil
}

// next returns the current millisecond and a step unique within it.
func (n *Node) next() (int64, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now().UnixMilli()
	if now < n.time {
		// clock moved backwards; stay on the last issued millisecond
		now = n.time
	}

	if n.time == now {
		n.step = (n.step + 1) & stepMask
		if n.step == 0 {
			for now <= n.time {
				now = n.now().UnixMilli()
			}
		}
	} else {
		n.step = 0
	}
	n.time = now

	return now, n.step
}

// Generate returns a k-sortable int64 id.
func (n *Node) Generate() int64 {
	now, step := n.next()
	return ((now - epoch) << timeShift) | (n.node << nodeShift) | step
}

// MessageID returns "<epoch-ms>_<suffix>" and the millisecond it embeds.
// The suffix carries node and step, so ids from one node never collide,
// plus random characters to spread ids across nodes sharing a node number.
func (n *Node) MessageID() (string, int64) {
	now, step := n.next()

	var b strings.Builder
	b.WriteString(strconv.FormatInt(now, 10))
	b.WriteByte('_')
	b.WriteString(strconv.FormatInt(n.node<<nodeShift|step, 36))
	b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", "")[:randomChars])

	return b.String(), now
}
