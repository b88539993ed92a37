package zlcdma

import "github.com/mgsim-go/mgsim/sim"

// Node is one directory's attachment point to a unidirectional ring: an
// incoming bounded buffer of message handles, and a reference to the
// downstream neighbor that Send forwards into. Grounded on
// original_source/arch/mem/zlcdma/Directory.cpp's m_bottom/m_top Node
// members, simplified from the original's templated Sender/Receiver split
// since a single incoming buffer plus a next pointer is enough to model
// the ring's back-pressure behavior.
type Node struct {
	name     string
	incoming *sim.BoundedBuffer[Handle]
	next     *Node
}

// NewNode constructs a ring attachment point with the given incoming
// buffer capacity.
func NewNode(obj *sim.Object, name string, capacity int) *Node {
	return &Node{
		name:     name,
		incoming: sim.NewBoundedBuffer[Handle](obj.Path()+"."+name, capacity),
	}
}

// Incoming exposes the node's incoming buffer as a sim.Storage for kernel
// registration and for wiring into a process's read/write trace.
func (n *Node) Incoming() *sim.BoundedBuffer[Handle] { return n.incoming }

// Next returns the downstream neighbor this node forwards into.
func (n *Node) Next() *Node { return n.next }

// Send attempts to forward handle onto the downstream neighbor, but only if
// at least minSpace slots are free there first: the ring's
// shortcut-vs-divert back-pressure rule: a message only takes the
// low-latency path when there's enough slack to absorb a burst, otherwise
// it must divert down the other ring.
func (n *Node) Send(txn *sim.Txn, handle Handle, minSpace int) bool {
	if n.next == nil {
		return false
	}
	if n.next.incoming.Available() < minSpace {
		return false
	}
	return n.next.incoming.TryPush(txn, handle)
}

// WireRing links nodes into a closed ring in the given order: nodes[i]
// forwards to nodes[i+1], wrapping around to nodes[0].
func WireRing(nodes []*Node) {
	for i, n := range nodes {
		n.next = nodes[(i+1)%len(nodes)]
	}
}
