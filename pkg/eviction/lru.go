package eviction

import "time"

type lruNode struct {
	key  string
	size int64
	prev *lruNode
	next *lruNode
}

// lru keeps keys in a doubly linked list, most recently used at head.
type lru struct {
	nodes map[string]*lruNode
	head  *lruNode
	tail  *lruNode
	bytes int64
}

func newLRU() *lru {
	return &lru{nodes: make(map[string]*lruNode)}
}

func (l *lru) Add(key string, size int64, _ time.Time) {
	if n, ok := l.nodes[key]; ok {
		l.bytes += size - n.size
		n.size = size
		l.moveToFront(n)
		return
	}
	n := &lruNode{key: key, size: size}
	l.nodes[key] = n
	l.bytes += size
	l.addFront(n)
}

func (l *lru) Touch(key string) {
	if n, ok := l.nodes[key]; ok {
		l.moveToFront(n)
	}
}

func (l *lru) Remove(key string) {
	if n, ok := l.nodes[key]; ok {
		l.unlink(n)
		delete(l.nodes, key)
		l.bytes -= n.size
	}
}

// EvictionCandidate returns the least recently used key.
func (l *lru) EvictionCandidate() (string, bool) {
	if l.tail == nil {
		return "", false
	}
	return l.tail.key, true
}

func (l *lru) Len() int {
	return len(l.nodes)
}

func (l *lru) Size() int64 {
	return l.bytes
}

func (l *lru) Reclaimable(exclude string) int64 {
	if n, ok := l.nodes[exclude]; ok {
		return l.bytes - n.size
	}
	return l.bytes
}

func (l *lru) addFront(n *lruNode) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
}

func (l *lru) unlink(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next = nil, nil
}

func (l *lru) moveToFront(n *lruNode) {
	if l.head == n {
		return
	}
	l.unlink(n)
	l.addFront(n)
}
