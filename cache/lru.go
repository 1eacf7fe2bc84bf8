package cache

import (
	"sync"

	"github.com/loambase/loam/doc"
)

/*
A single cache shard: map plus intrusive doubly-linked list, least recently
used entries evicted from the tail.
*/

////////////////////////////////////////////////////////////////////////////////

type cacheKey struct {
	collection string
	key        string
}

type listNode struct {
	key        cacheKey
	value      doc.Document
	prev, next *listNode
}

type lru struct {
	mtx   sync.Mutex
	cache map[cacheKey]*listNode
	head  *listNode
	tail  *listNode
	count int64
	cap   int64
}

func newLRU(capacity int64) *lru {
	head, tail := &listNode{}, &listNode{}
	head.next = tail
	tail.prev = head
	return &lru{
		cache: make(map[cacheKey]*listNode),
		head:  head,
		tail:  tail,
		cap:   capacity,
	}
}

func (l *lru) addToFront(node *listNode) {
	node.next = l.head.next
	node.prev = l.head
	l.head.next.prev = node
	l.head.next = node
}

func (l *lru) removeNode(node *listNode) {
	node.prev.next = node.next
	node.next.prev = node.prev
}

func (l *lru) moveToFront(node *listNode) {
	l.removeNode(node)
	l.addToFront(node)
}

func (l *lru) put(key cacheKey, value doc.Document) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if node, exists := l.cache[key]; exists {
		node.value = value
		l.moveToFront(node)
		return
	}
	node := &listNode{key: key, value: value}
	l.cache[key] = node
	l.addToFront(node)
	l.count++
	for l.count > l.cap {
		l.evict()
	}
}

func (l *lru) get(key cacheKey) (doc.Document, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if node, exists := l.cache[key]; exists {
		l.moveToFront(node)
		return node.value, true
	}
	return doc.Document{}, false
}

func (l *lru) delete(key cacheKey) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if node, exists := l.cache[key]; exists {
		l.removeNode(node)
		delete(l.cache, key)
		l.count--
	}
}

func (l *lru) reset() {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.cache = make(map[cacheKey]*listNode)
	l.head.next = l.tail
	l.tail.prev = l.head
	l.count = 0
}

func (l *lru) evict() {
	if l.tail.prev == l.head {
		return // cache is empty
	}
	l.count--
	delete(l.cache, l.tail.prev.key)
	l.removeNode(l.tail.prev)
}
