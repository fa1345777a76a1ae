package httpcore

import (
	"net"
	"sync"
)

// idleConnList tracks connections parked between requests so Shutdown can
// close them instead of waiting for their next header byte.
type idleConnList struct {
	mtx       sync.Mutex
	firstItem *idleConnItem
	lastItem  *idleConnItem
}

type idleConnItem struct {
	nextItem *idleConnItem
	prevItem *idleConnItem
	c        net.Conn
	listed   bool
}

func (l *idleConnList) insertBack(item *idleConnItem) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	item.listed = true
	if l.lastItem == nil {
		l.firstItem = item
		l.lastItem = item
		return
	}
	l.lastItem.nextItem = item
	item.prevItem = l.lastItem
	l.lastItem = item
}

func (l *idleConnList) remove(item *idleConnItem) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if !item.listed {
		return
	}
	item.listed = false
	if item.prevItem != nil {
		item.prevItem.nextItem = item.nextItem
	} else {
		l.firstItem = item.nextItem
	}
	if item.nextItem != nil {
		item.nextItem.prevItem = item.prevItem
	} else {
		l.lastItem = item.prevItem
	}
	item.prevItem = nil
	item.nextItem = nil
}

// closeAll closes every parked connection, unblocking its read loop.
func (l *idleConnList) closeAll() {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	for item := l.firstItem; item != nil; item = item.nextItem {
		item.c.Close()
	}
}
