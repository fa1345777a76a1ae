package httpcore

import (
	"sync"
	"sync/atomic"
	"time"
)

// The Date header value is rendered once a second instead of per response.
var (
	serverDateOnce sync.Once
	serverDateVal  atomic.Value
)

func serverDate() []byte {
	serverDateOnce.Do(func() {
		refreshServerDate()
		go func() {
			for {
				time.Sleep(time.Second)
				refreshServerDate()
			}
		}()
	})
	return serverDateVal.Load().([]byte)
}

func refreshServerDate() {
	serverDateVal.Store(AppendHTTPDate(nil, time.Now()))
}
