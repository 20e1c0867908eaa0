package rpc

import (
	"os"
	"strconv"
	"sync/atomic"
)

var (
	clientSeq      atomic.Uint64
	clientIDPrefix = func() string {
		h, _ := os.Hostname()
		if h == "" {
			h = "h"
		}
		return "devrpc-" + h + "-" + strconv.Itoa(os.Getpid()) + "-"
	}()
)

// nextClientID returns a transport client id unique within this process.
func nextClientID() string {
	n := clientSeq.Add(1)
	return clientIDPrefix + strconv.FormatUint(n, 36)
}
