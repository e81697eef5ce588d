//go:build !linux

package sim

import "time"

var epoch = time.Now()

func monotonic() int64 {
	return int64(time.Since(epoch))
}
