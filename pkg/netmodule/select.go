package netmodule

import (
	"reflect"
	"time"
)

// blockOnChannels waits for any of ready to be signalled, or for
// timeoutCh to fire. The number of sockets passed to BlockSet is small
// (a handful of connections at most), so reflect.Select's overhead next
// to a hand-unrolled 2/3/4-way select is not worth the added
// complexity.
func blockOnChannels(ready []<-chan struct{}, timeoutCh <-chan time.Time) error {
	cases := make([]reflect.SelectCase, 0, len(ready)+1)
	for _, ch := range ready {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	if timeoutCh != nil {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timeoutCh)})
	}
	reflect.Select(cases)
	return nil
}
