// Package oninterrupt lets long-running gsd subcommands register cleanup
// callbacks that run on SIGINT, e.g. closing a still-open handle or
// removing a partially written archive.
package oninterrupt

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mu       sync.Mutex
	nextID   int
	handlers map[int]func()
)

func init() {
	handlers = make(map[int]func())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		sig := <-c
		mu.Lock()
		for _, f := range handlers {
			f()
		}
		mu.Unlock()
		if s, ok := sig.(syscall.Signal); ok {
			os.Exit(128 + int(s))
		}
		os.Exit(1)
	}()
}

// Register adds cb to the set of functions run on SIGINT and returns a
// token identifying it. A caller whose cleanup already ran to completion
// (e.g. gsd archive finished the atomic rename) must call Deregister with
// that token; otherwise the handler keeps firing on every future SIGINT
// for the rest of the process's life, repeatedly touching a temp file
// that no longer exists. This matters in particular for anything driving
// gsd archive more than once in the same process, such as a test binary
// or a batch command invoking it in a loop.
func Register(cb func()) int {
	mu.Lock()
	defer mu.Unlock()
	id := nextID
	nextID++
	handlers[id] = cb
	return id
}

// Deregister removes the handler identified by id, previously returned
// by Register. It is a no-op if id was already deregistered or never
// registered.
func Deregister(id int) {
	mu.Lock()
	defer mu.Unlock()
	delete(handlers, id)
}
