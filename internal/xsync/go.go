// Package xsync contains small goroutine helpers.
package xsync

import (
	"fmt"
)

// Go runs fn in a goroutine and returns a channel that receives the
// error it returns. A panic in fn is delivered as an error instead of
// crashing the process.
func Go(fn func() error) <-chan error {
	errs := make(chan error, 1)
	go func() {
		defer func() {
			r := recover()
			if r != nil {
				errs <- fmt.Errorf("panic in go fn: %v", r)
			}
		}()
		errs <- fn()
	}()
	return errs
}
