package xsync

import (
	"errors"
	"testing"

	"github.com/coder/wsclient/internal/test/assert"
	"github.com/coder/wsclient/internal/test/cmp"
)

func TestGoRecover(t *testing.T) {
	t.Parallel()

	errs := Go(func() error {
		panic("anmol")
	})

	err := <-errs
	if !cmp.ErrorContains(err, "anmol") {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestGoError(t *testing.T) {
	t.Parallel()

	exp := errors.New("boom")
	err := <-Go(func() error {
		return exp
	})
	assert.ErrorIs(t, exp, err)
}
