package wsclient

import (
	"testing"

	"github.com/coder/wsclient/internal/test/assert"
)

func TestOpcode(t *testing.T) {
	t.Parallel()

	for op := Opcode(0); op < 16; op++ {
		reserved := (op >= 3 && op <= 7) || op >= 11
		assert.Equal(t, op.String()+" reserved", reserved, op.Reserved())
		assert.Equal(t, op.String()+" control", op >= 8 && !reserved, op.Control())
		assert.Equal(t, op.String()+" data", op == OpText || op == OpBinary, op.Data())
	}

	assert.Equal(t, "reserved name", "Opcode(0x3)", Opcode(3).String())
	assert.Equal(t, "message type", "MessageText", MessageText.String())
	assert.Equal(t, "state", "open", StateOpen.String())
}
