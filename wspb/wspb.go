// Package wspb provides helpers for protobuf messages.
package wspb

import (
	"context"
	"fmt"

	"github.com/golang/protobuf/proto"

	"github.com/coder/wsclient"
	"github.com/coder/wsclient/internal/errd"
)

// Write writes the protobuf message v to s as a binary message.
func Write(ctx context.Context, s *wsclient.Session, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to write protobuf message")

	b, err := proto.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal protobuf: %w", err)
	}

	return s.Write(ctx, wsclient.MessageBinary, b)
}

// Decode decodes a binary message, as passed to Handlers.OnBinary, into v.
func Decode(msg []byte, v proto.Message) (err error) {
	defer errd.Wrap(&err, "failed to read protobuf message")

	err = proto.Unmarshal(msg, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal protobuf: %w", err)
	}
	return nil
}
