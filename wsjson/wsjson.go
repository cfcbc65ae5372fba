// Package wsjson provides helpers for JSON messages.
package wsjson

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coder/wsclient"
	"github.com/coder/wsclient/internal/bufpool"
	"github.com/coder/wsclient/internal/errd"
)

// Write writes the JSON message v to s as a text message.
func Write(ctx context.Context, s *wsclient.Session, v interface{}) error {
	return write(ctx, s, v)
}

func write(ctx context.Context, s *wsclient.Session, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to write JSON message")

	b := bufpool.Get()
	defer bufpool.Put(b)

	err = json.NewEncoder(b).Encode(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	return s.Write(ctx, wsclient.MessageText, b.Bytes())
}

// Decode decodes a text message, as passed to Handlers.OnText, into v.
func Decode(msg string, v interface{}) (err error) {
	defer errd.Wrap(&err, "failed to read JSON message")

	d := json.NewDecoder(strings.NewReader(msg))
	err = d.Decode(v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}
