// Package wsclient implements the client side of the WebSocket protocol.
//
// https://tools.ietf.org/html/rfc6455
//
// Use Dial to connect to a ws or wss URL. The returned Session delivers
// messages to the callbacks in SessionOptions.Handlers while Run or Next
// is reading. Every frame the Session sends is a single final frame
// masked with a fresh key.
//
// The frame codec is usable on its own: EncodeFrame, DecodeFrame and
// Assembler need nothing but an io.Reader.
//
// Errors are reported with *TransportError, *HandshakeError,
// *ProtocolError and CloseError; use errors.As to inspect them.
package wsclient
