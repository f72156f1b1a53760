// Package completion turns a chat history and an optional document into a
// single reply from a remote language model.
//
// GenerateReply never returns an error: failures are logged and mapped to
// one of three fixed user-facing strings. Backends report failures wrapped
// with ErrTransport or ErrNoChoices so the client can tell them apart.
package completion
