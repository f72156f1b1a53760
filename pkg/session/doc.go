// Package session owns conversation state: the message history of a chat,
// the document attached to it and the stores that persist both.
//
// Invariants:
// - Session ids are validated as path and key safe before any store access.
// - Messages are only ever appended; append order is replay order.
// - LastUpdated strictly increases on every persist of the same session.
// - Writes for the same session id are serialized by the store.
//
// Usage:
//
//	store, _ := session.NewFileStore("/tmp/docchat/chat_history", logger)
//	mgr := session.NewManager(store, logger)
//	id, _ := mgr.StartNewChat(ctx)
//	_ = mgr.SetDocument(ctx, text, "report.pdf")
//	_ = mgr.AddMessage(ctx, session.RoleUser, "What is the total?")
//	_ = id
package session
