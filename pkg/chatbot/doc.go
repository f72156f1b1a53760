// Package chatbot ties the session manager, the completion client and the
// document extractor together into the two user-facing flows: asking a
// question in the active chat and uploading a document into a fresh chat.
package chatbot
