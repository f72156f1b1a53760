// Package document turns uploaded files into plain text for the chat
// context and watches an inbox directory for new uploads.
//
// Only allow-listed extensions are accepted (pdf, txt and docx by default)
// and inputs above the configured size limit are rejected before parsing.
package document
