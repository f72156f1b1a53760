package completion

import (
	"fmt"
	"unicode/utf8"
)

const (
	// MaxDocumentChars is the number of characters of a document sent per request
	MaxDocumentChars = 8000

	// TruncationMarker is appended to a document cut at MaxDocumentChars
	TruncationMarker = "\n[Document truncated due to length]"

	documentPreamble = "\n\nYou are provided with a document that the user has uploaded. " +
		"Use the following document content to answer the user's questions. " +
		"If the answer is not in the document, you can use your general knowledge.\n\n" +
		"DOCUMENT CONTENT:\n"
)

// TruncateDocument limits doc to MaxDocumentChars characters, marking the cut
func TruncateDocument(doc string) string {
	if utf8.RuneCountInString(doc) <= MaxDocumentChars {
		return doc
	}
	return string([]rune(doc)[:MaxDocumentChars]) + TruncationMarker
}

// SystemPrompt builds the leading system message for a request
func SystemPrompt(language, documentContext string) string {
	if language == "" {
		language = "English"
	}

	prompt := fmt.Sprintf("You are a helpful assistant. Please respond in %s only.", language)
	if documentContext == "" {
		return prompt
	}
	return prompt + documentPreamble + TruncateDocument(documentContext)
}
