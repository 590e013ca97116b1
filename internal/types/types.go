// Package types defines core data structures for mailagent.
package types

import (
	"fmt"
	"strings"
)

// MessageRef is a mail API identifier pair as returned by a message listing.
// The JSON shape matches the saved emails_id_threading.json file.
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

// Email is a parsed email sample: headers plus normalized body text.
type Email struct {
	ID            string `json:"id"`
	ThreadID      string `json:"thread_id"`
	Subject       string `json:"subject"`
	Sender        string `json:"sender"`
	Receiver      string `json:"receiver"`
	Date          string `json:"date"`
	Content       string `json:"content"`
	WordCount     int    `json:"word_count"`
	SentenceCount int    `json:"sentence_count"`
}

// NewEmail builds an Email and computes content stats.
func NewEmail(id, threadID, subject, sender, receiver, date, content string) *Email {
	e := &Email{
		ID:       id,
		ThreadID: threadID,
		Subject:  subject,
		Sender:   sender,
		Receiver: receiver,
		Date:     date,
	}
	e.SetContent(content)
	return e
}

// SetContent replaces the body and recomputes word and sentence counts.
func (e *Email) SetContent(content string) {
	e.Content = content
	e.WordCount, e.SentenceCount = ContentStats(content)
}

// Equal reports whether two samples refer to the same message.
func (e *Email) Equal(other *Email) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.ID == other.ID && e.ThreadID == other.ThreadID
}

// String renders the labelled document block that gets embedded and shown to the model.
func (e *Email) String() string {
	return fmt.Sprintf("【Id】: %s\n【Thread ID】: %s\n【Subject】: %s\n【Sender】: %s\n【Receiver】: %s\n【Date】: %s\n【Content】: %s\n【Word Count】: %d\n【Sentence Count】: %d",
		e.ID, e.ThreadID, e.Subject, e.Sender, e.Receiver, e.Date, e.Content, e.WordCount, e.SentenceCount)
}

// ContentStats returns the word count and a rough sentence count.
// Sentences are approximated as the mean of period-separated and
// line-separated pieces.
func ContentStats(content string) (words, sentences int) {
	if content == "" {
		return 0, 0
	}
	words = len(strings.Fields(content))
	sentences = (len(strings.Split(content, ".")) + len(strings.Split(content, "\n"))) / 2
	return words, sentences
}

// Document is a stored, embedded piece of text in the vector index.
type Document struct {
	ID        string    `json:"id"`
	EmailID   string    `json:"email_id,omitempty"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt string    `json:"created_at"`
}

// Hit is a search result from the vector index.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Turn is one exchange in a chat session.
type Turn struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	Human     string `json:"human"`
	AI        string `json:"ai"`
	CreatedAt string `json:"created_at"`
}

// Rule is one entry of rules_agents.json.
type Rule struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IngestResult summarizes a fetch/parse/index pass.
type IngestResult struct {
	Listed  int    `json:"listed"`
	Parsed  int    `json:"parsed"`
	New     int    `json:"new"`
	Skipped int    `json:"skipped"`
	Indexed int    `json:"indexed"`
	Error   string `json:"error,omitempty"`
}
