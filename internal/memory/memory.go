// Package memory keeps chat history for the agent: recent turns verbatim,
// older turns folded into a running summary written by the LLM.
package memory

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/db"
	"github.com/daviddao/mailagent/internal/llm"
	"github.com/daviddao/mailagent/internal/types"
)

// DefaultMaxTokenLimit is the buffer size used when none is given.
const DefaultMaxTokenLimit = 2000

const summaryPrompt = `Progressively summarize the lines of conversation provided, adding onto the previous summary and returning a new summary.

Current summary:
%s

New lines of conversation:
%s

New summary:`

// Memory is a summary buffer. It is not safe for concurrent use.
type Memory struct {
	client    llm.Client
	store     *db.DB
	sessionID string
	limit     int
	log       zerolog.Logger

	summary string
	buffer  []types.Turn
	nextSeq int
}

// New returns an in-memory buffer.
func New(client llm.Client, maxTokenLimit int, logger zerolog.Logger) *Memory {
	if maxTokenLimit <= 0 {
		maxTokenLimit = DefaultMaxTokenLimit
	}
	return &Memory{
		client:  client,
		limit:   maxTokenLimit,
		log:     logger.With().Str("component", "memory").Logger(),
		nextSeq: 1,
	}
}

// Open returns a buffer persisted under sessionID, restoring any summary
// and unsummarized turns already stored.
func Open(store *db.DB, sessionID string, client llm.Client, maxTokenLimit int, logger zerolog.Logger) (*Memory, error) {
	m := New(client, maxTokenLimit, logger)
	m.store = store
	m.sessionID = sessionID
	m.log = m.log.With().Str("session", sessionID).Logger()

	if err := store.EnsureSession(sessionID); err != nil {
		return nil, err
	}
	sess, err := store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	turns, err := store.Turns(sessionID, sess.SummarizedThrough)
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}

	m.summary = sess.Summary
	m.buffer = turns
	m.nextSeq = sess.Turns + 1

	m.log.Debug().Int("buffered", len(turns)).Bool("has_summary", m.summary != "").Msg("restored session")
	return m, nil
}

// SessionID returns the persisted session, or "" for an in-memory buffer.
func (m *Memory) SessionID() string {
	return m.sessionID
}

// Summary returns the running summary of pruned turns.
func (m *Memory) Summary() string {
	return m.summary
}

// Buffer returns the turns kept verbatim.
func (m *Memory) Buffer() []types.Turn {
	return append([]types.Turn(nil), m.buffer...)
}

// Messages returns the history to send with the next request: the summary
// as a system message, then the buffered turns.
func (m *Memory) Messages() []llm.Message {
	msgs := make([]llm.Message, 0, 2*len(m.buffer)+1)
	if m.summary != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: m.summary})
	}
	for _, t := range m.buffer {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: t.Human},
			llm.Message{Role: llm.RoleAssistant, Content: t.AI},
		)
	}
	return msgs
}

// Save records an exchange and prunes the buffer into the summary once it
// exceeds the token limit.
func (m *Memory) Save(ctx context.Context, human, ai string) error {
	turn := types.Turn{SessionID: m.sessionID, Seq: m.nextSeq, Human: human, AI: ai}
	if m.store != nil {
		seq, err := m.store.AppendTurn(m.sessionID, human, ai)
		if err != nil {
			return fmt.Errorf("persist turn: %w", err)
		}
		turn.Seq = seq
	}
	m.nextSeq = turn.Seq + 1
	m.buffer = append(m.buffer, turn)

	return m.prune(ctx)
}

func (m *Memory) prune(ctx context.Context) error {
	if BufferTokens(m.buffer) <= m.limit {
		return nil
	}

	cut := 0
	for cut < len(m.buffer) && BufferTokens(m.buffer[cut:]) > m.limit {
		cut++
	}
	pruned := m.buffer[:cut]

	summary, err := m.summarize(ctx, pruned)
	if err != nil {
		return err
	}
	through := pruned[len(pruned)-1].Seq

	if m.store != nil {
		if err := m.store.SaveSummary(m.sessionID, summary, through); err != nil {
			return err
		}
	}

	m.summary = summary
	m.buffer = append([]types.Turn(nil), m.buffer[cut:]...)
	m.log.Debug().Int("pruned", cut).Int("kept", len(m.buffer)).Msg("summarized old turns")
	return nil
}

func (m *Memory) summarize(ctx context.Context, turns []types.Turn) (string, error) {
	var lines strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&lines, "Human: %s\nAI: %s\n", t.Human, t.AI)
	}

	out, err := m.client.Complete(ctx, llm.CompleteRequest{
		Prompt:      fmt.Sprintf(summaryPrompt, m.summary, strings.TrimRight(lines.String(), "\n")),
		Temperature: -1,
	})
	if err != nil {
		return "", fmt.Errorf("summarize conversation: %w", err)
	}
	return out, nil
}

// EstimateTokens approximates the token count of s as ceil(chars/4).
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// BufferTokens estimates the tokens of a run of turns.
func BufferTokens(turns []types.Turn) int {
	total := 0
	for _, t := range turns {
		total += EstimateTokens(t.Human) + EstimateTokens(t.AI)
	}
	return total
}
