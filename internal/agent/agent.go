// Package agent is the email assistant: it retrieves relevant emails from
// the index, builds the prompt and keeps the conversation going.
package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/daviddao/mailagent/internal/llm"
	"github.com/daviddao/mailagent/internal/memory"
	"github.com/daviddao/mailagent/internal/types"
)

// DefaultTopK is the number of emails retrieved per question.
const DefaultTopK = 5

// Retriever is the part of the vector index the agent needs.
type Retriever interface {
	Exists() bool
	Update(ctx context.Context, emails []*types.Email) (int, error)
	Search(ctx context.Context, query string, k int) ([]types.Hit, error)
	TopK(ctx context.Context, query string, k int) (string, error)
}

// Agent answers questions about the user's mail.
type Agent struct {
	client       llm.Client
	memory       *memory.Memory
	index        Retriever
	systemPrompt string
	topK         int
	log          zerolog.Logger
}

// New builds an agent. systemPrompt is the joined system rules.
func New(client llm.Client, mem *memory.Memory, index Retriever, systemPrompt string, logger zerolog.Logger) *Agent {
	return &Agent{
		client:       client,
		memory:       mem,
		index:        index,
		systemPrompt: systemPrompt,
		topK:         DefaultTopK,
		log:          logger.With().Str("component", "agent").Logger(),
	}
}

// TopK returns the number of emails retrieved per question.
func (a *Agent) TopK() int {
	return a.topK
}

// SetTopK changes the number of emails retrieved per question.
func (a *Agent) SetTopK(k int) {
	if k > 0 {
		a.topK = k
	}
}

// UpdateRetriever indexes any emails not ingested before.
func (a *Agent) UpdateRetriever(ctx context.Context, emails []*types.Email) (int, error) {
	return a.index.Update(ctx, emails)
}

// Prompt assembles the request text from the system rules, the user's
// input and the retrieved email blocks.
func (a *Agent) Prompt(input, emailContent string) string {
	var b strings.Builder
	b.WriteString("You are a helpful email assistant.\n")
	fmt.Fprintf(&b, "system_prompt: %s\n\n", a.systemPrompt)
	fmt.Fprintf(&b, "user_input: %s\n\n", input)
	b.WriteString("Reference the following email materials:\n")
	b.WriteString(emailContent)
	return b.String()
}

// Respond answers input using the k most relevant emails and the
// conversation so far, then records the exchange.
func (a *Agent) Respond(ctx context.Context, input string, k int) (string, error) {
	if k <= 0 {
		k = a.topK
	}

	var emails string
	if a.index.Exists() {
		var err error
		emails, err = a.index.TopK(ctx, input, k)
		if err != nil {
			return "", fmt.Errorf("retrieve emails: %w", err)
		}
	} else {
		a.log.Debug().Msg("index is empty, answering without email context")
	}
	return a.reply(ctx, input, emails)
}

// Answer is Respond that also returns the retrieved emails with their
// scores.
func (a *Agent) Answer(ctx context.Context, input string, k int) (string, []types.Hit, error) {
	if k <= 0 {
		k = a.topK
	}

	var hits []types.Hit
	if a.index.Exists() {
		var err error
		hits, err = a.index.Search(ctx, input, k)
		if err != nil {
			return "", nil, fmt.Errorf("retrieve emails: %w", err)
		}
	}
	parts := make([]string, len(hits))
	for i, h := range hits {
		parts[i] = h.Content
	}

	reply, err := a.reply(ctx, input, strings.Join(parts, "\n\n"))
	if err != nil {
		return "", nil, err
	}
	return reply, hits, nil
}

func (a *Agent) reply(ctx context.Context, input, emails string) (string, error) {
	var history []llm.Message
	if a.memory != nil {
		history = a.memory.Messages()
	}

	reply, err := a.client.Complete(ctx, llm.CompleteRequest{
		History:     history,
		Prompt:      a.Prompt(input, emails),
		Temperature: -1,
	})
	if err != nil {
		return "", err
	}

	if a.memory != nil {
		if err := a.memory.Save(ctx, input, reply); err != nil {
			a.log.Warn().Err(err).Msg("save conversation turn")
		}
	}
	return reply, nil
}

// ChatLoop indexes emails and then answers lines read from in until the
// user types exit or quit, or in is exhausted.
func (a *Agent) ChatLoop(ctx context.Context, in io.Reader, out io.Writer, emails []*types.Email) error {
	if _, err := a.UpdateRetriever(ctx, emails); err != nil {
		return fmt.Errorf("update index: %w", err)
	}

	fmt.Fprintln(out, "Type 'exit' to quit.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprint(out, "You: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			fmt.Fprintln(out, "Bye!")
			return nil
		case strings.HasPrefix(line, ":k"):
			k, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, ":k")))
			if err != nil || k <= 0 {
				fmt.Fprintln(out, "usage: :k N (N > 0)")
				continue
			}
			a.SetTopK(k)
			fmt.Fprintf(out, "Retrieving %d emails per question.\n", k)
			continue
		}

		reply, err := a.Respond(ctx, line, a.topK)
		if err != nil {
			a.log.Error().Err(err).Msg("respond")
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Agent: %s\n", reply)
	}
}

// EstimateTokens approximates how many tokens the rendered emails take.
func EstimateTokens(emails []*types.Email) int {
	total := 0
	for _, e := range emails {
		if e != nil {
			total += memory.EstimateTokens(e.String())
		}
	}
	return total
}
