package main

import (
	"context"

	"github.com/daviddao/mailagent/internal/agent"
	"github.com/daviddao/mailagent/internal/auth"
	"github.com/daviddao/mailagent/internal/config"
	"github.com/daviddao/mailagent/internal/dedup"
	"github.com/daviddao/mailagent/internal/display"
	"github.com/daviddao/mailagent/internal/index"
	"github.com/daviddao/mailagent/internal/llm"
	"github.com/daviddao/mailagent/internal/memory"
	msync "github.com/daviddao/mailagent/internal/sync"
)

func authManager() *auth.Manager {
	return auth.NewManager(cfg.ConfigDir, cfg.Gmail.Credentials, logger)
}

// newSyncer authenticates with Gmail. idx may be nil.
func newSyncer(ctx context.Context, idx *index.Index) (*msync.Syncer, error) {
	svc, err := authManager().GmailService(ctx)
	if err != nil {
		return nil, err
	}
	var indexer msync.Indexer
	if idx != nil {
		indexer = idx
	}
	return msync.New(svc, store, indexer, logger), nil
}

// newIndex opens the vector index with the configured dedup backend. The
// returned close func releases the dedup filter.
func newIndex() (*index.Index, func(), error) {
	embedder, err := llm.NewEmbedder(cfg.Embedding, logger)
	if err != nil {
		return nil, nil, err
	}
	filter, err := dedup.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return index.New(store, embedder, filter, logger), func() { filter.Close() }, nil
}

// newAgent builds the chat agent. An empty sessionID keeps memory in-process.
func newAgent(idx *index.Index, sessionID string) (*agent.Agent, *memory.Memory, error) {
	if err := config.ValidateForChat(cfg); err != nil {
		return nil, nil, err
	}
	client, err := llm.New(cfg.LLM, logger)
	if err != nil {
		return nil, nil, err
	}

	var mem *memory.Memory
	if sessionID == "" {
		mem = memory.New(client, cfg.Memory.MaxTokenLimit, logger)
	} else {
		mem, err = memory.Open(store, sessionID, client, cfg.Memory.MaxTokenLimit, logger)
		if err != nil {
			return nil, nil, err
		}
	}

	rules, err := cfg.LoadRules()
	if err != nil {
		return nil, nil, err
	}
	if rules == nil && !quietFlag {
		display.WarnMsg("no %s in %s, using an empty system prompt", config.RulesFile, cfg.ConfigDir)
	}
	systemPrompt := config.SystemPrompt(rules)
	if cfg.LLM.SystemPrompt != "" {
		systemPrompt = joinNonEmpty(systemPrompt, cfg.LLM.SystemPrompt)
	}

	a := agent.New(client, mem, idx, systemPrompt, logger)
	a.SetTopK(cfg.Retrieval.TopK)
	return a, mem, nil
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n\n" + b
}
