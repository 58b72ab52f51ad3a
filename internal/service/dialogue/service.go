// Package dialogue generates assistant replies from session history via the
// configured chat model.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/voice-relay/internal/config"
	"github.com/zhouzirui/voice-relay/internal/model/chat"
)

// historyLimit bounds how many recent messages feed the prompt.
const historyLimit = 8

// systemPrompt is the fixed assistant persona and length constraint.
const systemPrompt = "You are a friendly, concise voice assistant. Keep replies under 120 words."

// ErrEmptyReply reports that the model produced no usable text.
var ErrEmptyReply = errors.New("language model returned empty text")

// Service runs the reply-generation chain.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the prompt/model chain. Fails when the model
// credentials are missing; the caller then runs without dialogue and the
// orchestrator degrades to the apology reply.
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile dialogue chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Generate produces the assistant reply for the session history. The history
// already contains the latest user turn.
func (s *Service) Generate(ctx context.Context, history []chat.Message) (string, error) {
	response, err := s.chain.Invoke(ctx, buildChainInput(history))
	if err != nil {
		return "", fmt.Errorf("failed to run dialogue chain: %w", err)
	}

	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

// buildChainInput maps bounded history into the chain's template slots: the
// latest user turn becomes the query, everything before it the history.
func buildChainInput(history []chat.Message) map[string]any {
	recent := trimHistory(history, historyLimit)

	query := ""
	if n := len(recent); n > 0 && recent[n-1].Role == chat.RoleUser {
		query = recent[n-1].Content
		recent = recent[:n-1]
	}

	return map[string]any{
		"system":  systemPrompt,
		"history": buildHistoryMessages(recent),
		"query":   query,
	}
}

func trimHistory(messages []chat.Message, limit int) []chat.Message {
	if len(messages) <= limit {
		return messages
	}
	return messages[len(messages)-limit:]
}

func buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
