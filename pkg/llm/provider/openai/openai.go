// Package openai implements the OpenAI-compatible chat completions wire format.
package openai

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/papercomputeco/lumina/pkg/llm"
)

// ErrNotObject is returned when a stream payload is valid JSON but not an
// object (e.g. a bare string or number).
var ErrNotObject = errors.New("chunk payload is not a JSON object")

// provider implements the Provider interface for the Chat Completions API.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "openai"
}

func (o *provider) BuildRequest(req *llm.ChatRequest) ([]byte, error) {
	if req == nil {
		return nil, errors.New("nil chat request")
	}

	messages := make([]openaiMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openaiMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return json.Marshal(openaiRequest{
		Model:       req.Model,
		Messages:    messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stop:        req.Stop,
	})
}

func (o *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	result := &llm.ChatResponse{
		ID:          resp.ID,
		Model:       resp.Model,
		RawResponse: payload,
	}
	if resp.Created != 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}

	if resp.Usage != nil {
		result.Usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	if len(resp.Choices) == 0 {
		return result, nil
	}

	choice := resp.Choices[0]
	result.Message = llm.Message{
		Role:    choice.Message.Role,
		Content: choice.Message.Content,
	}
	if choice.FinishReason != nil {
		result.StopReason = *choice.FinishReason
	}

	return result, nil
}

// ParseStreamChunk reads the first choice's delta. Frames without choices or
// without content parse successfully into a chunk with empty Content.
func (o *provider) ParseStreamChunk(payload []byte) (*llm.StreamChunk, error) {
	var chunk openaiChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return nil, ErrNotObject
		}
		return nil, err
	}

	result := &llm.StreamChunk{
		ID:    chunk.ID,
		Model: chunk.Model,
	}
	if chunk.Created != 0 {
		result.CreatedAt = time.Unix(chunk.Created, 0)
	}

	if len(chunk.Choices) == 0 {
		return result, nil
	}

	choice := chunk.Choices[0]
	result.Index = choice.Index
	result.Role = choice.Delta.Role
	result.FinishReason = choice.FinishReason
	if choice.Delta.Content != nil {
		result.Content = *choice.Delta.Content
	}

	return result, nil
}
