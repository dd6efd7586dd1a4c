package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/papercomputeco/lumina/pkg/llm"
	"github.com/papercomputeco/lumina/pkg/stream"
)

const chatCompletionsPath = "/v1/chat/completions"

// ChatOptions are the optional parameters of a chat completion request.
// Nil fields are omitted from the request body.
type ChatOptions struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	Stop        []string

	// ChatID asks the server to inject context from documents attached to
	// this stored chat.
	ChatID string
}

func newChatRequest(model string, messages []llm.Message, opts *ChatOptions, streaming bool) *llm.ChatRequest {
	req := &llm.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   streaming,
	}
	if opts != nil {
		req.Temperature = opts.Temperature
		req.MaxTokens = opts.MaxTokens
		req.TopP = opts.TopP
		req.Stop = opts.Stop
		req.ChatID = opts.ChatID
	}
	return req
}

func chatCompletionsEndpoint(chatID string) string {
	if chatID == "" {
		return chatCompletionsPath
	}
	return chatCompletionsPath + "?chat_id=" + url.QueryEscape(chatID)
}

func (c *Client) newChatHTTPRequest(ctx context.Context, req *llm.ChatRequest) (*http.Request, error) {
	body, err := c.provider.BuildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatCompletionsEndpoint(req.ChatID), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return httpReq, nil
}

// StreamChatCompletion issues one streaming chat completion request and
// returns the Stream of text fragments.
//
// A network failure returns *TransportError and a non-2xx response returns
// *RequestFailedError; no Stream is created in either case. Otherwise the
// returned Stream owns the response body and must be drained, stopped or
// closed. Cancelling ctx aborts the underlying read, which the Stream reports
// as a *stream.ReadError unless Stop was called first.
func (c *Client) StreamChatCompletion(ctx context.Context, model string, messages []llm.Message, opts *ChatOptions) (*stream.Stream, error) {
	req := newChatRequest(model, messages, opts, true)

	httpReq, err := c.newChatHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug("starting chat stream",
		zap.String("model", model),
		zap.Int("messages", len(messages)),
		zap.String("chat_id", req.ChatID),
	)

	resp, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}

	streamOpts := []stream.Option{stream.WithLogger(c.logger)}
	if c.streamTee != nil {
		streamOpts = append(streamOpts, stream.WithTee(c.streamTee))
	}
	if c.readSize > 0 {
		streamOpts = append(streamOpts, stream.WithReadSize(c.readSize))
	}

	return stream.New(resp.Body, c.provider, streamOpts...), nil
}

// ChatCompletion issues a non-streaming chat completion request.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []llm.Message, opts *ChatOptions) (*llm.ChatResponse, error) {
	req := newChatRequest(model, messages, opts, false)

	httpReq, err := c.newChatHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.send(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}

	parsed, err := c.provider.ParseResponse(payload)
	if err != nil {
		return nil, fmt.Errorf("parsing chat response: %w", err)
	}

	return parsed, nil
}
