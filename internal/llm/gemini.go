package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/designer-agent/internal/httpkit"
)

const geminiAPIURL = "https://generativelanguage.googleapis.com"

// GeminiClient is a client for the Google Gemini generateContent API.
type GeminiClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiClient creates a Gemini client. An empty baseURL selects the
// public endpoint.
func NewGeminiClient(apiKey, baseURL string, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	if baseURL == "" {
		baseURL = geminiAPIURL
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "gemini"),
		httpClient: httpkit.NewClient(
			httpkit.WithHeader("x-goog-api-key", apiKey),
			httpkit.WithRetry(2, 2*time.Second),
			httpkit.WithRetryOnThrottle(),
			httpkit.WithLogger(logger),
		),
	}
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Tools             []geminiTool    `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"` // user or model
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *geminiBlob             `json:"inlineData,omitempty"`
	FunctionCall     *geminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *geminiFunctionResponse `json:"functionResponse,omitempty"`
}

type geminiBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiFunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type geminiFunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Chat sends a generateContent request. Inline image parts in the
// response are returned in Message.Images.
func (c *GeminiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := convertToGemini(messages)
	if decls := convertToolsToGemini(tools); len(decls) > 0 {
		req.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	c.logger.Debug("preparing request",
		"model", model,
		"contents", len(req.Contents),
		"tools", len(tools),
	)

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(data))

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 4096)
		c.logger.Error("API error", "status", resp.StatusCode, "body", errBody)
		return nil, fmt.Errorf("gemini API error %d: %s", resp.StatusCode, errBody)
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result, err := convertFromGemini(model, &gr)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("response received",
		"model", result.Model,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"tool_calls", len(result.Message.ToolCalls),
		"images", len(result.Message.Images),
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", result.Message.Content)
	return result, nil
}

// Ping lists models to verify the key and endpoint.
func (c *GeminiClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1beta/models?pageSize=1", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 64*1024)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini API error %d", resp.StatusCode)
	}
	return nil
}

// convertToGemini maps chat roles onto Gemini contents. Assistant turns
// become "model"; tool results become functionResponse parts.
func convertToGemini(messages []Message) geminiRequest {
	system, rest := splitSystem(messages)
	var req geminiRequest
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: system}}}
	}

	// Gemini correlates function responses by name, not ID.
	callNames := make(map[string]string)

	for _, msg := range rest {
		switch msg.Role {
		case "assistant":
			var parts []geminiPart
			if msg.Content != "" {
				parts = append(parts, geminiPart{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" {
					callNames[tc.ID] = tc.Function.Name
				}
				parts = append(parts, geminiPart{FunctionCall: &geminiFunctionCall{
					Name: tc.Function.Name,
					Args: tc.Function.Arguments,
				}})
			}
			if len(parts) == 0 {
				parts = []geminiPart{{Text: ""}}
			}
			req.Contents = append(req.Contents, geminiContent{Role: "model", Parts: parts})

		case "tool":
			name := callNames[msg.ToolCallID]
			if name == "" {
				name = msg.ToolCallID
			}
			req.Contents = append(req.Contents, geminiContent{
				Role: "user",
				Parts: []geminiPart{{FunctionResponse: &geminiFunctionResponse{
					Name:     name,
					Response: map[string]any{"result": msg.Content},
				}}},
			})

		default:
			parts := make([]geminiPart, 0, len(msg.Images)+1)
			for _, img := range msg.Images {
				parts = append(parts, geminiPart{InlineData: &geminiBlob{
					MIMEType: img.MIMEType,
					Data:     img.Base64(),
				}})
			}
			parts = append(parts, geminiPart{Text: msg.Content})
			req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: parts})
		}
	}
	return req
}

func convertToolsToGemini(tools []map[string]any) []geminiFunctionDeclaration {
	var decls []geminiFunctionDeclaration
	for _, tool := range tools {
		name, desc, params, ok := toolFunction(tool)
		if !ok {
			continue
		}
		decls = append(decls, geminiFunctionDeclaration{
			Name:        name,
			Description: desc,
			Parameters:  params,
		})
	}
	return decls
}

func convertFromGemini(model string, gr *geminiResponse) (*ChatResponse, error) {
	if len(gr.Candidates) == 0 {
		if gr.PromptFeedback != nil && gr.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("gemini: prompt blocked: %s", gr.PromptFeedback.BlockReason)
		}
		return nil, fmt.Errorf("gemini: response has no candidates")
	}

	cand := gr.Candidates[0]
	var text strings.Builder
	msg := Message{Role: "assistant"}
	for i, part := range cand.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			args := part.FunctionCall.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:       fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, i),
				Function: FunctionCall{Name: part.FunctionCall.Name, Arguments: args},
			})
		case part.InlineData != nil:
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("gemini: decode inline image: %w", err)
			}
			msg.Images = append(msg.Images, Image{MIMEType: part.InlineData.MIMEType, Data: data})
		default:
			text.WriteString(part.Text)
		}
	}
	msg.Content = text.String()

	return &ChatResponse{
		Model:        model,
		Message:      msg,
		FinishReason: cand.FinishReason,
		InputTokens:  gr.UsageMetadata.PromptTokenCount,
		OutputTokens: gr.UsageMetadata.CandidatesTokenCount,
	}, nil
}
