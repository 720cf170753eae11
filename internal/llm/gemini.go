// ABOUTME: Gemini generateContent client implementing the Decider contract.
// ABOUTME: Builds a tool-aware prompt and parses the model's JSON verdict.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/mcp-bridge/internal/protocol"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// GeminiClient calls the Gemini generateContent API. It satisfies Decider.
type GeminiClient struct {
	baseURL    string
	model      string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// GeminiConfig configures a GeminiClient.
type GeminiConfig struct {
	BaseURL string // defaults to the public API endpoint
	Model   string
	APIKey  string
	Logger  *slog.Logger
}

// NewGeminiClient creates a Gemini-backed decision function.
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger.With("component", "llm"),
	}
}

// Wire types for the generateContent API.

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent   `json:"contents"`
	GenerationConfig *generationConfig `json:"generation_config,omitempty"`
}

type generationConfig struct {
	ResponseMIMEType string `json:"response_mime_type,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// decisionPayload is the JSON verdict the system prompt asks the model for.
type decisionPayload struct {
	NeedsTools bool       `json:"needs_tools"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls"`
}

// Decide asks the model whether the query needs tools. Prior results, when
// present, switch the prompt into synthesis mode: the model is asked for a
// natural-language answer grounded in those results.
func (c *GeminiClient) Decide(ctx context.Context, query string, catalog []protocol.ToolDescriptor, history []Message, priorResults []ToolResult) (*Decision, error) {
	prompt := buildPrompt(query, catalog, priorResults)

	contents := make([]geminiContent, 0, len(history)+1)
	for _, m := range history {
		contents = append(contents, geminiContent{
			Role:  geminiRole(m.Role),
			Parts: []geminiPart{{Text: m.Content}},
		})
	}
	contents = append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: prompt}},
	})

	raw, err := c.generate(ctx, geminiRequest{
		Contents:         contents,
		GenerationConfig: &generationConfig{ResponseMIMEType: "application/json"},
	})
	if err != nil {
		return nil, err
	}

	return parseDecision(raw, c.logger), nil
}

// generate performs one generateContent round trip and returns the text of
// the first candidate.
func (c *GeminiClient) generate(ctx context.Context, req geminiRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("calling model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("model returned %d: %s", resp.StatusCode, string(detail))
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model returned no candidates")
	}

	return out.Candidates[0].Content.Parts[0].Text, nil
}

// parseDecision interprets the model's raw text as a JSON verdict. Anything
// that fails to parse degrades to a plain-text answer rather than an error.
func parseDecision(raw string, logger *slog.Logger) *Decision {
	var payload decisionPayload
	if err := json.Unmarshal([]byte(fixEscapes(raw)), &payload); err != nil {
		logger.Debug("model reply is not a JSON verdict, treating as text", "error", err)
		return &Decision{Content: strings.TrimSpace(raw)}
	}

	if payload.NeedsTools && len(payload.ToolCalls) > 0 {
		return &Decision{NeedsTools: true, ToolCalls: payload.ToolCalls}
	}
	return &Decision{Content: payload.Content}
}

// geminiRole maps conversation roles onto the two the API accepts.
func geminiRole(role string) string {
	if role == "assistant" || role == "model" {
		return "model"
	}
	return "user"
}

// buildPrompt assembles the system instruction, tool listing, and (in the
// synthesis pass) the collected tool results.
func buildPrompt(query string, catalog []protocol.ToolDescriptor, priorResults []ToolResult) string {
	var b strings.Builder

	b.WriteString("You are an AI assistant with access to the following tools:\n")
	for _, t := range catalog {
		desc := t.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, desc)
	}

	if len(priorResults) > 0 {
		b.WriteString("\nThe following tools were executed for this query:\n")
		for _, r := range priorResults {
			if r.Failed() {
				fmt.Fprintf(&b, "- %s FAILED: %s\n", r.ToolName, r.Error)
				continue
			}
			fmt.Fprintf(&b, "- %s returned: %s\n", r.ToolName, r.Result)
		}
		b.WriteString("\nRespond with JSON {\"needs_tools\": false, \"content\": \"...\"} where")
		b.WriteString(" content is a natural-language answer grounded in these results.")
		b.WriteString(" Mention any tool that failed.\n")
	} else {
		b.WriteString("\nWhen you need tools, respond with JSON:")
		b.WriteString(" {\"needs_tools\": true, \"tool_calls\": [{\"tool_name\": \"...\",")
		b.WriteString(" \"tool_args\": {...}, \"reasoning\": \"why\"}]}.")
		b.WriteString(" Otherwise respond with {\"needs_tools\": false, \"content\": \"...\"}.")
		b.WriteString(" Do not wrap the JSON in markdown.\n")
	}

	fmt.Fprintf(&b, "\nUser query: %s", query)
	return b.String()
}

// fixEscapes doubles lone backslashes that would break JSON parsing. Models
// routinely emit Windows paths and regexes with unescaped backslashes.
func fixEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch != '\\' {
			b.WriteByte(ch)
			continue
		}
		if i+1 < len(s) {
			switch s[i+1] {
			case '\\', 'n', 't', 'r', '"', '/', 'u', 'b', 'f':
				b.WriteByte(ch)
				continue
			}
		}
		b.WriteString(`\\`)
	}
	return b.String()
}
