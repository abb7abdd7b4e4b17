// Package extract asks a language-model completion API for the recruiter's
// first name and company.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"recruiterrm/internal/config"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 60
	requestTimeout   = 60 * time.Second
)

// ErrNoJSON means the completion text held no JSON object to decode.
var ErrNoJSON = errors.New("completion contained no JSON object")

// Recruiter is what extraction yields. Either field may be blank.
type Recruiter struct {
	Name    string `json:"name"`
	Company string `json:"company"`
}

type Extractor interface {
	Extract(ctx context.Context, body string) (Recruiter, error)
}

// Canned returns fixed data without calling any API.
type Canned struct {
	Recruiter Recruiter
}

func NewCanned() Canned {
	return Canned{Recruiter: Recruiter{Name: "Steve", Company: "Apple"}}
}

func (c Canned) Extract(context.Context, string) (Recruiter, error) {
	return c.Recruiter, nil
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey       string
	organization string
	baseURL      string
	model        string
	maxTokens    int
	http         *http.Client
}

func New(cfg config.CompletionConfig) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Client{
		apiKey:       cfg.APIKey,
		organization: cfg.Organization,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		model:        model,
		maxTokens:    maxTokens,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

func (c *Client) Extract(ctx context.Context, body string) (Recruiter, error) {
	text, err := c.complete(ctx, BuildPrompt(body))
	if err != nil {
		return Recruiter{}, err
	}
	return ParseCompletion(text)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: 0,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.organization != "" {
		req.Header.Set("OpenAI-Organization", c.organization)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling completion API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("completion API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("completion API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("completion API returned no choices")
	}
	return result.Choices[0].Message.Content, nil
}

const promptTemplate = `Given an email from a recruiter, return the recruiter's first name and the recruiter's company's name formatted as valid JSON.

Example: ***
Email:
'''
Hi Matt! This is Steve Jobs with Apple Computer Company! I'm interested in having you join our team here.
'''

Response:
{"name": "Steve", "company": "Apple Computer Company"}
***

Email:
'''
%s

'''

Response:
`

func BuildPrompt(body string) string {
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(body))
}

var jsonObject = regexp.MustCompile(`\{[^{}]*\}`)

// ParseCompletion decodes the last JSON object in the completion text.
// Models sometimes wrap the answer in prose or code fences.
func ParseCompletion(text string) (Recruiter, error) {
	matches := jsonObject.FindAllString(text, -1)
	if len(matches) == 0 {
		return Recruiter{}, fmt.Errorf("%w: %q", ErrNoJSON, text)
	}
	var out struct {
		Name    *string `json:"name"`
		Company *string `json:"company"`
	}
	if err := json.Unmarshal([]byte(matches[len(matches)-1]), &out); err != nil {
		return Recruiter{}, fmt.Errorf("decoding completion %q: %w", matches[len(matches)-1], err)
	}
	r := Recruiter{}
	if out.Name != nil {
		r.Name = strings.TrimSpace(*out.Name)
	}
	if out.Company != nil {
		r.Company = strings.TrimSpace(*out.Company)
	}
	return r, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
