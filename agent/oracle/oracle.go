// Package oracle adapts an OpenAI-compatible chat endpoint into the semantic
// extraction service: intent classification, structured field extraction, and
// time-range parsing. The service is untrusted; every method returns an
// explicit error and callers decide the fail-soft behavior.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"

	contractx "github.com/cobsystems/careflow/agent/contract"
)

const (
	defaultTimeout = 15 * time.Second
	// One bounded retry after a failed call, then give up.
	maxAttempts = 2
)

var fenceRE = regexp.MustCompile("^```(?:json)?|```$")

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTemperature(t float64) Option {
	return func(c *Client) { c.temperature = t }
}

// Client is the oracle adapter.
type Client struct {
	api         *openaisdk.Client
	model       string
	temperature float64
	timeout     time.Duration
}

func New(api *openaisdk.Client, model string, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.New("oracle: api client is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("oracle: model is required")
	}
	c := &Client{
		api:         api,
		model:       strings.TrimSpace(model),
		temperature: 0.3,
		timeout:     defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Classify labels the input as one of the classification labels. Non-JSON or
// unknown labels yield ErrExtractionParse.
func (c *Client) Classify(ctx context.Context, turns []contractx.Turn, input string) (contractx.Intent, error) {
	labels := make([]string, 0, len(contractx.ClassifyLabels))
	for _, l := range contractx.ClassifyLabels {
		labels = append(labels, string(l))
	}

	prompt := fmt.Sprintf(`Analyze the conversation context and current user input to classify intent.

Conversation Context:
%s

Current User Input: %q

Classify into one of:
1. KNOWLEDGE - Questions about products, services, company info
2. MARKETING - Marketing meeting requests
3. CLINICAL - Medical appointment requests
4. GENERAL - General conversation

Consider ongoing conversations (e.g., a booking in progress) and explicit requests.

Respond in JSON format: {"intent": "..."}`, renderTurns(turns), input)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	cleaned := cleanFences(raw)
	var parsed struct {
		Intent string `json:"intent"`
	}
	label := ""
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		label = parsed.Intent
	} else {
		// Some models answer with the bare label.
		label = cleaned
	}
	label = strings.ToUpper(strings.TrimSpace(label))
	for _, known := range labels {
		if label == known {
			return contractx.Intent(label), nil
		}
	}
	return "", fmt.Errorf("%w: unknown intent label %q", contractx.ErrExtractionParse, label)
}

// Extract pulls the named schema fields from the input. Nulls and empty
// strings are dropped; values of other JSON types are stringified.
func (c *Client) Extract(ctx context.Context, schema []string, turns []contractx.Turn, input string) (map[string]string, error) {
	prompt := fmt.Sprintf(`Conversation Context:
%s

Current User Input: %q

Extract ALL possible values for:
%s

Date fields use ISO format (YYYY-MM-DD); users may write "1/7/2025", "July 1"
or "01-07-2025" - assume DD/MM/YYYY when slashes or dashes are used.
Time fields use 24-hour HH:MM:SS format.

Return JSON with the extracted values. Use null for missing fields.`, renderTurns(turns), input, renderSchema(schema))

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(cleanFences(raw)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrExtractionParse, err)
	}

	allowed := make(map[string]struct{}, len(schema))
	for _, f := range schema {
		allowed[f] = struct{}{}
	}

	fields := make(map[string]string, len(parsed))
	for k, v := range parsed {
		if _, ok := allowed[k]; !ok {
			continue
		}
		s := stringify(v)
		if s == "" {
			continue
		}
		fields[k] = s
	}
	return fields, nil
}

// ExtractTimeRange pulls a start/end pair from range phrases. A single-bound
// phrase leaves the other bound empty.
func (c *Client) ExtractTimeRange(ctx context.Context, input string) (contractx.TimeRange, error) {
	prompt := fmt.Sprintf(`Extract time range information from the user input. Convert to 24-hour
HH:MM:SS format. Handle AM/PM and open-ended ranges.

Examples:
- "between 2pm and 5pm" -> {"start_time": "14:00:00", "end_time": "17:00:00"}
- "after 3:30 pm" -> {"start_time": "15:30:00", "end_time": null}
- "before noon" -> {"start_time": null, "end_time": "12:00:00"}

User Input: %q

Return JSON format: {"start_time": "HH:MM:SS", "end_time": "HH:MM:SS"}`, input)

	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return contractx.TimeRange{}, err
	}

	var parsed struct {
		Start *string `json:"start_time"`
		End   *string `json:"end_time"`
	}
	if err := json.Unmarshal([]byte(cleanFences(raw)), &parsed); err != nil {
		return contractx.TimeRange{}, fmt.Errorf("%w: %v", contractx.ErrExtractionParse, err)
	}

	var r contractx.TimeRange
	if parsed.Start != nil {
		r.Start = normalizeClock(*parsed.Start)
	}
	if parsed.End != nil {
		r.End = normalizeClock(*parsed.End)
	}
	return r, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		resp, err := c.api.Chat.Completions.New(callCtx, openaisdk.ChatCompletionNewParams{
			Messages: []openaisdk.ChatCompletionMessageParamUnion{
				openaisdk.UserMessage(prompt),
			},
			Model:       c.model,
			Temperature: openaisdk.Float(c.temperature),
		})
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("%w: empty completion", contractx.ErrExtractionParse)
			continue
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
	return "", fmt.Errorf("oracle call failed: %w", lastErr)
}

func renderTurns(turns []contractx.Turn) string {
	if len(turns) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", t.Role, t.Content)
	}
	return b.String()
}

func renderSchema(schema []string) string {
	var b strings.Builder
	for i, f := range schema {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s", f)
	}
	return b.String()
}

// cleanFences strips markdown code fences models wrap around JSON.
func cleanFences(s string) string {
	return strings.TrimSpace(fenceRE.ReplaceAllString(strings.TrimSpace(s), ""))
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// normalizeClock widens HH:MM to HH:MM:SS so comparisons against slot
// time-of-day strings line up.
func normalizeClock(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == len("15:04") {
		return s + ":00"
	}
	return s
}
