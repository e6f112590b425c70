package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNoIdentifiers is returned when a model reply carries no identifier list
var ErrNoIdentifiers = errors.New("model reply has no identifier list")

// Provider produces exclusion candidates for source files
type Provider interface {
	// Name returns the provider name
	Name() string

	// Predict asks the model which identifiers of one source file are safe to remove
	Predict(ctx context.Context, req PredictRequest) (*PredictResponse, error)

	// IsAvailable checks if the provider is properly configured and reachable
	IsAvailable(ctx context.Context) bool
}

// PredictRequest is one source file to predict candidates for
type PredictRequest struct {
	// File is the path reported to the model, relative to the project root
	File string

	// Source is the file content
	Source string

	// Prompt overrides the default prompt when non-empty
	Prompt string

	// Model overrides the configured model when non-empty
	Model string

	MaxTokens int
}

// PredictResponse holds the parsed model reply
type PredictResponse struct {
	// Identifiers are the predicted candidates, de-duplicated in reply order
	Identifiers []string

	Model      string
	TokensUsed int

	// Truncated is set when the source was cut to fit MaxSourceBytes
	Truncated bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", "" (disabled)
	Provider string

	Model   string
	APIKey  string
	BaseURL string // custom OpenAI-compatible endpoint

	Timeout   time.Duration // per request
	MaxTokens int

	// MaxSourceBytes bounds the source text sent per request
	MaxSourceBytes int

	// Requests per second per endpoint host, 0 = unlimited
	RequestsPerSecond float64
	Burst             int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:          "", // disabled
		Timeout:           60 * time.Second,
		MaxTokens:         2000,
		MaxSourceBytes:    48_000,
		RequestsPerSecond: 1,
		Burst:             2,
	}
}

const systemPrompt = "You review Swift source files and list declarations that look unused. " +
	"Answer with a JSON object only."

// BuildPrompt constructs the default prediction prompt. The source is cut
// at maxBytes (on a line boundary when possible); the second result reports
// whether that happened.
func BuildPrompt(file, source string, maxBytes int) (string, bool) {
	truncated := false
	if maxBytes > 0 && len(source) > maxBytes {
		cut := source[:maxBytes]
		if i := strings.LastIndexByte(cut, '\n'); i > 0 {
			cut = cut[:i+1]
		}
		source = cut
		truncated = true
	}

	var b strings.Builder
	fmt.Fprintf(&b, "File: %s\n\n", file)
	b.WriteString(`List the identifiers declared in this file that are safe to remove or rename
because nothing references them.

Rules:
1. Only list names of declarations (methods, properties, types, enum cases) that appear in the file.
2. Do not list symbols that override, implement a protocol, or are exposed to Objective-C or
   Interface Builder, unless you are certain they are unused.
3. Reply with exactly: {"identifiers": ["name1", "name2"]}
4. Reply {"identifiers": []} if nothing qualifies.
`)
	if truncated {
		b.WriteString("\nThe source below is truncated.\n")
	}
	b.WriteString("\n```swift\n")
	b.WriteString(source)
	if !strings.HasSuffix(source, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("```\n")
	return b.String(), truncated
}

// ParseIdentifiers extracts the identifier list from a model reply. The
// reply may wrap the JSON object in prose or a code fence.
func ParseIdentifiers(content string) ([]string, error) {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return nil, ErrNoIdentifiers
	}

	var reply struct {
		Identifiers *[]any `json:"identifiers"`
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(content[start : end+1])))
	if err := dec.Decode(&reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIdentifiers, err)
	}
	if reply.Identifiers == nil {
		return nil, ErrNoIdentifiers
	}

	seen := make(map[string]bool, len(*reply.Identifiers))
	ids := make([]string, 0, len(*reply.Identifiers))
	for _, item := range *reply.Identifiers {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		ids = append(ids, s)
	}
	return ids, nil
}
