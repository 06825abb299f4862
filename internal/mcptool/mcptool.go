// Package mcptool exposes the suggestion engine as MCP tools over the
// streamable-HTTP transport of github.com/modelcontextprotocol/go-sdk.
//
// Two tools are registered:
//
//   - tamil_suggest: up to four validated Tamil renderings of a fragment.
//   - tamil_transliterate: the deterministic phonetic rendering only.
package mcptool

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/ezhuthu/internal/entitlement"
	"github.com/MrWong99/ezhuthu/internal/suggest"
)

// Tool names.
const (
	ToolSuggest       = "tamil_suggest"
	ToolTransliterate = "tamil_transliterate"
)

// AccountHeader carries the caller's account on the HTTP request that
// delivered the tool call.
const AccountHeader = "X-Account-ID"

// Resolver is the subset of *suggest.Orchestrator the tools need.
type Resolver interface {
	Resolve(ctx context.Context, req suggest.Request) ([]suggest.Candidate, error)
	Transliterate(text string) string
}

// SuggestInput is the tamil_suggest argument object.
type SuggestInput struct {
	Text    string `json:"text" jsonschema:"romanized Tamil or English text to write in Tamil script"`
	Context string `json:"context,omitempty" jsonschema:"text preceding the fragment, used only as a hint"`
	Mode    string `json:"mode,omitempty" jsonschema:"register: standard (default) or news"`
}

// SuggestOutput is the tamil_suggest structured result.
type SuggestOutput struct {
	Options []string `json:"options"`
}

// TransliterateInput is the tamil_transliterate argument object.
type TransliterateInput struct {
	Text string `json:"text" jsonschema:"romanized Tamil text"`
}

// TransliterateOutput is the tamil_transliterate structured result.
type TransliterateOutput struct {
	Text  string `json:"text"`
	Tamil string `json:"tamil"`
}

// NewServer returns an MCP server with both tools registered against r.
func NewServer(r Resolver, version string) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: "ezhuthu", Version: version}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolSuggest,
		Description: "Convert romanized Tamil or English into natural Tamil script. Returns up to four options, best first.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in SuggestInput) (*mcp.CallToolResult, SuggestOutput, error) {
		ctx = withAccount(ctx, req)
		cands, err := r.Resolve(ctx, suggest.Request{
			Text:    in.Text,
			Context: in.Context,
			Mode:    suggest.Mode(in.Mode),
		})
		if err != nil {
			if errors.Is(err, suggest.ErrInvalidInput) {
				return toolError(err), SuggestOutput{}, nil
			}
			return nil, SuggestOutput{}, err
		}
		out := SuggestOutput{Options: make([]string, 0, len(cands))}
		for _, c := range cands {
			out.Options = append(out.Options, c.Text)
		}
		return textResult(strings.Join(out.Options, "\n")), out, nil
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolTransliterate,
		Description: "Phonetically transliterate romanized Tamil into Tamil script without any language model.",
	}, func(_ context.Context, _ *mcp.CallToolRequest, in TransliterateInput) (*mcp.CallToolResult, TransliterateOutput, error) {
		if strings.TrimSpace(in.Text) == "" {
			return toolError(suggest.ErrEmptyInput), TransliterateOutput{}, nil
		}
		out := TransliterateOutput{Text: in.Text, Tamil: r.Transliterate(in.Text)}
		return textResult(out.Tamil), out, nil
	})

	return s
}

// Handler serves s over streamable HTTP.
func Handler(s *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s }, nil)
}

func withAccount(ctx context.Context, req *mcp.CallToolRequest) context.Context {
	if req == nil || req.Extra == nil || req.Extra.Header == nil {
		return ctx
	}
	return entitlement.WithAccount(ctx, req.Extra.Header.Get(AccountHeader))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
