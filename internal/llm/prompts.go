package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/knowledge-graph-libsql-go/internal/apptype"
)

const (
	answerSystem = `You are a helpful assistant answering questions based on a personal knowledge graph.
Use only the provided context. Be concise.`

	schemaSystem = `You are a knowledge graph schema designer. Given examples of entities,
suggest a concise type name and brief description. Respond in JSON format:
{"name": "type_name", "description": "brief description"}`

	// AnswerMaxTokens and AnswerTemperature are the sampling parameters for
	// query answers.
	AnswerMaxTokens   = 300
	AnswerTemperature = 0.5

	maxContextNodes = 10
	maxContextEdges = 5
	maxNodeContent  = 200
)

// EdgeContext is an edge with its endpoints resolved to display names.
type EdgeContext struct {
	SourceName   string
	RelationType string
	TargetName   string
}

// BuildAnswerPrompt renders the generation context for query over the first
// ten nodes and first five edges.
func BuildAnswerPrompt(query string, nodes []apptype.Node, edges []EdgeContext) string {
	lines := make([]string, 0, maxContextNodes+maxContextEdges+1)
	for i, n := range nodes {
		if i == maxContextNodes {
			break
		}
		typ := string(n.EntityType)
		if typ == "" {
			typ = string(apptype.TypeNote)
		}
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", typ, n.Name, truncateRunes(n.Content, maxNodeContent)))
	}
	if len(edges) > 0 {
		lines = append(lines, "\nRelationships:")
		for i, e := range edges {
			if i == maxContextEdges {
				break
			}
			rel := e.RelationType
			if rel == "" {
				rel = "related_to"
			}
			lines = append(lines, fmt.Sprintf("- %s --[%s]--> %s", orUnknown(e.SourceName), rel, orUnknown(e.TargetName)))
		}
	}
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", strings.Join(lines, "\n"), query)
}

// Answer generates a response for query over the assembled context.
func Answer(ctx context.Context, g Generator, query string, nodes []apptype.Node, edges []EdgeContext) (string, error) {
	return g.Generate(ctx, BuildAnswerPrompt(query, nodes, edges), answerSystem, AnswerMaxTokens, AnswerTemperature)
}

// TypeSuggestion is a proposed schema type.
type TypeSuggestion struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SuggestSchemaType asks g to name a type for examples. Unparseable output,
// or a nil or failing generator, falls back to "concept".
func SuggestSchemaType(ctx context.Context, g Generator, examples, existing []string) TypeSuggestion {
	if len(examples) > 10 {
		examples = examples[:10]
	}
	if g == nil {
		return TypeSuggestion{Name: "concept"}
	}
	prompt := fmt.Sprintf("Examples: %s\nExisting types: %s\nSuggest a type:",
		strings.Join(examples, ", "), strings.Join(existing, ", "))
	resp, err := g.Generate(ctx, prompt, schemaSystem, 100, 0.3)
	if err != nil {
		return TypeSuggestion{Name: "concept"}
	}
	var s TypeSuggestion
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp)), &s); err != nil {
		return TypeSuggestion{Name: "concept", Description: truncateRunes(resp, 100)}
	}
	if s.Name == "" {
		s.Name = "concept"
	}
	return s
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}
