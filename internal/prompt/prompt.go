// Package prompt renders the Llama-3 chat template expected by the
// generation backend.
package prompt

import (
	"fmt"
	"strings"
)

const (
	BeginOfText = "<|begin_of_text|>"
	StartHeader = "<|start_header_id|>"
	EndHeader   = "<|end_header_id|>"
	EndOfTurn   = "<|eot_id|>"
)

var delimiters = []string{BeginOfText, StartHeader, EndHeader, EndOfTurn}

var stripper = strings.NewReplacer(
	BeginOfText, "",
	StartHeader, "",
	EndHeader, "",
	EndOfTurn, "",
)

// Build renders a system + user exchange and leaves the assistant header
// open for the model to continue. Delimiter tokens inside userText are
// removed so the user cannot open or close turns.
func Build(systemInstruction, userText string) string {
	var sb strings.Builder
	sb.WriteString(BeginOfText)
	writeTurn(&sb, "system", systemInstruction)
	writeTurn(&sb, "user", Sanitize(userText))
	writeHeader(&sb, "assistant")
	return sb.String()
}

// Sanitize strips delimiter tokens until none remain; a single pass is not
// enough because removing one token can splice a new one together.
func Sanitize(s string) string {
	for containsDelimiter(s) {
		s = stripper.Replace(s)
	}
	return s
}

func containsDelimiter(s string) bool {
	for _, d := range delimiters {
		if strings.Contains(s, d) {
			return true
		}
	}
	return false
}

func writeTurn(sb *strings.Builder, role, content string) {
	writeHeader(sb, role)
	sb.WriteString(content)
	sb.WriteString(EndOfTurn)
}

func writeHeader(sb *strings.Builder, role string) {
	sb.WriteString(StartHeader)
	sb.WriteString(role)
	sb.WriteString(EndHeader)
	sb.WriteString("\n\n")
}

const DefaultSystemPrompt = `You are a helpful voice assistant. Answer briefly, your reply is read aloud.

When a question needs one of the tools below, reply with ONLY a JSON object and nothing else:
{"function": "<tool name>", "arguments": {<named arguments>}}

Otherwise reply in plain conversational text. Never wrap plain replies in JSON.`

var toolDocs = map[string]string{
	"calculate":    `calculate(expression: string) - evaluate an arithmetic expression, e.g. {"function": "calculate", "arguments": {"expression": "5+3*2"}}`,
	"search_arxiv": `search_arxiv(query: string, max_results?: int) - find recent arXiv papers, e.g. {"function": "search_arxiv", "arguments": {"query": "quantum entanglement"}}`,
}

// SystemPrompt appends a tool list to base. Tools without a known
// description are listed by name only.
func SystemPrompt(base string, tools []string) string {
	if len(tools) == 0 {
		return base
	}
	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\nTOOLS:\n")
	for _, name := range tools {
		doc, ok := toolDocs[name]
		if !ok {
			doc = name
		}
		fmt.Fprintf(&sb, "- %s\n", doc)
	}
	return strings.TrimRight(sb.String(), "\n")
}
