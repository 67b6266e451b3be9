package core

import (
	"context"
	"errors"
	"strings"
)

// ErrAgentsUnavailable is returned by a Generator whose backing model is not
// configured. Callers must recover with deterministic defaults; enrichment is
// best-effort and never blocks persistence.
var ErrAgentsUnavailable = errors.New("agent system unavailable")

// Agent is a named persona: a fixed system instruction bound to the chat
// model. Coordination between agents is plain prompt composition.
type Agent struct {
	Name        string
	Instruction string
}

var (
	DocumentProcessor = Agent{
		Name: "DocumentProcessor",
		Instruction: "You are a document analysis expert. Extract titles, summaries, key concepts, " +
			"and suggest relevant tags. Provide structured responses.",
	}
	SearchAgent = Agent{
		Name: "SearchAgent",
		Instruction: "You are a search specialist. Help find relevant information and provide " +
			"context-aware search results.",
	}
	ConversationAgent = Agent{
		Name: "ConversationAgent",
		Instruction: "You are a helpful AI assistant for KnowledgeVault. Answer questions using the " +
			"provided knowledge base context. Be conversational and cite sources when relevant.",
	}
	SummarizationAgent = Agent{
		Name: "SummarizationAgent",
		Instruction: "You are a content summarization expert. Create concise, accurate summaries " +
			"and extract key insights.",
	}
)

// Generator is the single seam to the external generation capability.
type Generator interface {
	// Generate runs one synchronous prompt against the agent's persona.
	Generate(ctx context.Context, agent Agent, prompt string) (string, error)
	// Available reports whether the capability is configured at all.
	Available() bool
}

// extractField returns the text following the first occurrence of label up to
// the next line break, trimmed. Empty when the label is absent. Model output
// is unstructured text; this substring protocol is a known weak point, kept
// narrow here so it can be replaced with schema-constrained generation later.
func extractField(response, label string) string {
	_, after, found := strings.Cut(response, label)
	if !found {
		return ""
	}
	line, _, _ := strings.Cut(after, "\n")
	return strings.TrimSpace(line)
}

// DocumentAnalysis holds the enrichment hints for one ingested document.
type DocumentAnalysis struct {
	Title   string
	Summary string
	Tags    []string
}

// Deterministic fallbacks when enrichment fails or omits a field.
const (
	fallbackUploadSummary    = "File uploaded successfully"
	fallbackProcessedSummary = "File processed by AI agent"
)

var fallbackTags = []string{"uploaded"}

// fallbackAnalysis is the analysis used when the generation call itself fails.
func fallbackAnalysis(fallbackTitle string) DocumentAnalysis {
	return DocumentAnalysis{
		Title:   fallbackTitle,
		Summary: fallbackUploadSummary,
		Tags:    append([]string(nil), fallbackTags...),
	}
}

// parseDocumentAnalysis extracts Title/Summary/Tags labels from raw model
// output, substituting per-field defaults for anything missing.
func parseDocumentAnalysis(response, fallbackTitle string) DocumentAnalysis {
	analysis := DocumentAnalysis{
		Title:   fallbackTitle,
		Summary: fallbackProcessedSummary,
		Tags:    append([]string(nil), fallbackTags...),
	}

	if title := extractField(response, "Title:"); title != "" {
		analysis.Title = title
	}
	if summary := extractField(response, "Summary:"); summary != "" {
		analysis.Summary = summary
	}
	if tagsLine := extractField(response, "Tags:"); tagsLine != "" {
		var tags []string
		for _, tag := range strings.Split(tagsLine, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			analysis.Tags = tags
		}
	}
	return analysis
}
