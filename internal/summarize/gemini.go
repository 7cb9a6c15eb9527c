// Package summarize condenses a finished session transcript into a
// short summary and topic using Gemini. The summarizer is optional:
// when disabled, sessions simply close without a summary.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const promptTemplate = `Summarize this tutoring session transcript.
Reply with exactly two lines:
Topic: <the main subject discussed, a few words>
Summary: <two or three sentences on what was covered and how the student did>

Transcript:
%s`

// Summarizer generates session summaries with a Gemini model.
type Summarizer struct {
	client *genai.Client
	model  string
}

// New creates a summarizer. Returns an error when the client cannot be
// constructed; callers treat a nil summarizer as "disabled".
func New(ctx context.Context, apiKey, model string) (*Summarizer, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Summarizer{client: client, model: model}, nil
}

// Summarize returns a topic and summary for the transcript.
func (s *Summarizer) Summarize(ctx context.Context, transcript string) (topic, summary string, err error) {
	if strings.TrimSpace(transcript) == "" {
		return "", "", fmt.Errorf("empty transcript")
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model,
		genai.Text(fmt.Sprintf(promptTemplate, transcript)), nil)
	if err != nil {
		return "", "", fmt.Errorf("generate summary: %w", err)
	}

	topic, summary = parseReply(resp.Text())
	if summary == "" {
		return "", "", fmt.Errorf("model returned no summary")
	}
	return topic, summary, nil
}

// parseReply extracts the Topic/Summary lines, tolerating extra prose
// around them.
func parseReply(text string) (topic, summary string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Topic:"):
			topic = strings.TrimSpace(strings.TrimPrefix(line, "Topic:"))
		case strings.HasPrefix(line, "Summary:"):
			summary = strings.TrimSpace(strings.TrimPrefix(line, "Summary:"))
		case summary != "" && line != "":
			// Continuation of a multi-line summary.
			summary += " " + line
		}
	}
	if summary == "" {
		summary = strings.TrimSpace(text)
	}
	return topic, summary
}
