package synthesis

import (
	"fmt"
	"strings"

	"github.com/manualkit/regent/eligibility"
	"github.com/manualkit/regent/retrieval"
	"github.com/manualkit/regent/symbolic"
)

const promptHeader = `You are an adviser answering a question from official guidance manuals.

Rules:
- Use only the numbered context passages below.
- Cite a passage inline as [n] after each statement it supports.
- Never perform arithmetic and never compare amounts yourself. The verified
  findings below were computed exactly; state their outcomes as given.
- Keep any VAR_n placeholder exactly as written wherever you mention it.
- If the passages do not answer the question, say so plainly.`

// buildPrompt assembles the synthesis prompt. When a symbolization is
// present the passages and question are shown in token form, so the model
// words the answer without seeing raw magnitudes.
func (s *Synthesizer) buildPrompt(in Input, sources []string) string {
	texts := chunkTexts(in)
	texts = s.fitBudget(texts)

	var b strings.Builder
	b.WriteString(promptHeader)

	b.WriteString("\n\nContext passages:\n")
	if len(texts) == 0 {
		b.WriteString("(none retrieved)\n")
	}
	for i, text := range texts {
		n := citationIndex(sources, in.Chunks[i].SourceID)
		fmt.Fprintf(&b, "[%d] %s\n", n, text)
	}

	if findings := renderFindings(in, sources); findings != "" {
		b.WriteString("\nVerified findings:\n")
		b.WriteString(findings)
	}

	question := in.Question
	if in.Symbolic != nil && in.Symbolic.QuestionText != "" {
		question = in.Symbolic.QuestionText
	}
	fmt.Fprintf(&b, "\nQuestion: %s\n\nAnswer:", question)
	return b.String()
}

// chunkTexts returns the passage texts for the prompt, tokenized when a
// symbolization is present.
func chunkTexts(in Input) []string {
	texts := make([]string, len(in.Chunks))
	for i, c := range in.Chunks {
		texts[i] = c.Text
	}
	if in.Symbolic != nil {
		tokenizeChunks(texts, in.Symbolic.Variables)
	}
	return texts
}

// tokenizeChunks substitutes each context-sourced variable's surface text
// with its token. Variables were bound by scanning the chunks in this same
// order, so a single forward walk lands each token where it was extracted.
func tokenizeChunks(texts []string, vars []*symbolic.Variable) {
	ci, offset := 0, 0
	for _, v := range vars {
		if v.Source != symbolic.SourceContext {
			continue
		}
		for ci < len(texts) {
			idx := strings.Index(texts[ci][offset:], v.Surface)
			if idx < 0 {
				ci++
				offset = 0
				continue
			}
			at := offset + idx
			texts[ci] = texts[ci][:at] + v.Token + texts[ci][at+len(v.Surface):]
			offset = at + len(v.Token)
			break
		}
	}
}

// fitBudget drops passages from the end until the token budget is met. The
// first passage always survives.
func (s *Synthesizer) fitBudget(texts []string) []string {
	budget := s.config.TokenBudget
	if budget <= 0 || len(texts) == 0 {
		return texts
	}
	total := 0
	for i, text := range texts {
		total += s.countTokens(text)
		if total > budget && i > 0 {
			return texts[:i]
		}
	}
	return texts
}

func (s *Synthesizer) countTokens(text string) int {
	if s.tokenizer != nil {
		return s.tokenizer.CountTokens(text)
	}
	return estimateTokens(text)
}

// estimateTokens approximates a token count at four bytes per token, used
// when no tokenizer is configured.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// renderFindings lists the exact results the model must repeat rather than
// recompute: symbolic comparisons in token form and per-criterion tree
// outcomes.
func renderFindings(in Input, sources []string) string {
	var b strings.Builder
	if in.Symbolic != nil {
		for _, c := range in.Symbolic.Comparisons {
			fmt.Fprintf(&b, "- %s\n", c.String())
		}
	}
	if in.Evaluation != nil {
		fmt.Fprintf(&b, "- overall eligibility for %s: %s\n", in.Evaluation.Topic, in.Evaluation.Overall)
		for _, cs := range in.Evaluation.Criteria {
			if n := citationIndex(sources, cs.Citation); n > 0 {
				fmt.Fprintf(&b, "- %s: %s (%s) [%d]\n", cs.Criterion, cs.Status, cs.Explanation, n)
			} else {
				fmt.Fprintf(&b, "- %s: %s (%s)\n", cs.Criterion, cs.Status, cs.Explanation)
			}
		}
	}
	return b.String()
}

// templateAnswer builds the degraded fallback from retrieved text and tree
// results alone.
func templateAnswer(in Input, sources []string, maxChunks int) string {
	var b strings.Builder

	if in.Evaluation != nil {
		writeEvaluationSummary(&b, in.Evaluation, sources)
	}

	if len(in.Chunks) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("The most relevant guidance found:")
		for i, c := range in.Chunks {
			if maxChunks > 0 && i >= maxChunks {
				break
			}
			fmt.Fprintf(&b, "\n- %s [%d]", excerpt(c), citationIndex(sources, c.SourceID))
		}
	}

	if b.Len() == 0 {
		return "No relevant guidance was found to answer this question. Try rephrasing it or naming the topic."
	}
	return b.String()
}

func writeEvaluationSummary(b *strings.Builder, ev *eligibility.Evaluation, sources []string) {
	fmt.Fprintf(b, "Eligibility result for %s: %s.", ev.Topic, ev.Overall)
	for _, cs := range ev.Criteria {
		if n := citationIndex(sources, cs.Citation); n > 0 {
			fmt.Fprintf(b, "\n- %s [%d]", cs.Explanation, n)
		} else {
			fmt.Fprintf(b, "\n- %s", cs.Explanation)
		}
	}
	for _, rec := range ev.Recommendations {
		fmt.Fprintf(b, "\n- %s", rec)
	}
}

// excerpt truncates a chunk for the templated answer.
func excerpt(c retrieval.Chunk) string {
	const limit = 240
	text := strings.TrimSpace(c.Text)
	if len(text) <= limit {
		return text
	}
	cut := strings.LastIndexByte(text[:limit], ' ')
	if cut <= 0 {
		cut = limit
	}
	return text[:cut] + "..."
}
