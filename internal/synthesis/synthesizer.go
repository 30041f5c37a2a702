package synthesis

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"medrag/internal/domain"
	"medrag/internal/telemetry"
)

const (
	DefaultMaxTokens   int32   = 150
	DefaultTemperature float32 = 0.3
	DefaultTimeout             = 30 * time.Second
	DefaultMaxContexts         = 5

	// RawContextBudget is the character budget of a raw-context fallback.
	RawContextBudget = 400

	// FallbackNotice prefixes every raw-context fallback answer.
	FallbackNotice = "Generation filtered, showing raw context:"
)

const systemInstruction = "You are an educational assistant for healthcare students. " +
	"Summarize the factual information from the provided contexts. " +
	"Do not give medical advice; just restate known facts clearly."

// Request is what the synthesizer asks of a generation capability.
type Request struct {
	Prompt      string
	MaxTokens   int32
	Temperature float32
}

// Result is the tagged outcome of a generation call. OK is false when the
// capability answered but produced no usable text; Reason says why.
type Result struct {
	OK     bool
	Text   string
	Reason string
}

type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}

type Options struct {
	MaxTokens   int32
	Temperature float32
	Timeout     time.Duration
	MaxContexts int
	Topics      []Topic
}

// Synthesizer turns retrieved contexts into an answer. It never fails: any
// generation problem is absorbed into the local fallback.
type Synthesizer struct {
	gen  Generator
	opts Options
}

// New returns a Synthesizer. A nil gen makes every answer a fallback.
func New(gen Generator, opts Options) *Synthesizer {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = DefaultTemperature
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxContexts <= 0 {
		opts.MaxContexts = DefaultMaxContexts
	}
	if opts.Topics == nil {
		opts.Topics = DefaultTopics()
	}
	return &Synthesizer{gen: gen, opts: opts}
}

func (s *Synthesizer) Synthesize(ctx context.Context, contexts []string, question string) (string, domain.AnswerMode) {
	text, err := s.generate(ctx, contexts, question)
	if err == nil {
		return text, domain.AnswerModeGenerated
	}

	slog.WarnContext(ctx, "generation unavailable, using fallback", "error", err)
	telemetry.CaptureError(ctx, err)
	answer, mode := s.Fallback(contexts, question)
	telemetry.AddBreadcrumb(ctx, "synthesis", "fallback answer: "+string(mode))
	return answer, mode
}

func (s *Synthesizer) generate(ctx context.Context, contexts []string, question string) (string, error) {
	if s.gen == nil {
		return "", domain.GenerationUnavailable("no generator configured", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	res, err := s.gen.Generate(ctx, Request{
		Prompt:      BuildPrompt(contexts, question, s.opts.MaxContexts),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return "", domain.GenerationUnavailable("generation call failed", err)
	}
	text := strings.TrimSpace(res.Text)
	if !res.OK || text == "" {
		reason := res.Reason
		if reason == "" {
			reason = "empty output"
		}
		return "", domain.GenerationUnavailable("generation refused: "+reason, nil)
	}

	slog.DebugContext(ctx, "answer generated", "duration", time.Since(start), "answer_len", len(text))
	return text, nil
}

// Fallback answers without the generation capability: a matching topic's
// fixed statement, or the truncated contexts behind FallbackNotice.
func (s *Synthesizer) Fallback(contexts []string, question string) (string, domain.AnswerMode) {
	if t, ok := MatchTopic(s.opts.Topics, question); ok {
		return t.Answer, domain.AnswerModeFixed
	}
	summary := Shorten(strings.Join(contexts, " "), RawContextBudget, "...")
	return FallbackNotice + "\n\n" + summary, domain.AnswerModeRawContext
}

// BuildPrompt renders the instruction, at most maxContexts contexts and the question.
func BuildPrompt(contexts []string, question string, maxContexts int) string {
	if maxContexts > 0 && len(contexts) > maxContexts {
		contexts = contexts[:maxContexts]
	}
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\nCONTEXTS:\n")
	sb.WriteString(strings.Join(contexts, "\n\n"))
	sb.WriteString("\n\nQUESTION: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

// Shorten collapses whitespace and, if the result exceeds width runes, drops
// whole trailing words until it fits together with placeholder. A first word
// that alone exceeds the budget is cut mid-word.
func Shorten(s string, width int, placeholder string) string {
	words := strings.Fields(s)
	joined := strings.Join(words, " ")
	if len([]rune(joined)) <= width {
		return joined
	}

	budget := max(width-len([]rune(placeholder)), 0)
	var sb strings.Builder
	n := 0
	for _, w := range words {
		wl := len([]rune(w))
		if n > 0 {
			wl++
		}
		if n+wl > budget {
			if n == 0 {
				// a single word wider than the budget is cut, not dropped
				sb.WriteString(string([]rune(w)[:budget]))
			}
			break
		}
		if n > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w)
		n += wl
	}
	return sb.String() + placeholder
}
