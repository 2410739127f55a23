package appeal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/domain/denial"
)

const (
	// BaseConfidence is reported for letters built from a template alone.
	BaseConfidence = 70
	// EnhancedConfidence is reported whenever the model rewrote the letter.
	EnhancedConfidence = 85
)

// TextGenerator is a chat-style text model. *llm.OpenAIGenerator satisfies it.
type TextGenerator interface {
	Configured() bool
	Generate(ctx context.Context, system, user string) (string, error)
}

type Enhancement struct {
	Letter     string
	Enhanced   bool
	Confidence int
}

// AIEnhancer rewrites a rendered letter around the clinical justification.
// It never fails: any problem yields the original letter at BaseConfidence.
type AIEnhancer struct {
	gen     TextGenerator
	timeout time.Duration
	logger  zerolog.Logger
}

func NewAIEnhancer(gen TextGenerator, timeout time.Duration, logger zerolog.Logger) *AIEnhancer {
	return &AIEnhancer{gen: gen, timeout: timeout, logger: logger.With().Str("component", "ai_enhancer").Logger()}
}

const enhanceSystemPrompt = `You are a medical billing specialist who writes insurance appeal letters.
Rewrite the letter you are given so it argues persuasively for overturning the denial, using the clinical justification provided.
Keep a professional tone and keep every factual detail (names, dates, codes, amounts) unchanged.
Any text in square brackets such as [MEMBER ID] is a placeholder for the author: keep it exactly as written.
Return only the letter text.`

func (e *AIEnhancer) Enhance(ctx context.Context, d *denial.Denial, letter, justification string) Enhancement {
	none := Enhancement{Letter: letter, Confidence: BaseConfidence}
	if e == nil || e.gen == nil || !e.gen.Configured() || strings.TrimSpace(justification) == "" {
		return none
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.gen.Generate(ctx, enhanceSystemPrompt, buildEnhancePrompt(d, letter, justification))
	if err != nil {
		e.logger.Warn().Err(err).Str("denial_id", d.ID.String()).Msg("ai enhancement failed, using template letter")
		return none
	}
	out = strings.TrimSpace(out)
	if out == "" {
		e.logger.Warn().Str("denial_id", d.ID.String()).Msg("ai enhancement returned no text, using template letter")
		return none
	}
	return Enhancement{Letter: out, Enhanced: true, Confidence: EnhancedConfidence}
}

func buildEnhancePrompt(d *denial.Denial, letter, justification string) string {
	var b strings.Builder
	b.WriteString("Denial details:\n")
	fmt.Fprintf(&b, "- Reason code: %s\n", d.ReasonCode)
	fmt.Fprintf(&b, "- Reason description: %s\n", strOr(d.ReasonDescription, "not provided"))
	fmt.Fprintf(&b, "- Procedure code (CPT): %s\n", strOr(d.ProcedureCode, "not provided"))
	diag := "not provided"
	if len(d.DiagnosisCodes) > 0 {
		diag = strings.Join(d.DiagnosisCodes, ", ")
	}
	fmt.Fprintf(&b, "- Diagnosis codes (ICD-10): %s\n", diag)
	fmt.Fprintf(&b, "- Denied amount: %s\n", money(d.DeniedAmount))
	fmt.Fprintf(&b, "- Category: %s\n\n", d.ClassifiedCategory)
	b.WriteString("Clinical justification:\n")
	b.WriteString(justification)
	b.WriteString("\n\nCurrent letter:\n")
	b.WriteString(letter)
	return b.String()
}
