package teacher

import (
	"fmt"
	"strings"

	"github.com/fitsenseai/distill/internal/config"
	"github.com/fitsenseai/distill/internal/query"
)

// safetyTokens are substrings whose presence indicates the response engages
// with safety or load control at all.
var safetyTokens = []string{"safe", "safety", "injur", "contraind", "rir"}

// Safety flag names emitted by ScanSafety. All current flags are blocking.
const (
	FlagOverexertion    = "potential_overexertion_language"
	FlagPainInstruction = "unsafe_pain_instruction"
)

// PostValidate runs the structural/content acceptance checks for a
// candidate response. Checks depend on the prompt type: safety_adjustment
// responses must actually talk about safety.
func PostValidate(text, promptType string, acc config.Acceptance) PostValidation {
	trimmed := strings.TrimSpace(text)
	v := PostValidation{
		HasContent:     trimmed != "",
		MentionsSafety: mentionsSafety(trimmed),
	}

	var reasons []string
	if !v.HasContent {
		reasons = append(reasons, "response is empty")
	}
	if acc.MinResponseLen > 0 && len(trimmed) < acc.MinResponseLen {
		reasons = append(reasons, fmt.Sprintf("response length %d below min %d", len(trimmed), acc.MinResponseLen))
	}
	if acc.MaxResponseLen > 0 && len(trimmed) > acc.MaxResponseLen {
		reasons = append(reasons, fmt.Sprintf("response length %d above max %d", len(trimmed), acc.MaxResponseLen))
	}
	if promptType == query.PromptSafetyAdjustment && !v.MentionsSafety {
		reasons = append(reasons, "safety_adjustment response does not mention safety or load control")
	}

	v.Reasons = reasons
	v.IsValid = len(reasons) == 0
	return v
}

func mentionsSafety(text string) bool {
	lowered := strings.ToLower(text)
	for _, token := range safetyTokens {
		if strings.Contains(lowered, token) {
			return true
		}
	}
	return false
}

// ScanSafety applies the rule-based scan for known unsafe language
// patterns. Every returned flag blocks acceptance.
func ScanSafety(text string) []string {
	var flags []string
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "max out") || strings.Contains(lowered, "to failure every set") {
		flags = append(flags, FlagOverexertion)
	}
	if strings.Contains(lowered, "ignore pain") {
		flags = append(flags, FlagPainInstruction)
	}
	return flags
}
