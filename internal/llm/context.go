package llm

import "context"

type purposeKey struct{}

// Purposes recorded with LLM request events.
const (
	PurposeFeedback = "study-feedback"
	PurposeProbe    = "probe"
)

// WithPurpose labels LLM calls made with ctx.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey{}, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unknown".
func PurposeFrom(ctx context.Context) string {
	if v, ok := ctx.Value(purposeKey{}).(string); ok && v != "" {
		return v
	}
	return "unknown"
}
