package loop

import "fmt"

// continuationTemplateLimited and continuationTemplateUnlimited are the
// two prefixes prepended to a re-engage prompt (spec §4.8 step 6). The
// "<message>" substring is literal instructional text shown to the model
// verbatim, not a template substitution; the %s (fallback, prompt) and
// %d (fuel remaining, fuel total) verbs are the actual substitutions.
const (
	continuationTemplateLimited   = "[reengaged via %s, %d/%d fuel remaining. call_user(<message>) to end turn.]\n%s"
	continuationTemplateUnlimited = "[reengaged via %s. call_user(<message>) to end turn.]\n%s"
)

// continuationPrompt builds the synthetic user prompt a re-engage queues
// for the next iteration. unlimited mode omits fuel numbers from the
// prefix entirely.
func continuationPrompt(fallback string, fuel, fuelTotal int, unlimited bool, prompt string) string {
	if unlimited {
		return fmt.Sprintf(continuationTemplateUnlimited, fallback, prompt)
	}
	return fmt.Sprintf(continuationTemplateLimited, fallback, fuel, fuelTotal, prompt)
}
