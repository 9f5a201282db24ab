package feedback

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a supportive study coach. An examinee has just finished an adaptive quiz. Write brief, specific guidance on what to study next. Never mention scores of other people, ability estimates or item parameters.`

func buildUserMessage(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Items answered: %d\n", in.ItemCount)
	fmt.Fprintf(&b, "Overall score: %.0f%%\n", in.ScorePercent)

	b.WriteString("\nTopic results:\n")
	for _, t := range in.Topics {
		fmt.Fprintf(&b, "- %s: %d of %d correct\n", t.Topic, t.Correct, t.Total)
	}

	b.WriteString("\nWeak topics:\n")
	for _, w := range in.WeakTopics {
		fmt.Fprintf(&b, "- %s\n", w)
	}

	b.WriteString(`
Instructions:
1. Summarise how the quiz went in two or three sentences. Be encouraging and honest.
2. Give exactly one focus area per weak topic, using the topic name exactly as listed.
3. Each suggestion is a single sentence naming a concrete practice activity.`)
	return b.String()
}
