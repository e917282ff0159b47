package evidence

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"
)

// pairEvaluationSystemMessage primes the model to act as the content-signal
// scorer for one entity pair.
const pairEvaluationSystemMessage = `You analyze fictional-universe entities and estimate relationship evidence between a pair of them.
Respond with a single JSON object and nothing else:
{
  "signals": {
    "co_occurrence": <number of scenes/chapters the pair plausibly shares, 0-30>,
    "timeline_proximity": <how close their arcs sit on the timeline, 0-100>,
    "shared_location": <number of locations tying them together, 0-10>,
    "shared_faction": <number of factions/houses both belong to, 0-5>,
    "attribute_similarity": <fraction of matching structured attributes, 0.0-1.0>,
    "network_centrality": <combined prominence in the existing relationship graph, 0-50>
  },
  "suggested_type": "<relationship type such as ally, rival, mentor, family, or empty string>",
  "suggested_strength": <proposed strength 0-100, or null>,
  "reasoning": "<one or two sentences of justification>"
}
Omit a signal entirely if you cannot estimate it. Never invent entities that were not described.`

// BuildPairEvaluationPrompt renders the user prompt for one entity pair.
func BuildPairEvaluationPrompt(source, target EntityRef, saga SagaContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Saga: %s", saga.Title)
	if saga.Genre != "" {
		fmt.Fprintf(&b, " (%s)", saga.Genre)
	}
	b.WriteString("\n")

	if len(saga.EntityKindCounts) > 0 {
		kinds := make([]string, 0, len(saga.EntityKindCounts))
		for kind := range saga.EntityKindCounts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		parts := make([]string, 0, len(kinds))
		for _, kind := range kinds {
			count := saga.EntityKindCounts[kind]
			label := kind
			if count != 1 {
				label = inflection.Plural(kind)
			}
			parts = append(parts, fmt.Sprintf("%d %s", count, label))
		}
		fmt.Fprintf(&b, "Cast: %s\n", strings.Join(parts, ", "))
	}

	b.WriteString("\nEntity A:\n")
	writeEntity(&b, source)
	b.WriteString("\nEntity B:\n")
	writeEntity(&b, target)

	b.WriteString("\nEstimate the relationship evidence between Entity A and Entity B.")
	return b.String()
}

func writeEntity(b *strings.Builder, e EntityRef) {
	fmt.Fprintf(b, "  Name: %s\n", e.Name)
	if e.Kind != "" {
		fmt.Fprintf(b, "  Kind: %s\n", e.Kind)
	}
	if e.Description != "" {
		fmt.Fprintf(b, "  Description: %s\n", e.Description)
	}
}
