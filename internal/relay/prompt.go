package relay

import (
	"fmt"
	"strings"

	"github.com/tjfontaine/scene-gateway/internal/directive"
	"github.com/tjfontaine/scene-gateway/internal/domain"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a retail store layout assistant. Answer the user's question in plain prose and, " +
	"when a visual would help, describe the store as a scene."

// protocol explains the block format to the model.
func protocol(start, end string, labels *directive.Labels) string {
	var b strings.Builder
	fmt.Fprintf(&b, "To show a scene, append exactly one block after your answer, opened with %s on its own line and closed with %s.\n", start, end)
	b.WriteString("The block holds one JSON object with camelCase fields:\n")
	b.WriteString(`- "vizState" (required): overview, entry, exploration, purchase or topdown` + "\n")
	b.WriteString(`- "zones": up to 10 of {"id","label","x","z","w","d","color","type"}; x and z in [-10,10], w and d in [2,15]` + "\n")
	b.WriteString(`- "highlights", "changedZones", "focusZone" and "annotations[].zoneId" refer to zone ids` + "\n")
	b.WriteString(`- optional: "annotations" (up to 3), "kpis" (up to 4), "stage", "storeParams", "zoneScale", "cameraAngle", "updateMode", "compare"` + "\n")
	if labels != nil {
		fmt.Fprintf(&b, "Write zone labels in %s. ", labels.Language)
	}
	b.WriteString("Never emit more than one block.")
	return b.String()
}

// buildPrompt assembles the upstream message list for one turn.
func buildPrompt(system, start, end string, labels *directive.Labels, known []string, history []domain.ChatMessage, message string) []domain.ChatMessage {
	if system == "" {
		system = DefaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\n")
	b.WriteString(protocol(start, end, labels))
	if len(known) > 0 {
		fmt.Fprintf(&b, "\n\nThe client currently shows zones with ids: %s. Reuse these ids for the same areas.", strings.Join(known, ", "))
	}

	msgs := make([]domain.ChatMessage, 0, len(history)+2)
	msgs = append(msgs, domain.NewTextMessage(domain.RoleSystem, b.String()))
	for _, m := range history {
		// A client-supplied system message would override the block protocol.
		if m.Role == domain.RoleSystem {
			continue
		}
		msgs = append(msgs, m)
	}
	return append(msgs, domain.NewTextMessage(domain.RoleUser, message))
}
