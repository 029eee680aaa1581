package context

import qmodels "github.com/haasonsaas/quill/pkg/models"

// SummaryMetadataKey marks synthetic summary messages in metadata.
const SummaryMetadataKey = "quill_summary"

// IsSummaryMessage reports whether a message is a synthetic summary produced
// by the summarizer.
func IsSummaryMessage(m *qmodels.ContextMessage) bool {
	if m.Metadata == nil {
		return false
	}
	flag, ok := m.Metadata[SummaryMetadataKey]
	if !ok {
		return false
	}
	b, ok := flag.(bool)
	return ok && b && m.ParentID != ""
}

// EffectiveHistory filters the message sequence down to what is actually sent
// to the provider: messages whose condense id has a matching summary in the
// same sequence are excluded; the summary itself is included. Originals stay
// in the full sequence for UI display.
func EffectiveHistory(messages []qmodels.ContextMessage) []qmodels.ContextMessage {
	condensed := make(map[string]bool)
	for i := range messages {
		if IsSummaryMessage(&messages[i]) {
			condensed[messages[i].ParentID] = true
		}
	}
	if len(condensed) == 0 {
		return messages
	}

	out := make([]qmodels.ContextMessage, 0, len(messages))
	for i := range messages {
		if messages[i].CondenseID != "" && condensed[messages[i].CondenseID] {
			continue
		}
		out = append(out, messages[i])
	}
	return out
}
