package marker

import "strings"

// BuildConfirmation renders the post-reply confirmation message for
// task-affecting markers (§4.1 step 13): a short summary of what actually
// happened in the database, sent after the main reply as an
// anti-hallucination check. Per §4.3, a batch containing both task creations
// and cancellations/updates omits the cancellations/updates — they
// represent an implicit replacement the create already describes. Markers
// that failed to parse or dispatch are never included.
func BuildConfirmation(results []Result) string {
	var creates, mutations []Result
	for _, r := range results {
		if !isTaskMarker(r.Marker) || !r.OK() {
			continue
		}
		if r.Marker == Schedule || r.Marker == ScheduleAction {
			creates = append(creates, r)
		} else {
			mutations = append(mutations, r)
		}
	}
	if len(creates) == 0 && len(mutations) == 0 {
		return ""
	}

	var lines []string
	if len(creates) > 0 {
		for _, r := range creates {
			lines = append(lines, r.Message)
			if r.Warning != "" {
				lines = append(lines, "note: "+r.Warning)
			}
		}
	} else {
		for _, r := range mutations {
			lines = append(lines, r.Message)
		}
	}
	return strings.Join(lines, "\n")
}

func isTaskMarker(n Name) bool {
	return n == Schedule || n == ScheduleAction || n == CancelTask || n == UpdateTask
}

// ExtractQRPayload returns the pairing payload from the first successful
// WHATSAPP_QR result in results, if any. A QR payload is not a task outcome
// so it is never folded into BuildConfirmation's text; callers deliver it as
// its own follow-up message.
func ExtractQRPayload(results []Result) (string, bool) {
	for _, r := range results {
		if r.Marker == WhatsAppQR && r.OK() {
			return r.Message, true
		}
	}
	return "", false
}
