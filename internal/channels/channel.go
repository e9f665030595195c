// Package channels defines the channel contract (§6.1) that every messaging
// platform adapter implements, plus a registry the gateway dispatcher and
// background loops use to look channels up by name for outbound delivery.
//
// Grounded on the teacher's internal/channels/channel.go Channel interface,
// narrowed from its streaming/reaction/DM-policy surface (this spec has no
// streaming output, §1 Non-goals) to the five-method contract §6.1 names.
package channels

import (
	"context"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
)

// Channel is the contract every messaging platform adapter implements.
type Channel interface {
	Name() string
	Start(ctx context.Context) (<-chan bus.IncomingMessage, error)
	Send(ctx context.Context, msg bus.OutgoingMessage) error
	SendTyping(ctx context.Context, target string) error
	Stop(ctx context.Context) error
}

// SplitMessage chunks text at maxLen bytes, preferring to break on a newline
// boundary so multi-paragraph replies don't get cut mid-sentence. Grounded
// on §4.1 step 12 / §8 testable property 7.
func SplitMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = 4096
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > maxLen {
		cut := maxLen
		if idx := lastNewlineBefore(remaining, maxLen); idx > 0 {
			cut = idx
		}
		chunks = append(chunks, remaining[:cut])
		remaining = remaining[cut:]
		if len(remaining) > 0 && remaining[0] == '\n' {
			remaining = remaining[1:]
		}
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

func lastNewlineBefore(s string, limit int) int {
	if limit > len(s) {
		limit = len(s)
	}
	for i := limit - 1; i > 0; i-- {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}
