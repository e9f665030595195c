package store

import "context"

// BuildContext assembles everything a pipeline turn needs from durable
// memory in one call: the active conversation, its recent history, the
// sender's facts and lessons, and — only when needs says they're worth the
// cost — a full-text recall pass and the sender's pending tasks. Skipping
// those two queries when keyword detection upstream says the user isn't
// asking about the past or about reminders is what keeps a plain "thanks"
// message cheap.
func (s *Store) BuildContext(ctx context.Context, channel, senderID, currentText string, needs ContextNeeds) (ContextBundle, error) {
	conv, err := s.GetOrCreateConversation(ctx, channel, senderID)
	if err != nil {
		return ContextBundle{}, err
	}
	history, err := s.RecentHistory(ctx, conv.ID)
	if err != nil {
		return ContextBundle{}, err
	}
	facts, err := s.GetFacts(ctx, senderID)
	if err != nil {
		return ContextBundle{}, err
	}
	lessons, err := s.GetAllLessons(ctx, senderID)
	if err != nil {
		return ContextBundle{}, err
	}
	summaries, err := s.GetRecentSummaries(ctx, senderID, RecentSummariesLimit)
	if err != nil {
		return ContextBundle{}, err
	}
	outcomes, err := s.GetRecentOutcomesAll(ctx, senderID, RecentOutcomesLimit)
	if err != nil {
		return ContextBundle{}, err
	}

	bundle := ContextBundle{
		Conversation:    conv,
		RecentHistory:   history,
		Facts:           facts,
		Lessons:         lessons,
		RecentSummaries: summaries,
		RecentOutcomes:  outcomes,
	}

	if needs.Recall && currentText != "" {
		recall, err := s.SearchRecall(ctx, senderID, currentText)
		if err != nil {
			return ContextBundle{}, err
		}
		bundle.RecentRecall = recall
	}
	if needs.PendingTasks {
		tasks, err := s.PendingTasksForSender(ctx, senderID)
		if err != nil {
			return ContextBundle{}, err
		}
		bundle.PendingTasks = tasks
	}
	return bundle, nil
}
