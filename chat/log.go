package chat

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/generic"
)

// LogNotifier writes outbound messages to the log instead of a gateway.
// Used when no gateway URL is configured (local development).
type LogNotifier struct {
	Log zerolog.Logger
}

func (n LogNotifier) SendText(_ context.Context, chatID generic.ChatID, text string) error {
	n.Log.Info().Str("chat_id", string(chatID)).Str("text", text).Msg("outbound text")
	return nil
}

func (n LogNotifier) SendTextWithMention(_ context.Context, chatID generic.ChatID, text, mentionID string) error {
	n.Log.Info().Str("chat_id", string(chatID)).Str("mention", mentionID).Str("text", text).Msg("outbound text")
	return nil
}

func (n LogNotifier) DeleteMessage(_ context.Context, chatID generic.ChatID, messageID generic.MessageID) error {
	n.Log.Info().Str("chat_id", string(chatID)).Str("message_id", string(messageID)).Msg("outbound delete")
	return nil
}

// FetchRecentMessages has no history to offer.
func (n LogNotifier) FetchRecentMessages(context.Context, generic.ChatID, int) ([]booking.Event, error) {
	return nil, nil
}
