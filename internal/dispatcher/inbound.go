package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/chattask/internal/action"
	"github.com/nhle/chattask/internal/interpreter"
	"github.com/nhle/chattask/internal/model"
)

// Inbound is one message received from the chat channel.
type Inbound struct {
	From string
	Name string

	// Exactly one of Text and ReplyID is normally set.
	Text    string
	ReplyID string

	// MessageID is the provider's id for the message, used to react to it.
	MessageID string

	ReceivedAt time.Time
}

// reactions acknowledge a handled message in place.
var reactions = map[interpreter.Intent]string{
	interpreter.IntentMarkDone:   "✅",
	interpreter.IntentSnooze:     "⏰",
	interpreter.IntentCreateTask: "📝",
}

// HandleInbound registers the sender, opens their session window and
// dispatches the message.
func (d *Dispatcher) HandleInbound(ctx context.Context, in Inbound) (Result, error) {
	user, err := d.store.UpsertUserByPhone(ctx, in.From, in.Name)
	if err != nil {
		return Result{}, fmt.Errorf("registering sender: %w", err)
	}

	at := in.ReceivedAt
	if at.IsZero() {
		at = d.now()
	}
	if err := d.store.TouchLastInbound(ctx, user.ID, at); err != nil {
		return Result{}, err
	}
	user.LastInboundAt = &at

	var res Result
	if in.ReplyID != "" {
		res = d.handleReply(ctx, user, in)
	} else {
		pi := d.parser.Parse(ctx, in.Text, user.Timezone, d.now())
		res = d.Dispatch(ctx, user, pi)
	}

	d.react(ctx, user, in.MessageID, res)
	return res, nil
}

func (d *Dispatcher) handleReply(ctx context.Context, user *model.User, in Inbound) Result {
	reply, err := action.Parse(in.ReplyID)
	if err == nil {
		return d.DispatchReply(ctx, user, reply)
	}

	d.logger.Info("unrecognised reply id", zap.String("reply_id", in.ReplyID), zap.Error(err))
	if in.Text != "" {
		return d.Dispatch(ctx, user, d.parser.Parse(ctx, in.Text, user.Timezone, d.now()))
	}
	return d.reply(ctx, user, interpreter.IntentHelp, helpText)
}

// react is best effort.
func (d *Dispatcher) react(ctx context.Context, user *model.User, messageID string, res Result) {
	emoji, ok := reactions[res.Action]
	if messageID == "" || !res.Success || !ok {
		return
	}
	if err := d.messenger.React(ctx, user.Phone, messageID, emoji); err != nil {
		d.logger.Debug("reacting to message", zap.String("message_id", messageID), zap.Error(err))
	}
}
