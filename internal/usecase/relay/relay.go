package relay

import (
	"context"
	"log"

	messageRepo "github.com/dkuznets/cupid-bot/internal/repository/message"
	"github.com/dkuznets/cupid-bot/internal/transport"
)

type IRelayUseCase interface {
	// Relay appends the message to the log and attempts delivery to the
	// matched counterpart. Delivery failure is logged and does not roll
	// back the log entry; the log is the durable record of intent.
	Relay(ctx context.Context, senderID, recipientID int64, text string) error
}

type relayUseCase struct {
	messageRepo messageRepo.IMessageRepo
	sender      transport.Sender
	logger      *log.Logger
}

func New(messageRepo messageRepo.IMessageRepo, sender transport.Sender, logger *log.Logger) IRelayUseCase {
	return &relayUseCase{
		messageRepo: messageRepo,
		sender:      sender,
		logger:      logger,
	}
}

func (r *relayUseCase) Relay(ctx context.Context, senderID, recipientID int64, text string) error {
	if _, err := r.messageRepo.CreateMessage(ctx, senderID, recipientID, text); err != nil {
		return err
	}

	if err := r.sender.SendText(ctx, recipientID, "You have a new message from your match: "+text, nil); err != nil {
		r.logger.Printf("relay delivery to %d failed: %v", recipientID, err)
	}
	return nil
}
