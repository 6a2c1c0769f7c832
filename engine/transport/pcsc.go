package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ebfe/scard"
)

// PCSCChannel drives a real contactless reader through the PC/SC
// smartcard stack: establish context, wait for card presence, connect
// exclusively, transmit. It implements Channel and is the only piece
// of this module that touches hardware.
type PCSCChannel struct {
	readerIndex int

	ctx    *scard.Context
	reader string
	card   *scard.Card
}

// NewPCSCChannel establishes a PC/SC context and resolves the
// readerIndex'th reader name, without yet connecting to a card.
func NewPCSCChannel(readerIndex int) (*PCSCChannel, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, fmt.Errorf("transport: establish pcsc context: %w", err)
	}
	readers, err := ctx.ListReaders()
	if err != nil {
		_ = ctx.Release()
		return nil, fmt.Errorf("transport: list readers: %w", err)
	}
	if readerIndex < 0 || readerIndex >= len(readers) {
		_ = ctx.Release()
		return nil, fmt.Errorf("transport: reader index %d out of range (found %d readers)", readerIndex, len(readers))
	}
	return &PCSCChannel{readerIndex: readerIndex, ctx: ctx, reader: readers[readerIndex]}, nil
}

// Connect waits for a card to be present on the resolved reader, then
// connects to it exclusively. It polls GetStatusChange, honoring ctx
// cancellation between polls.
func (c *PCSCChannel) Connect(ctx context.Context) error {
	if c.ctx == nil {
		return errors.New("transport: pcsc context not established")
	}
	rs := []scard.ReaderState{{Reader: c.reader, CurrentState: scard.StateUnaware}}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.ctx.GetStatusChange(rs, time.Second); err != nil {
			return fmt.Errorf("transport: get status change: %w", err)
		}
		rs[0].CurrentState = rs[0].EventState
		if rs[0].EventState&scard.StatePresent != 0 {
			break
		}
	}
	card, err := c.ctx.Connect(c.reader, scard.ShareExclusive, scard.ProtocolAny)
	if err != nil {
		return fmt.Errorf("transport: connect to card: %w", err)
	}
	c.card = card
	return nil
}

// Disconnect releases the card and the PC/SC context. Safe to call
// more than once.
func (c *PCSCChannel) Disconnect() error {
	var errs []error
	if c.card != nil {
		if err := c.card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, err)
		}
		c.card = nil
	}
	if c.ctx != nil {
		if err := c.ctx.Release(); err != nil {
			errs = append(errs, err)
		}
		c.ctx = nil
	}
	return errors.Join(errs...)
}

// Transceive sends one command APDU and returns the raw response
// bytes (data + SW1SW2), unparsed. ctx cancellation is best-effort:
// scard.Card.Transmit has no native cancellation, so a cancelled ctx
// only prevents a Transceive call that has not started yet.
func (c *PCSCChannel) Transceive(ctx context.Context, command []byte) ([]byte, error) {
	if c.card == nil {
		return nil, errors.New("transport: no card connected")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	resp, err := c.card.Transmit(command)
	if err != nil {
		return nil, fmt.Errorf("transport: transmit: %w", err)
	}
	return resp, nil
}
