// Package pcsc runs a UICC session over a PC/SC reader (github.com/ebfe/scard).
//
// The reader driver performs the cold reset and the PPS exchange itself, so a Reader
// only replays the ATR it reports and relays APDUs: the first Read returns the ATR,
// every Write is transmitted as one command and its response is held for the next Read.
package pcsc

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/ebfe/scard"
	"github.com/gregLibert/uicc/internal/syncutil"
	"github.com/gregLibert/uicc/pkg/transport"
)

var (
	ErrNoReaders      = errors.New("no smart card reader found")
	ErrReaderNotFound = errors.New("reader not found")
)

// card is the subset of *scard.Card used by Reader.
type card interface {
	Status() (*scard.CardStatus, error)
	Transmit(cmd []byte) ([]byte, error)
	Disconnect(d scard.Disposition) error
}

type cardContext interface {
	ListReaders() ([]string, error)
	Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (card, error)
	Release() error
}

type scardContext struct {
	*scard.Context
}

func (c scardContext) Connect(reader string, mode scard.ShareMode, proto scard.Protocol) (card, error) {
	cd, err := c.Context.Connect(reader, mode, proto)
	if err != nil {
		return nil, err
	}
	return cd, nil
}

var establish = func() (cardContext, error) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		return nil, err
	}
	return scardContext{ctx}, nil
}

// Reader is a card connected through PC/SC.
type Reader struct {
	name string
	ctx  cardContext
	card card

	mu      syncutil.Mutex
	atrSent bool
	pending []byte
	closed  bool

	closeOnce sync.Once
	closeErr  error
}

var _ transport.Transport = (*Reader)(nil)

// Open connects to the card in the reader called name. A decimal name selects the
// reader by its index in the PC/SC list; an empty name picks the first reader.
func Open(name string) (*Reader, error) {
	ctx, err := establish()
	if err != nil {
		return nil, transport.NewError("establish context", name, err)
	}

	readers, err := ctx.ListReaders()
	if err == nil && len(readers) == 0 {
		err = ErrNoReaders
	}
	if err != nil {
		releaseQuietly(ctx)
		return nil, transport.NewError("list readers", name, err)
	}

	reader, err := pick(readers, name)
	if err != nil {
		releaseQuietly(ctx)
		return nil, err
	}

	// Force T=0 or T=1 to avoid "Parameter Incorrect" errors (Error 57)
	cd, err := ctx.Connect(reader, scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		releaseQuietly(ctx)
		return nil, transport.NewError("connect", reader, err)
	}

	return &Reader{name: reader, ctx: ctx, card: cd}, nil
}

func pick(readers []string, name string) (string, error) {
	if name == "" {
		return readers[0], nil
	}
	for _, r := range readers {
		if r == name {
			return r, nil
		}
	}
	if idx, err := strconv.Atoi(name); err == nil {
		if idx >= 0 && idx < len(readers) {
			return readers[idx], nil
		}
		return "", fmt.Errorf("%w: index %d out of range (0..%d)", ErrReaderNotFound, idx, len(readers)-1)
	}
	return "", fmt.Errorf("%w: %q", ErrReaderNotFound, name)
}

func releaseQuietly(ctx cardContext) {
	_ = ctx.Release()
}

// Name returns the PC/SC name of the reader.
func (r *Reader) Name() string {
	return r.name
}

// Read returns the ATR on first call, then the response to the last Write.
// Bytes beyond max stay queued.
func (r *Reader) Read(max int) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, transport.NewError("read", r.name, transport.ErrClosed)
	}

	if !r.atrSent {
		st, err := r.card.Status()
		if err != nil {
			return nil, transport.NewError("status", r.name, err)
		}
		r.atrSent = true
		r.pending = bytes.Clone(st.Atr)
	}

	n := min(max, len(r.pending))
	out := bytes.Clone(r.pending[:n])
	if out == nil {
		out = []byte{}
	}
	r.pending = r.pending[n:]
	return out, nil
}

// Write transmits p as one APDU.
func (r *Reader) Write(p []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return transport.NewError("write", r.name, transport.ErrClosed)
	}

	resp, err := r.card.Transmit(p)
	if err != nil {
		return transport.NewError("transmit", r.name, err)
	}
	r.atrSent = true
	r.pending = resp
	return nil
}

// Transmit sends cmd and returns the response directly, bypassing the read queue.
func (r *Reader) Transmit(cmd []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, transport.NewError("transmit", r.name, transport.ErrClosed)
	}
	resp, err := r.card.Transmit(cmd)
	if err != nil {
		return nil, transport.NewError("transmit", r.name, err)
	}
	return resp, nil
}

// Close disconnects the card, leaving it powered, and releases the PC/SC context.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.pending = nil
		r.mu.Unlock()

		var errs []error
		if err := r.card.Disconnect(scard.LeaveCard); err != nil {
			errs = append(errs, transport.NewError("disconnect", r.name, err))
		}
		if err := r.ctx.Release(); err != nil {
			errs = append(errs, transport.NewError("release", r.name, err))
		}
		r.closeErr = errors.Join(errs...)
	})
	return r.closeErr
}
