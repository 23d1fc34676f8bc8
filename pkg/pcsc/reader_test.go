package pcsc

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/ebfe/scard"
	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/uicc/pkg/iso7816"
	"github.com/gregLibert/uicc/pkg/tlv"
	"github.com/gregLibert/uicc/pkg/transport"
)

type fakeCard struct {
	atr       []byte
	responses map[string][]byte
	sent      [][]byte
	statusErr error
	txErr     error
	discErr   error
	disposed  []scard.Disposition
}

func (c *fakeCard) Status() (*scard.CardStatus, error) {
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return &scard.CardStatus{Atr: c.atr}, nil
}

func (c *fakeCard) Transmit(cmd []byte) ([]byte, error) {
	c.sent = append(c.sent, bytes.Clone(cmd))
	if c.txErr != nil {
		return nil, c.txErr
	}
	if resp, ok := c.responses[fmt.Sprintf("%X", cmd)]; ok {
		return resp, nil
	}
	return tlv.Hex("6D00"), nil
}

func (c *fakeCard) Disconnect(d scard.Disposition) error {
	c.disposed = append(c.disposed, d)
	return c.discErr
}

type fakeContext struct {
	readers    []string
	listErr    error
	connectErr error
	card       *fakeCard
	connected  string
	protocol   scard.Protocol
	released   int
}

func (c *fakeContext) ListReaders() ([]string, error) {
	return c.readers, c.listErr
}

func (c *fakeContext) Connect(reader string, _ scard.ShareMode, proto scard.Protocol) (card, error) {
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	c.connected = reader
	c.protocol = proto
	return c.card, nil
}

func (c *fakeContext) Release() error {
	c.released++
	return nil
}

func withContext(t *testing.T, ctx *fakeContext, err error) {
	t.Helper()
	orig := establish
	establish = func() (cardContext, error) {
		if err != nil {
			return nil, err
		}
		return ctx, nil
	}
	t.Cleanup(func() { establish = orig })
}

var uiccATR = tlv.Hex("3B 9F 96 80 1F C7 80 31 E0 73 FE 21 1B 63 3A 20 4E 83 00 90 00 93")

func TestOpen_ReaderSelection(t *testing.T) {
	readers := []string{"Alcor Micro AU9540 00 00", "Identiv uTrust 4701 F 01 00"}

	tests := []struct {
		name    string
		arg     string
		want    string
		wantErr error
	}{
		{"Empty picks first", "", readers[0], nil},
		{"Exact name", readers[1], readers[1], nil},
		{"Index", "1", readers[1], nil},
		{"Index out of range", "2", "", ErrReaderNotFound},
		{"Unknown name", "Gemalto", "", ErrReaderNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := &fakeContext{readers: readers, card: &fakeCard{}}
			withContext(t, ctx, nil)

			r, err := Open(tt.arg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Open(%q) error = %v, want %v", tt.arg, err, tt.wantErr)
				}
				if ctx.released != 1 {
					t.Errorf("context released %d times, want 1", ctx.released)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open(%q) error = %v", tt.arg, err)
			}
			if r.Name() != tt.want || ctx.connected != tt.want {
				t.Errorf("connected to %q (Name %q), want %q", ctx.connected, r.Name(), tt.want)
			}
			if ctx.protocol != scard.ProtocolT0|scard.ProtocolT1 {
				t.Errorf("protocol = %v, want T0|T1", ctx.protocol)
			}
		})
	}
}

func TestOpen_Failures(t *testing.T) {
	boom := errors.New("SCARD_E_NO_SERVICE")

	t.Run("No service", func(t *testing.T) {
		withContext(t, nil, boom)
		if _, err := Open(""); !errors.Is(err, boom) || !transport.IsTransportError(err) {
			t.Errorf("Open() error = %v", err)
		}
	})

	t.Run("No readers", func(t *testing.T) {
		ctx := &fakeContext{}
		withContext(t, ctx, nil)
		if _, err := Open(""); !errors.Is(err, ErrNoReaders) {
			t.Errorf("Open() error = %v, want ErrNoReaders", err)
		}
		if ctx.released != 1 {
			t.Errorf("context released %d times, want 1", ctx.released)
		}
	})

	t.Run("Connect fails", func(t *testing.T) {
		ctx := &fakeContext{readers: []string{"R"}, connectErr: boom}
		withContext(t, ctx, nil)
		if _, err := Open(""); !errors.Is(err, boom) {
			t.Errorf("Open() error = %v", err)
		}
		if ctx.released != 1 {
			t.Errorf("context released %d times, want 1", ctx.released)
		}
	})
}

func TestReader_ATRThenResponses(t *testing.T) {
	fc := &fakeCard{
		atr: uiccATR,
		responses: map[string][]byte{
			"80F2000000": tlv.Hex("6C 20"),
		},
	}
	ctx := &fakeContext{readers: []string{"R"}, card: fc}
	withContext(t, ctx, nil)

	r, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, err := r.Read(4)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(got, uiccATR[:4]) {
		t.Errorf("first Read = %X, want %X", got, uiccATR[:4])
	}
	got, _ = r.Read(33)
	if !bytes.Equal(got, uiccATR[4:]) {
		t.Errorf("second Read = %X, want %X", got, uiccATR[4:])
	}
	if got, _ := r.Read(33); len(got) != 0 || got == nil {
		t.Errorf("drained Read = %#v, want empty non-nil slice", got)
	}

	if err := r.Write(tlv.Hex("80 F2 00 00 00")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got, _ := r.Read(254); !bytes.Equal(got, tlv.Hex("6C20")) {
		t.Errorf("Read after Write = %X, want 6C20", got)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if diff := cmp.Diff([]scard.Disposition{scard.LeaveCard}, fc.disposed); diff != "" {
		t.Errorf("Disconnect calls mismatch (-want +got):\n%s", diff)
	}
	if ctx.released != 1 {
		t.Errorf("context released %d times, want 1", ctx.released)
	}
	if _, err := r.Read(1); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Read after Close error = %v, want ErrClosed", err)
	}
	if err := r.Write([]byte{0}); !errors.Is(err, transport.ErrClosed) {
		t.Errorf("Write after Close error = %v, want ErrClosed", err)
	}
}

func TestReader_Errors(t *testing.T) {
	boom := errors.New("SCARD_W_REMOVED_CARD")
	fc := &fakeCard{statusErr: boom, txErr: boom, discErr: boom}
	withContext(t, &fakeContext{readers: []string{"R"}, card: fc}, nil)

	r, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if _, err := r.Read(33); !errors.Is(err, boom) {
		t.Errorf("Read() error = %v", err)
	}
	if err := r.Write([]byte{0x00}); !errors.Is(err, boom) {
		t.Errorf("Write() error = %v", err)
	}
	if err := r.Close(); !errors.Is(err, boom) {
		t.Errorf("Close() error = %v", err)
	}
}

func TestReader_AsTransmitter(t *testing.T) {
	fc := &fakeCard{
		responses: map[string][]byte{
			"80F2000100": tlv.Hex("6C 03"),
			"80F2000103": tlv.Hex("840101 9000"),
		},
	}
	withContext(t, &fakeContext{readers: []string{"R"}, card: fc}, nil)

	r, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	var tx iso7816.Transmitter = r
	trace, err := iso7816.NewClient(tx).Send(iso7816.NewStatusCommand(iso7816.StatusNoIndication, iso7816.StatusReturnDFName))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(trace) != 2 || !trace.IsSuccess() {
		t.Fatalf("trace = %d transactions, success %v", len(trace), trace.IsSuccess())
	}
	if got := fmt.Sprintf("%X", trace.Last().Response.Data); got != "840101" {
		t.Errorf("data = %s, want 840101", got)
	}
}
