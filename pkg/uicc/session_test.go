package uicc

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/uicc/pkg/iso7816"
	"github.com/gregLibert/uicc/pkg/pps"
	"github.com/gregLibert/uicc/pkg/tlv"
	"github.com/gregLibert/uicc/pkg/transport"
)

var (
	minimalATR  = tlv.Hex("3B 00")
	specificATR = tlv.Hex("3B 80 10 11")
	uiccATR     = tlv.Hex("3B 9F 96 80 1F C7 80 31 E0 73 FE 21 1B 63 3A 20 4E 83 00 90 00 93")
	statusCmd   = tlv.Hex("80 F2 00 00 00")
)

func openReady(t *testing.T, chunks ...[]byte) (*Session, *transport.Mock) {
	t.Helper()
	m := transport.NewMock(append([][]byte{minimalATR, tlv.Hex("FF 00 FF")}, chunks...)...)
	s, err := Open(m)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return s, m
}

func TestOpen_Handshake(t *testing.T) {
	m := transport.NewMock(uiccATR, tlv.Hex("FF 00 FF"))

	s, err := Open(m)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.State() != StateReady {
		t.Errorf("State() = %s, want Ready", s.State())
	}
	if !bytes.Equal(s.ATR().Raw, uiccATR) {
		t.Errorf("ATR().Raw = %X", s.ATR().Raw)
	}

	want := pps.Outcome{Kind: pps.Succeeded, Response: tlv.Hex("FF 00 FF")}
	if diff := cmp.Diff(want, s.Negotiation()); diff != "" {
		t.Errorf("Negotiation() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]byte{tlv.Hex("FF 00 FF")}, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{33, pps.MaxResponse}, m.Reads()); diff != "" {
		t.Errorf("reads mismatch (-want +got):\n%s", diff)
	}
	if m.Closed() {
		t.Error("transport closed after a successful handshake")
	}
}

func TestOpen_SilentPPSStillReady(t *testing.T) {
	m := transport.NewMock(minimalATR)

	s, err := Open(m)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.State() != StateReady || s.Negotiation().Kind != pps.Succeeded || len(s.Negotiation().Response) != 0 {
		t.Errorf("got state %s, negotiation %s", s.State(), s.Negotiation())
	}
}

func TestOpen_Options(t *testing.T) {
	t.Run("WithoutPPS", func(t *testing.T) {
		m := transport.NewMock(specificATR)
		s, err := Open(m, WithoutPPS())
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if s.Negotiation().Kind != pps.NotAttempted {
			t.Errorf("Negotiation() = %s, want not attempted", s.Negotiation())
		}
		if len(m.Writes()) != 0 {
			t.Errorf("writes = %X, want none", m.Writes())
		}
	})

	t.Run("WithPPSRequest", func(t *testing.T) {
		pps1 := byte(0x94)
		m := transport.NewMock(minimalATR, tlv.Hex("FF 10 94 7B"))
		s, err := Open(m, WithPPSRequest(pps.Request{PPS1: &pps1}))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if diff := cmp.Diff([][]byte{tlv.Hex("FF 10 94 7B")}, m.Writes()); diff != "" {
			t.Errorf("writes mismatch (-want +got):\n%s", diff)
		}
		if !s.Negotiation().Echoes(pps.Request{PPS1: &pps1}) {
			t.Error("echoed request not recognized")
		}
	})

	t.Run("WithChecksumVerification", func(t *testing.T) {
		bad := bytes.Clone(uiccATR)
		bad[len(bad)-1] ^= 0xFF

		m := transport.NewMock(bad)
		_, err := Open(m, WithChecksumVerification())
		if !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("Open() error = %v, want ErrChecksumMismatch", err)
		}
		if !m.Closed() {
			t.Error("transport left open")
		}

		// Without the option the same ATR is accepted.
		if _, err := Open(transport.NewMock(bad)); err != nil {
			t.Errorf("Open() without verification error = %v", err)
		}
	})

	t.Run("WithLogger nil keeps default", func(t *testing.T) {
		if _, err := Open(transport.NewMock(minimalATR), WithLogger(nil)); err != nil {
			t.Errorf("Open() error = %v", err)
		}
	})
}

func TestOpen_Failures(t *testing.T) {
	boom := errors.New("device unplugged")

	tests := []struct {
		name      string
		setup     func(*transport.Mock)
		wantErr   error
		wantKind  string
		wantStage string
		wantATR   []byte
		wantWrite bool
	}{
		{
			name:      "Silent card",
			setup:     func(m *transport.Mock) {},
			wantErr:   ErrEmptyResponse,
			wantKind:  "EmptyResponse",
			wantStage: StageATR,
		},
		{
			name:      "Inverse convention",
			setup:     func(m *transport.Mock) { m.QueueRead(tlv.Hex("3F 00")) },
			wantErr:   ErrUnsupportedConvention,
			wantKind:  "UnsupportedConvention",
			wantStage: StageATR,
			wantATR:   tlv.Hex("3F 00"),
		},
		{
			name:      "Truncated interface bytes",
			setup:     func(m *transport.Mock) { m.QueueRead(tlv.Hex("3B 80")) },
			wantErr:   ErrTruncated,
			wantKind:  "Truncated",
			wantStage: StageATR,
			wantATR:   tlv.Hex("3B 80"),
		},
		{
			name:      "TA2 present",
			setup:     func(m *transport.Mock) { m.QueueRead(specificATR) },
			wantErr:   ErrTA2Unsupported,
			wantKind:  "TA2Unsupported",
			wantStage: StagePPS,
			wantATR:   specificATR,
		},
		{
			name:      "ATR read error",
			setup:     func(m *transport.Mock) { m.FailReads(boom) },
			wantErr:   boom,
			wantKind:  "TransportError",
			wantStage: StageATR,
		},
		{
			name: "PPS write error",
			setup: func(m *transport.Mock) {
				m.QueueRead(minimalATR)
				m.FailWrites(boom)
			},
			wantErr:   boom,
			wantKind:  "TransportError",
			wantStage: StagePPS,
			wantATR:   minimalATR,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := transport.NewMock()
			tt.setup(m)

			s, err := Open(m)
			if s != nil {
				t.Fatalf("Open() returned a session alongside error %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Open() error = %v, want %v", err, tt.wantErr)
			}
			if got := Kind(err); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}

			var he *HandshakeError
			if !errors.As(err, &he) {
				t.Fatalf("error %T is not a *HandshakeError", err)
			}
			if he.Stage != tt.wantStage {
				t.Errorf("Stage = %q, want %q", he.Stage, tt.wantStage)
			}
			if !bytes.Equal(he.ATR, tt.wantATR) {
				t.Errorf("ATR = %X, want %X", he.ATR, tt.wantATR)
			}
			if !m.Closed() {
				t.Error("transport must be closed on a failed handshake")
			}
			if tt.wantErr == ErrTA2Unsupported && len(m.Writes()) != 0 {
				t.Errorf("TA2 card received writes: %X", m.Writes())
			}
		})
	}
}

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		resp []byte
	}{
		{"FCP answer", tlv.Hex("62 03 82 01 78 90 00")},
		{"Wrong length hint", tlv.Hex("6C 20")},
		{"Silent card", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, m := openReady(t, tt.resp)

			got, err := s.Status()
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if !bytes.Equal(got, tt.resp) {
				t.Errorf("Status() = %X, want %X", got, tt.resp)
			}

			writes := m.Writes()
			if len(writes) != 2 || !bytes.Equal(writes[1], statusCmd) {
				t.Errorf("writes = %X, want PPS then %X", writes, statusCmd)
			}
			if reads := m.Reads(); reads[len(reads)-1] != StatusResponseMax {
				t.Errorf("last read size = %d, want %d", reads[len(reads)-1], StatusResponseMax)
			}
			if s.State() != StateReady {
				t.Errorf("State() = %s, want Ready", s.State())
			}
		})
	}
}

func TestStatus_NotReady(t *testing.T) {
	s, m := openReady(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	writes := len(m.Writes())

	if _, err := s.Status(); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Status() error = %v, want ErrSessionNotReady", err)
	} else if Kind(err) != "SessionNotReady" {
		t.Errorf("Kind() = %q", Kind(err))
	}
	if len(m.Writes()) != writes {
		t.Error("Status() on a closed session wrote to the transport")
	}

	fresh := transport.NewMock(tlv.Hex("90 00"))
	unopened := &Session{t: fresh, log: slog.New(slog.DiscardHandler), state: StateOpen}
	if _, err := unopened.Status(); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Status() in Open state error = %v", err)
	}
	if _, err := unopened.Transmit(statusCmd); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("Transmit() in Open state error = %v", err)
	}
	if len(fresh.Writes()) != 0 || len(fresh.Reads()) != 0 {
		t.Errorf("transport used outside Ready: writes %X, reads %v", fresh.Writes(), fresh.Reads())
	}
	if fresh.Pending() != 1 {
		t.Errorf("Pending() = %d, want the scripted answer untouched", fresh.Pending())
	}
}

func TestStatus_TransportErrorFailsSession(t *testing.T) {
	s, m := openReady(t)
	m.FailReads(errors.New("timeout storm"))

	if _, err := s.Status(); Kind(err) != "TransportError" {
		t.Fatalf("Status() error = %v, want a transport error", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %s, want Failed", s.State())
	}
	if _, err := s.Status(); !errors.Is(err, ErrSessionNotReady) {
		t.Errorf("second Status() error = %v, want ErrSessionNotReady", err)
	}
}

func TestSend_FollowsGetResponse(t *testing.T) {
	s, m := openReady(t,
		tlv.Hex("61 05"),
		tlv.Hex("C0 62 03 82 01 78 90 00"),
	)

	trace, err := s.Send(iso7816.StatusCommand())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(trace) != 2 || !trace.IsSuccess() {
		t.Fatalf("trace has %d transactions, success %v", len(trace), trace.IsSuccess())
	}

	want := [][]byte{tlv.Hex("FF 00 FF"), statusCmd, tlv.Hex("00 C0 00 00 05")}
	if diff := cmp.Diff(want, m.Writes()); diff != "" {
		t.Errorf("writes mismatch (-want +got):\n%s", diff)
	}

	res, err := iso7816.NewResult(trace)
	if err != nil {
		t.Fatalf("NewResult() error = %v", err)
	}
	fcp, err := res.FCP()
	if err != nil {
		t.Fatalf("FCP() error = %v", err)
	}
	if got := fcp.FileDescriptor; !bytes.Equal(got, []byte{0x78}) {
		t.Errorf("FileDescriptor = %X, want 78", got)
	}
}

func TestTransmit_T0(t *testing.T) {
	usim := "A0000000871002FF49FF0589000001FF"

	tests := []struct {
		name      string
		cmd       string
		card      []string
		want      string
		wantWrite []string
	}{
		{
			name:      "case 1",
			cmd:       "00 A4 03 0C",
			card:      []string{"90 00"},
			want:      "9000",
			wantWrite: []string{"00A4030C00"},
		},
		{
			name:      "case 2 with ACK",
			cmd:       "00 B2 01 04 04",
			card:      []string{"B2", "4F 01 A0 FF", "90 00"},
			want:      "4F01A0FF9000",
			wantWrite: []string{"00B2010404"},
		},
		{
			name:      "case 2 answered with wrong Le",
			cmd:       "00 B2 01 04 00",
			card:      []string{"6C 14"},
			want:      "6C14",
			wantWrite: []string{"00B2010400"},
		},
		{
			name:      "case 3 after NULL bytes",
			cmd:       "00 A4 00 0C 02 3F 00",
			card:      []string{"60", "60 A4", "90 00"},
			want:      "9000",
			wantWrite: []string{"00A4000C02", "3F00"},
		},
		{
			name:      "case 4 drops Le",
			cmd:       "00 A4 04 04 10 " + usim + " 00",
			card:      []string{"A4 61 25"},
			want:      "6125",
			wantWrite: []string{"00A4040410", usim},
		},
		{
			name:      "byte by byte",
			cmd:       "00 A4 00 0C 02 3F 00",
			card:      []string{"5B", "5B", "90 00"},
			want:      "9000",
			wantWrite: []string{"00A4000C02", "3F", "00"},
		},
		{
			name:      "receive byte by byte",
			cmd:       "00 B2 01 04 02",
			card:      []string{"4D 4F", "4D 01", "91 1A"},
			want:      "4F01911A",
			wantWrite: []string{"00B2010402"},
		},
		{
			name:      "status before the data",
			cmd:       "00 A4 00 0C 02 7F FF",
			card:      []string{"6A 82"},
			want:      "6A82",
			wantWrite: []string{"00A4000C02"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chunks [][]byte
			for _, c := range tt.card {
				chunks = append(chunks, tlv.Hex(c))
			}
			s, m := openReady(t, chunks...)

			got, err := s.Transmit(tlv.Hex(tt.cmd))
			if err != nil {
				t.Fatalf("Transmit() error = %v", err)
			}
			if diff := cmp.Diff(tlv.Hex(tt.want), got); diff != "" {
				t.Errorf("Transmit() mismatch (-want +got):\n%s", diff)
			}

			var writes []string
			for _, w := range m.Writes()[1:] {
				writes = append(writes, fmt.Sprintf("%X", w))
			}
			if diff := cmp.Diff(tt.wantWrite, writes); diff != "" {
				t.Errorf("writes mismatch (-want +got):\n%s", diff)
			}
			if m.Pending() != 0 {
				t.Errorf("%d scripted answers left unread", m.Pending())
			}
			if s.State() != StateReady {
				t.Errorf("State() = %s, want Ready", s.State())
			}
		})
	}
}

func TestTransmit_T0Errors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		card    []string
		wantErr error
		failed  bool
	}{
		{"silent card", "00 B2 01 04 00", nil, ErrNoAnswer, true},
		{"record cut short", "00 B2 01 04 04", []string{"B2 4F 01"}, ErrNoAnswer, true},
		{"garbage procedure byte", "00 B2 01 04 00", []string{"42"}, ErrProcedureByte, true},
		{"ACK with nothing to send", "00 A4 03 0C", []string{"A4"}, ErrProcedureByte, true},
		{"endless NULL", "00 B2 01 04 00", []string{strings.Repeat("60", MaxNullBytes+1)}, ErrProcedureByte, true},
		{"not a command", "00 A4", nil, iso7816.ErrCommandTooShort, false},
		{"extended length", "00 B0 00 00 00 0200", nil, iso7816.ErrNotShort, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var chunks [][]byte
			for _, c := range tt.card {
				chunks = append(chunks, tlv.Hex(c))
			}
			s, _ := openReady(t, chunks...)

			if _, err := s.Transmit(tlv.Hex(tt.cmd)); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Transmit() error = %v, want %v", err, tt.wantErr)
			}
			if got := s.State() == StateFailed; got != tt.failed {
				t.Errorf("State() = %s, failed want %v", s.State(), tt.failed)
			}
		})
	}
}

// apduMock is a transport that also exchanges whole APDUs, as a PC/SC reader does.
type apduMock struct {
	*transport.Mock
	sent [][]byte
	resp []byte
}

func (a *apduMock) Transmit(cmd []byte) ([]byte, error) {
	a.sent = append(a.sent, bytes.Clone(cmd))
	return a.resp, nil
}

func TestTransmit_WholeAPDU(t *testing.T) {
	a := &apduMock{Mock: transport.NewMock(minimalATR), resp: tlv.Hex("62 03 82 01 78 90 00")}
	s, err := Open(a, WithoutPPS())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	got, err := s.Transmit(tlv.Hex("00 A4 00 04 02 3F 00 00"))
	if err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if !bytes.Equal(got, a.resp) {
		t.Errorf("Transmit() = %X, want %X", got, a.resp)
	}
	if diff := cmp.Diff([][]byte{tlv.Hex("00 A4 00 04 02 3F 00 00")}, a.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}
	if len(a.Writes()) != 0 {
		t.Errorf("the line was written to: %X", a.Writes())
	}
}

func TestTrimProcedureBytes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"62 03 82 01 78 90 00", "62 03 82 01 78 90 00"},
		{"F2 62 03 82 01 78 90 00", "62 03 82 01 78 90 00"},
		{"60 60 F2 62 00 90 00", "62 00 90 00"},
		{"60 6C 20", "6C 20"},
		{"90 00", "90 00"},
		{"", ""},
	}

	for _, tt := range tests {
		got := TrimProcedureBytes(0xF2, tlv.Hex(tt.raw))
		if !bytes.Equal(got, tlv.Hex(tt.want)) {
			t.Errorf("TrimProcedureBytes(%s) = %X, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestSession_AccessorsReturnCopies(t *testing.T) {
	s, _ := openReady(t)

	rec := s.ATR()
	rec.Raw[0] = 0x00
	rec.HistoricalBytes = append(rec.HistoricalBytes, 0xAA)
	rec.Groups = nil

	out := s.Negotiation()
	out.Response[0] = 0x00

	if got := s.ATR().Raw; !bytes.Equal(got, minimalATR) {
		t.Errorf("ATR().Raw = %X after mutating a copy, want %X", got, minimalATR)
	}
	if len(s.ATR().HistoricalBytes) != 0 {
		t.Errorf("ATR().HistoricalBytes = %X after mutating a copy", s.ATR().HistoricalBytes)
	}
	if got := s.Negotiation().Response; !bytes.Equal(got, tlv.Hex("FF 00 FF")) {
		t.Errorf("Negotiation().Response = %X after mutating a copy", got)
	}
}

func TestClose(t *testing.T) {
	s, m := openReady(t)
	m.FailClose(errors.New("busy"))

	if err := s.Close(); err == nil {
		t.Error("Close() should report the transport error")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
	if s.State() != StateFailed {
		t.Errorf("State() = %s, want Failed", s.State())
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("other"), "Unknown"},
		{transport.NewError("read", "/dev/ttyUSB0", errors.New("EIO")), "TransportError"},
		{&HandshakeError{Stage: StagePPS, Err: ErrTA2Unsupported}, "TA2Unsupported"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	got := []string{StateOpen.String(), StateReady.String(), StateFailed.String(), State(7).String()}
	want := []string{"Open", "Ready", "Failed", "State(7)"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("State names mismatch (-want +got):\n%s", diff)
	}
}
