package transport

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gregLibert/uicc/internal/syncutil"
	"go.bug.st/serial"
)

// Serial line defaults for a UICC behind a phoenix-style reader: 9600 baud matches
// the default Fi/Di (372/1) with a 3.57 MHz clock.
const (
	DefaultBaudRate    = 9600
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultResetDelay  = 200 * time.Millisecond
)

// SerialConfig holds the line settings used by OpenSerial.
type SerialConfig struct {
	BaudRate int
	Parity   serial.Parity
	// ReadTimeout bounds each low-level read; a read that times out ends Read.
	ReadTimeout time.Duration
	// ResetDelay is how long DTR stays deasserted during the cold reset.
	ResetDelay time.Duration
	Logger     *slog.Logger
}

// DefaultSerialConfig returns 9600 baud, 8N1, 100 ms read timeout and a 200 ms reset pulse.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		BaudRate:    DefaultBaudRate,
		Parity:      serial.NoParity,
		ReadTimeout: DefaultReadTimeout,
		ResetDelay:  DefaultResetDelay,
	}
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ResetDelay <= 0 {
		c.ResetDelay = DefaultResetDelay
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// Replaced in tests.
var (
	openPort = serial.Open
	sleep    = time.Sleep
)

// Serial is a Transport over a serial line. The card is cold reset when the port opens.
type Serial struct {
	path    string
	port    serial.Port
	log     *slog.Logger
	release func()

	mu        syncutil.Mutex
	closed    bool
	closeOnce sync.Once
}

var _ Transport = (*Serial)(nil)

// OpenSerial claims path, opens it and performs a cold reset of the card: RTS and DTR
// are deasserted, the line rests for ResetDelay, pending input is discarded and DTR is
// asserted again. The card starts sending its ATR right after.
//
// A path already opened by another Serial of this process fails with ErrPortInUse.
func OpenSerial(path string, cfg SerialConfig) (*Serial, error) {
	cfg = cfg.withDefaults()

	release, err := claim(path)
	if err != nil {
		return nil, err
	}

	port, err := openPort(path, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   cfg.Parity,
		StopBits: serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{
			RTS: false,
			DTR: false,
		},
	})
	if err != nil {
		release()
		return nil, NewError("open", path, err)
	}

	s := &Serial{
		path:    path,
		port:    port,
		log:     cfg.Logger.With("port", path),
		release: release,
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = s.Close()
		return nil, NewError("set read timeout", path, err)
	}

	if err := s.coldReset(cfg.ResetDelay); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.log.Debug("serial port ready",
		"baud", cfg.BaudRate,
		"parity", parityName(cfg.Parity),
		"read_timeout", cfg.ReadTimeout)

	return s, nil
}

func (s *Serial) coldReset(delay time.Duration) error {
	if err := s.port.SetRTS(false); err != nil {
		return NewError("reset RTS", s.path, err)
	}
	if err := s.port.SetDTR(false); err != nil {
		return NewError("reset DTR", s.path, err)
	}

	sleep(delay)

	if err := s.port.ResetInputBuffer(); err != nil {
		return NewError("flush input", s.path, err)
	}
	if err := s.port.SetDTR(true); err != nil {
		return NewError("set DTR", s.path, err)
	}

	if bits, err := s.port.GetModemStatusBits(); err == nil {
		s.log.Debug("cold reset done",
			"delay", delay,
			"cts", bits.CTS, "dsr", bits.DSR, "ri", bits.RI, "dcd", bits.DCD)
	} else {
		s.log.Debug("cold reset done, modem status unavailable", "delay", delay, "error", err)
	}

	return nil
}

// Read collects up to max bytes, stopping early at the first read that times out.
func (s *Serial) Read(max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, NewError("read", s.path, ErrClosed)
	}
	if max <= 0 {
		return nil, nil
	}

	buf := make([]byte, max)
	n := 0
	for n < max {
		k, err := s.port.Read(buf[n:])
		if err != nil {
			return buf[:n], NewError("read", s.path, err)
		}
		if k == 0 {
			break
		}
		n += k
	}

	s.log.Debug("read", "requested", max, "received", n, "data", fmt.Sprintf("%X", buf[:n]))
	return buf[:n], nil
}

// Write sends p and waits for it to leave the output buffer.
func (s *Serial) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return NewError("write", s.path, ErrClosed)
	}

	n, err := s.port.Write(p)
	if err != nil {
		return NewError("write", s.path, err)
	}
	if n < len(p) {
		return NewError("write", s.path, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(p)))
	}
	if err := s.port.Drain(); err != nil {
		return NewError("drain", s.path, err)
	}

	s.log.Debug("write", "data", fmt.Sprintf("%X", p))
	return nil
}

// Close closes the port and releases the path claim. It is safe to call more than once.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if cerr := s.port.Close(); cerr != nil {
			err = NewError("close", s.path, cerr)
		}
		s.release()
		s.log.Debug("serial port closed")
	})
	return err
}

// Path returns the device path.
func (s *Serial) Path() string {
	return s.path
}

func parityName(p serial.Parity) string {
	switch p {
	case serial.NoParity:
		return "none"
	case serial.OddParity:
		return "odd"
	case serial.EvenParity:
		return "even"
	case serial.MarkParity:
		return "mark"
	case serial.SpaceParity:
		return "space"
	default:
		return fmt.Sprintf("Parity(%d)", int(p))
	}
}

// ParseParity maps a parity name (none, odd, even, mark, space) to its serial value.
func ParseParity(name string) (serial.Parity, error) {
	switch name {
	case "", "none", "N":
		return serial.NoParity, nil
	case "odd", "O":
		return serial.OddParity, nil
	case "even", "E":
		return serial.EvenParity, nil
	case "mark", "M":
		return serial.MarkParity, nil
	case "space", "S":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unknown parity %q", name)
	}
}
