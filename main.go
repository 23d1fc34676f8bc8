// Command uicc cold resets a UICC, reads its ATR, runs the PPS exchange and asks for
// its STATUS.
//
//	uicc [-h] [-config file] [-pcsc] [-v] [-dir] [-apdu HEX] <device>
//
// <device> is a serial port (e.g. /dev/ttyUSB0) wired to the card's reset line through
// DTR, or with -pcsc a PC/SC reader name or index.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/gregLibert/uicc/pkg/config"
	"github.com/gregLibert/uicc/pkg/efdir"
	"github.com/gregLibert/uicc/pkg/iso7816"
	"github.com/gregLibert/uicc/pkg/pcsc"
	"github.com/gregLibert/uicc/pkg/tlv"
	"github.com/gregLibert/uicc/pkg/transport"
	"github.com/gregLibert/uicc/pkg/uicc"
)

const usage = "usage: uicc [-h] [-config file] [-pcsc] [-v] [-dir] [-apdu HEX] <device>"

var (
	dialSerial = uicc.Dial
	openReader = func(name string) (transport.Transport, error) {
		r, err := pcsc.Open(name)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("uicc", flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", "", "TOML configuration `file`")
	usePCSC := fs.Bool("pcsc", false, "open <device> as a PC/SC reader name or index")
	verbose := fs.Bool("v", false, "print the ATR and STATUS reports")
	listApps := fs.Bool("dir", false, "list the applications recorded in EF_DIR")
	apduHex := fs.String("apdu", "", "extra command APDU to send after STATUS, in `HEX`")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 1
	}
	device := fs.Arg(0)

	conf, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	level, _ := conf.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var extra *iso7816.CommandAPDU
	if *apduHex != "" {
		raw, err := tlv.ParseHex(*apduHex)
		if err == nil {
			extra, err = iso7816.ParseCommandAPDU(raw)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error: -apdu: %v\n", err)
			return 1
		}
	}

	// --- 1. Handshake ---
	sess, err := openSession(device, *usePCSC, conf, logger)
	if err != nil {
		var he *uicc.HandshakeError
		if errors.As(err, &he) && len(he.ATR) > 0 {
			fmt.Fprintf(stdout, "ATR: %X\n", he.ATR)
		}
		report(stderr, err)
		return 1
	}

	defer func() {
		if err := sess.Close(); err != nil {
			log.New(stderr, "", log.LstdFlags).Printf("Warning: Failed to close session: %v", err)
		}
	}()

	fmt.Fprintf(stdout, "ATR: %X\n", sess.ATR().Raw)
	if *verbose {
		fmt.Fprintln(stdout, sess.ATR().Describe())
	}
	fmt.Fprintf(stdout, "PPS response: %X\n", sess.Negotiation().Response)

	// --- 2. STATUS ---
	status, err := sess.Status()
	if err != nil {
		report(stderr, err)
		return 1
	}
	fmt.Fprintf(stdout, "Status response: %X\n", status)
	if *verbose {
		describeStatus(stdout, status)
	}

	// --- 3. Application directory ---
	if *listApps {
		apps, err := efdir.ReadAll(sess)
		for _, app := range apps {
			fmt.Fprintln(stdout, app.Describe())
		}
		if err != nil {
			report(stderr, err)
			return 1
		}
		if len(apps) == 0 {
			fmt.Fprintln(stdout, ">> EF_DIR lists no application.")
		}
	}

	// --- 4. Extra command ---
	if extra != nil {
		trace, err := sess.Send(extra)
		if err != nil {
			report(stderr, err)
			return 1
		}
		res, err := iso7816.NewResult(trace)
		if err != nil {
			report(stderr, err)
			return 1
		}
		fmt.Fprintln(stdout, res.Describe())
	}

	return 0
}

func openSession(device string, usePCSC bool, conf config.Config, logger *slog.Logger) (*uicc.Session, error) {
	opts := []uicc.Option{uicc.WithLogger(logger)}
	if conf.Session.VerifyChecksum {
		opts = append(opts, uicc.WithChecksumVerification())
	}

	if usePCSC {
		// The reader already ran reset and PPS.
		t, err := openReader(device)
		if err != nil {
			return nil, err
		}
		return uicc.Open(t, append(opts, uicc.WithoutPPS())...)
	}

	if conf.Session.SkipPPS {
		opts = append(opts, uicc.WithoutPPS())
	}
	sc, err := conf.SerialConfig(logger)
	if err != nil {
		return nil, err
	}
	return dialSerial(device, sc, opts...)
}

// describeStatus prints the STATUS answer as a command report when it carries a status word.
// Procedure bytes read off a serial line are dropped first.
func describeStatus(w io.Writer, raw []byte) {
	raw = uicc.TrimProcedureBytes(byte(iso7816.INS_STATUS), raw)
	tx, err := iso7816.NewTransaction(iso7816.StatusCommand(), raw)
	if err != nil {
		fmt.Fprintf(w, "(!) %v\n", err)
		return
	}
	res, err := iso7816.NewResult(iso7816.Trace{tx})
	if err != nil {
		fmt.Fprintf(w, "(!) %v\n", err)
		return
	}
	fmt.Fprintln(w, res.Describe())
}

func report(w io.Writer, err error) {
	fmt.Fprintf(w, "Error [%s]: %v\n", uicc.Kind(err), err)
}
