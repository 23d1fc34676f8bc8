// Package efdir reads EF_DIR, the UICC application directory (ETSI TS 102 221, 13.1).
//
// EF_DIR is a linear fixed EF under the MF (file ID '2F00', SFI '1E'). Each record holds
// one application template (tag '61') padded with 'FF':
//
//	61 L  4F L <AID>  [50 L <label>]  [51 L <path>]  [73 L <discretionary>]  FF FF ...
//
// Records are read one by one until the card answers '6A83' (record not found).
package efdir

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/gregLibert/uicc/pkg/iso7816"
	"github.com/gregLibert/uicc/pkg/tlv"
	"github.com/moov-io/bertlv"
)

const (
	// FileID is the identifier of EF_DIR under the MF.
	FileID uint16 = 0x2F00

	// SFI is the short file identifier of EF_DIR.
	SFI byte = 0x1E

	// MaxRecords bounds the directory walk.
	MaxRecords = 254
)

var (
	ErrEmptyRecord     = errors.New("unused record")
	ErrMissingTemplate = errors.New("missing application template (tag 61)")
)

// Application is one application template (tag '61') of EF_DIR.
type Application struct {
	AID               []byte `tlv:"4F"` // Mandatory
	Label             []byte `tlv:"50" fmt:"ascii"`
	Path              []byte `tlv:"51"`
	CommandToPerform  []byte `tlv:"52"`
	DiscretionaryData []byte `tlv:"53"`
	Discretionary     []byte `tlv:"73"`

	Rest []bertlv.TLV `tlv:",rest"`
}

var rid3GPP = []byte{0xA0, 0x00, 0x00, 0x00, 0x87}

// Type names well-known 3GPP applications from their AID ("USIM", "ISIM").
// It returns "" for anything else.
func (a *Application) Type() string {
	if len(a.AID) < 7 || !bytes.HasPrefix(a.AID, rid3GPP) {
		return ""
	}
	switch uint16(a.AID[5])<<8 | uint16(a.AID[6]) {
	case 0x1002:
		return "USIM"
	case 0x1004:
		return "ISIM"
	default:
		return ""
	}
}

// Describe generates a report of the template fields.
func (a *Application) Describe() string {
	var sb strings.Builder
	header := fmt.Sprintf("=== EF_DIR APPLICATION %X ===", a.AID)
	if t := a.Type(); t != "" {
		header = fmt.Sprintf("=== EF_DIR APPLICATION %X (%s) ===", a.AID, t)
	}
	sb.WriteString(header)
	for _, line := range tlv.Lines("App", a) {
		sb.WriteString("\n" + line)
	}
	return sb.String()
}

// ParseRecord decodes one EF_DIR record. Trailing 'FF' padding is ignored; a record
// made only of padding yields ErrEmptyRecord.
func ParseRecord(data []byte) (*Application, error) {
	if len(bytes.TrimRight(data, "\xFF")) == 0 {
		return nil, ErrEmptyRecord
	}

	packets, err := bertlv.Decode(templateOnly(data))
	if err != nil {
		return nil, fmt.Errorf("BER-TLV decode failed: %w", err)
	}
	if len(packets) == 0 || !strings.EqualFold(packets[0].Tag, "61") {
		return nil, ErrMissingTemplate
	}

	app := &Application{}
	if err := tlv.DecodeObjects(packets[0].TLVs, app); err != nil {
		return nil, fmt.Errorf("failed to map application template: %w", err)
	}
	if len(app.AID) == 0 {
		return nil, fmt.Errorf("application template without AID (tag 4F)")
	}
	return app, nil
}

// templateOnly cuts the record right after the '61' template, dropping the padding.
// A length it cannot read falls back to trimming the trailing 'FF' bytes.
func templateOnly(data []byte) []byte {
	trimmed := bytes.TrimRight(data, "\xFF")
	if len(data) < 2 || data[0] != 0x61 {
		return trimmed
	}

	var n, hdr int
	switch l := data[1]; {
	case l < 0x80:
		n, hdr = int(l), 2
	case l == 0x81 && len(data) > 2:
		n, hdr = int(data[2]), 3
	case l == 0x82 && len(data) > 3:
		n, hdr = int(data[2])<<8|int(data[3]), 4
	default:
		return trimmed
	}
	if hdr+n <= len(data) {
		return data[:hdr+n]
	}
	return trimmed
}

// Sender runs a command and its protocol follow-ups, like iso7816.Client.
type Sender interface {
	Send(cmd *iso7816.CommandAPDU) (iso7816.Trace, error)
}

// ReadAll selects the MF, then reads EF_DIR record by record through its SFI and
// returns the applications found. Unused records are skipped. The walk stops at '6A83';
// any other error status ends it with an error alongside the applications read so far.
func ReadAll(s Sender) ([]Application, error) {
	cls := iso7816.BasicClass(iso7816.Interindustry)

	trace, err := s.Send(iso7816.SelectMF(cls))
	if err != nil {
		return nil, fmt.Errorf("SELECT MF: %w", err)
	}
	if !trace.IsSuccess() {
		return nil, fmt.Errorf("SELECT MF: %s", trace.Last().Response.Status.Verbose())
	}

	var apps []Application
	for rec := 1; rec <= MaxRecords; rec++ {
		trace, err := s.Send(iso7816.ReadRecord(cls, SFI, byte(rec)))
		if err != nil {
			return apps, fmt.Errorf("EF_DIR record %d: %w", rec, err)
		}

		last := trace.Last()
		if last.Response.Status == iso7816.SW_ERR_RECORD_NOT_FOUND {
			break
		}
		if !last.IsSuccess() {
			return apps, fmt.Errorf("EF_DIR record %d: %s", rec, last.Response.Status.Verbose())
		}

		app, err := ParseRecord(trace.Data())
		if errors.Is(err, ErrEmptyRecord) {
			continue
		}
		if err != nil {
			return apps, fmt.Errorf("EF_DIR record %d: %w", rec, err)
		}
		apps = append(apps, *app)
	}
	return apps, nil
}
