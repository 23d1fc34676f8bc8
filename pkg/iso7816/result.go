package iso7816

import (
	"fmt"
	"strings"

	"github.com/gregLibert/uicc/pkg/tlv"
)

// COMMAND RESULT ANALYSIS:
// A Result wraps the trace of one logical command (the initial request plus any
// GET RESPONSE or Le correction the Client issued) and renders it as a report.
// SELECT and STATUS responses are decoded into File Control Parameters; other
// commands get a raw dump of their payload.

// Result represents the outcome of a command execution.
type Result struct {
	Trace
}

// NewResult creates a Result from a transaction trace.
// The trace must hold at least one complete transaction.
func NewResult(t Trace) (*Result, error) {
	if len(t) == 0 {
		return nil, fmt.Errorf("cannot create result from empty trace")
	}
	for i, tx := range t {
		if tx.Command == nil || tx.Response == nil {
			return nil, fmt.Errorf("transaction %d of trace is incomplete", i+1)
		}
	}
	return &Result{Trace: t}, nil
}

// Initial returns the command that opened the exchange.
func (r *Result) Initial() *CommandAPDU {
	return r.Trace[0].Command
}

// FCP decodes the File Control Parameters returned by a SELECT or STATUS command,
// joining the data of a GET RESPONSE chain first. It returns nil without error when
// the command asked for no data.
func (r *Result) FCP() (*FCP, error) {
	if !r.IsSuccess() {
		return nil, fmt.Errorf("command failed with %s, no FCP", r.Status().Verbose())
	}

	cmd := r.Initial()
	data := r.Trace.Data()
	switch cmd.Instruction.Raw {
	case INS_SELECT:
		if cmd.P2&0x0C == SelectReturnNoData {
			return nil, nil
		}
		return ParseFCP(data)
	case INS_STATUS:
		return ParseStatusData(data, StatusContent(cmd.P2))
	}
	return nil, fmt.Errorf("%s responses carry no FCP", cmd.Instruction.Raw.Command())
}

// Describe generates a report of the exchange: the initial request, each follow-up
// the Client issued and a field-by-field dump of the decoded FCP.
func (r *Result) Describe() string {
	var sb strings.Builder

	tx0 := r.Trace[0]
	cmd := tx0.Command
	name := cmd.Instruction.Raw.Command()

	sb.WriteString(fmt.Sprintf("=== %s COMMAND REPORT ===\n", name))
	sb.WriteString(fmt.Sprintf("[1] Command: %s (Initial Request)\n", name))
	writeParameters(&sb, cmd)

	if len(cmd.Data) > 0 {
		sb.WriteString(fmt.Sprintf("    + Data:    %X (%q)\n", cmd.Data, tlv.Printable(cmd.Data)))
	}

	sw := tx0.Response.Status
	sw1, sw2 := sw.SW1(), sw.SW2()

	resultMsg := "[OK]"
	resultDesc := sw.String()

	switch {
	case sw1 == 0x61:
		resultDesc = fmt.Sprintf("%02X (%d) bytes still available", sw2, sw2)
	case sw1 == 0x6C:
		resultMsg = "[!!]"
		resultDesc = fmt.Sprintf("Wrong length, correct is %02X (%d)", sw2, sw2)
	case sw != SW_NO_ERROR:
		if !sw.IsSuccess() {
			resultMsg = "[!!]"
		}
		resultDesc = sw.Verbose()
	}

	sb.WriteString(fmt.Sprintf("    + Result:  [%02X %02X] %s %s\n", sw1, sw2, resultMsg, resultDesc))

	if len(tx0.Response.Data) > 0 {
		sb.WriteString(fmt.Sprintf("    + Payload: %d bytes received directly\n", len(tx0.Response.Data)))
	}
	sb.WriteString("\n")

	finalPayload := tx0.Response.Data

	if len(r.Trace) > 1 {
		sb.WriteString(fmt.Sprintf("[2] Protocol: Auto-handling (Sequence of %d steps)\n", len(r.Trace)))
		for i, tx := range r.Trace[1:] {
			op := "GET RESPONSE"
			if tx.Command.Instruction.Raw != INS_GET_RESPONSE {
				op = fmt.Sprintf("RE-%s (Correction)", name)
			}
			mark := "[OK]"
			if !tx.IsSuccess() {
				mark = "[!!]"
			}
			sb.WriteString(fmt.Sprintf("    + Step %d:  %s Le=%d -> [%04X] %s\n", i+2, op, tx.Command.Ne, uint16(tx.Response.Status), mark))
		}

		finalPayload = r.Trace.Data()
		if len(finalPayload) > 0 {
			sb.WriteString(fmt.Sprintf("    + Payload: %d bytes received\n", len(finalPayload)))
			sb.WriteString(fmt.Sprintf("      Dump:    %X\n", finalPayload))
		}
		sb.WriteString("\n")
	}

	sb.WriteString("[=] FINAL OUTCOME:\n")

	if len(finalPayload) == 0 {
		sb.WriteString("    - No Data returned to parse.")
		return sb.String()
	}

	if ins := cmd.Instruction.Raw; ins != INS_SELECT && ins != INS_STATUS {
		sb.WriteString(fmt.Sprintf("    - Data: %X", finalPayload))
		return sb.String()
	}

	fcp, err := r.FCP()
	if err != nil {
		sb.WriteString(fmt.Sprintf("    - FCP Parsing Failed: %v", err))
		return sb.String()
	}
	if fcp == nil {
		sb.WriteString("    - No FCP requested.")
		return sb.String()
	}
	sb.WriteString(strings.Join(fcp.Lines(), "\n"))
	return sb.String()
}

// writeParameters decodes P1/P2 for the commands whose parameters have names.
func writeParameters(sb *strings.Builder, cmd *CommandAPDU) {
	switch cmd.Instruction.Raw {
	case INS_SELECT:
		sb.WriteString(fmt.Sprintf("    + Method:  %02X -> %s\n", cmd.P1, SelectionMethod(cmd.P1)))
		sb.WriteString(fmt.Sprintf("    + Control: %02X -> %s\n", cmd.P2, DescribeSelectP2(cmd.P2)))
	case INS_STATUS:
		sb.WriteString(fmt.Sprintf("    + Class:   %s\n", cmd.Class))
		sb.WriteString(fmt.Sprintf("    + P1:      %02X -> %s\n", cmd.P1, StatusIndication(cmd.P1)))
		sb.WriteString(fmt.Sprintf("    + P2:      %02X -> %s\n", cmd.P2, StatusContent(cmd.P2)))
	case INS_READ_RECORD:
		sfi, mode := cmd.P2>>3, ReadRecordMode(cmd.P2&0x07)

		target := "current EF"
		if sfi > 0 {
			target = fmt.Sprintf("SFI %02X (%d)", sfi, sfi)
		}
		record := fmt.Sprintf("record %d", cmd.P1)
		if cmd.P1 == 0 {
			record = "current record"
		}

		sb.WriteString(fmt.Sprintf("    + Target:  %s\n", target))
		sb.WriteString(fmt.Sprintf("    + P1:      %02X -> %s\n", cmd.P1, record))
		sb.WriteString(fmt.Sprintf("    + Mode:    %02X -> %s\n", byte(mode), mode))
	default:
		sb.WriteString(fmt.Sprintf("    + Class:   %s\n", cmd.Class))
		sb.WriteString(fmt.Sprintf("    + Params:  P1=%02X P2=%02X\n", cmd.P1, cmd.P2))
	}
}
