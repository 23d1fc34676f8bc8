package iso7816

import (
	"bytes"
	"fmt"
)

// Transaction is one command and the card's answer to it.
type Transaction struct {
	Command  *CommandAPDU
	Response *ResponseAPDU
}

// NewTransaction pairs cmd with the raw answer. An answer shorter than a status word
// leaves Response nil and is returned as an error.
func NewTransaction(cmd *CommandAPDU, raw []byte) (Transaction, error) {
	resp, err := ParseResponseAPDU(raw)
	if err != nil {
		return Transaction{Command: cmd}, fmt.Errorf("%s: %w", cmd.Instruction.Raw.Command(), err)
	}
	return Transaction{Command: cmd, Response: resp}, nil
}

// IsSuccess reports whether the answer ended normally.
func (t *Transaction) IsSuccess() bool {
	return t.Response != nil && t.Response.Status.IsSuccess()
}

// Trace is every transaction one logical command took: the command itself, then the
// GET RESPONSE and Le corrections a Client issued for it.
type Trace []Transaction

// Last returns the final transaction, nil for an empty trace.
func (t Trace) Last() *Transaction {
	if len(t) == 0 {
		return nil
	}
	return &t[len(t)-1]
}

// IsSuccess reports the outcome of the final transaction.
func (t Trace) IsSuccess() bool {
	last := t.Last()
	return last != nil && last.IsSuccess()
}

// Status returns the final status word, 0 when the trace holds no answer.
func (t Trace) Status() StatusWord {
	last := t.Last()
	if last == nil || last.Response == nil {
		return 0
	}
	return last.Response.Status
}

// Data joins the data the card returned along a GET RESPONSE chain. The data of
// answers that a Le correction replaced are left out.
func (t Trace) Data() []byte {
	var buf bytes.Buffer
	for i, tx := range t {
		if tx.Response == nil {
			continue
		}
		if i+1 < len(t) && tx.Response.Status.SW1() == 0x6C {
			continue
		}
		buf.Write(tx.Response.Data)
	}
	return buf.Bytes()
}
