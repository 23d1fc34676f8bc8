package iso7816

import (
	"errors"
	"fmt"
)

// T=0 FOLLOW-UPS:
// A card speaking T=0 cannot send data and a status in one go for every command case,
// so it asks the terminal to come back:
//
//	'61XX'  XX bytes are ready: send GET RESPONSE with Le = XX
//	'6CXX'  the Le was wrong: send the same command again with Le = XX
//
// A UICC only accepts GET RESPONSE from the ISO command set, so the fetch for a UICC
// command ('80') goes out as '00' on the same channel. Client bounds both loops: a card
// that keeps asking gets an error rather than endless traffic.

// MaxGetResponse bounds the GET RESPONSE commands issued for one command.
const MaxGetResponse = 8

var (
	ErrResponseChain = errors.New("card keeps announcing more response data")
	ErrWrongLeLoop   = errors.New("card rejected the corrected Le")
)

// Transmitter exchanges one raw C-APDU for one raw R-APDU.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client sends commands and runs their '61XX' / '6CXX' follow-ups.
type Client struct {
	Card Transmitter
}

func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits cmd and follows up on '61XX' and '6CXX'. At most one Le correction and
// MaxGetResponse fetches are made; past that the trace so far is returned with an error.
func (c *Client) Send(cmd *CommandAPDU) (Trace, error) {
	var trace Trace
	fetches, corrected := 0, false
	next := cmd

	for {
		tx, err := c.transmit(next)
		if err != nil {
			return trace, err
		}
		trace = append(trace, tx)

		sw := tx.Response.Status
		switch sw.SW1() {
		case 0x61:
			if fetches == MaxGetResponse {
				return trace, fmt.Errorf("%s: %w after %d GET RESPONSE", cmd.Instruction.Raw.Command(), ErrResponseChain, fetches)
			}
			fetches++
			next = getResponse(cmd.Class, sw.SW2())
		case 0x6C:
			if corrected {
				return trace, fmt.Errorf("%s: %w (%s)", cmd.Instruction.Raw.Command(), ErrWrongLeLoop, sw.Verbose())
			}
			corrected = true
			retry := *next
			retry.Ne = shortNe(sw.SW2())
			next = &retry
		default:
			return trace, nil
		}
	}
}

func (c *Client) transmit(cmd *CommandAPDU) (Transaction, error) {
	raw, err := cmd.Bytes()
	if err != nil {
		return Transaction{}, fmt.Errorf("encoding %s: %w", cmd.Instruction.Raw.Command(), err)
	}
	resp, err := c.Card.Transmit(raw)
	if err != nil {
		return Transaction{}, fmt.Errorf("transmission error: %w", err)
	}
	return NewTransaction(cmd, resp)
}

func getResponse(cla Class, sw2 byte) *CommandAPDU {
	ins, _ := NewInstruction(INS_GET_RESPONSE)
	return NewCommandAPDU(cla.OnSet(Interindustry), ins, 0x00, 0x00, nil, shortNe(sw2))
}
