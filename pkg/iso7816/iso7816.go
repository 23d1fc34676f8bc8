/*
Package iso7816 implements the APDU layer used to talk to a UICC once it has answered
reset, according to ISO/IEC 7816-4 and the UICC command set of ETSI TS 102 221.

It provides Command and Response structures, Status Word (SW) analysis, a Client that
hides the T=0 procedure bytes, and parsers for the File Control Parameters (FCP) a UICC
returns to SELECT and STATUS.

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - 0x91XX: Success, a proactive command of XX bytes is pending (UICC).
  - Other: Various error conditions.

# STATUS

STATUS (CLA '80', INS 'F2') reports on the current DF or application. With P1 = P2 = 00
the card returns the FCP template ('62') of the current DF; StatusCommand builds exactly
80 F2 00 00 00.

# Usage Example: Analyzing a STATUS Response

	tx, err := iso7816.NewTransaction(iso7816.StatusCommand(), raw)
	if err != nil {
	    log.Fatal(err)
	}

	result, _ := iso7816.NewResult(iso7816.Trace{tx})
	if fcp, err := result.FCP(); err == nil && fcp != nil {
	    fmt.Printf("Current DF: %X (%s)\n", fcp.FileIdentifier, fcp.Descriptor())
	}

	fmt.Println(result.Describe())
*/
package iso7816
