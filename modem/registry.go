package modem

import (
	"fmt"
	"strings"

	"i4.energy/across/smsgw/at"
)

// familyCompletionPrefixes are the reply-family markers that terminate
// a WaitingForData command in addition to OK/ERROR/+CME ERROR:/+CMS ERROR:.
// Only +CMGS: applies today (it precedes the OK for an SMS send), but the
// list is kept open for additional families that may gain WaitingForData
// semantics.
var familyCompletionPrefixes = []string{at.FamilyCMGS}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func isOkOrErrorLine(line string) bool {
	switch {
	case line == at.OK, line == at.ERROR:
		return true
	case strings.HasPrefix(line, at.CmeError), strings.HasPrefix(line, at.CmsError):
		return true
	default:
		return false
	}
}

// BuildCommand maps a ModemRequest onto its wire form and the
// CommandState the state machine should enter immediately after
// writing it, per spec.md §4.3. This is the pure dispatch table: it
// performs no I/O.
func BuildCommand(req ModemRequest) (wire []byte, initial CommandState) {
	switch req.Kind {
	case RequestSendSms:
		return []byte(fmt.Sprintf("AT+CMGS=%d\r\n", req.TPDULen)), WaitingForPrompt
	case RequestGetNetworkStatus:
		return []byte("AT+CREG?\r\n"), WaitingForData
	case RequestGetSignalStrength:
		return []byte("AT+CSQ\r\n"), WaitingForData
	case RequestGetNetworkOperator:
		return []byte("AT+COPS?\r\n"), WaitingForData
	case RequestGetServiceProvider:
		return []byte("AT+CSPN?\r\n"), WaitingForData
	case RequestGetBatteryLevel:
		return []byte("AT+CBC\r\n"), WaitingForData
	case RequestGetGnssStatus:
		return []byte("AT+CGPSSTATUS?\r\n"), WaitingForData
	case RequestGetGnssLocation:
		return []byte("AT+CGNSINF\r\n"), WaitingForData
	default:
		return nil, WaitingForData
	}
}

// PromptBody returns the Ctrl-Z terminated bytes to write once the
// prompt arrives for a SendSms request, or nil if req does not use the
// prompt-continuation protocol.
func PromptBody(req ModemRequest, pduBytes []byte) []byte {
	if req.Kind != RequestSendSms {
		return nil
	}
	body := make([]byte, 0, len(pduBytes)+1)
	body = append(body, pduBytes...)
	body = append(body, 0x1A)
	return body
}

// DecodeResponse turns an accumulated, OK-terminated response buffer
// into the ModemResponse matching req's kind, per spec.md §4.4's
// "command completion" step. If the buffer does not end with OK, the
// caller should not call DecodeResponse at all but instead synthesize
// an Error directly from the buffer's content — see StateMachine.
func DecodeResponse(req ModemRequest, response string) (ModemResponse, error) {
	switch req.Kind {
	case RequestSendSms:
		r, err := at.ParseCMGS(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseSendResult, ReferenceID: r.ReferenceID}, nil

	case RequestGetNetworkStatus:
		r, err := at.ParseCREG(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseNetworkStatus, Registration: r.Registration, Technology: r.Technology}, nil

	case RequestGetSignalStrength:
		r, err := at.ParseCSQ(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseSignalStrength, RSSI: r.RSSI, BER: r.BER}, nil

	case RequestGetNetworkOperator:
		r, err := at.ParseCOPS(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseNetworkOperator, Status: r.Status, Format: r.Format, OperatorName: r.Name}, nil

	case RequestGetServiceProvider:
		name, err := at.ParseCSPN(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseServiceProvider, OperatorName: name}, nil

	case RequestGetBatteryLevel:
		r, err := at.ParseCBC(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseBatteryLevel, BatteryLevel: int(r.Status), Charge: int(r.Charge), VoltageV: r.VoltageV}, nil

	case RequestGetGnssStatus:
		fix, err := at.ParseCGPSStatus(response)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseGnssStatus, FixStatus: int(fix)}, nil

	case RequestGetGnssLocation:
		report, err := at.ParseCGNSINF(response, false)
		if err != nil {
			return ModemResponse{}, err
		}
		return ModemResponse{Kind: ResponseGnssLocation, Report: report}, nil

	default:
		return ModemResponse{}, fmt.Errorf("unknown request kind %d", req.Kind)
	}
}
