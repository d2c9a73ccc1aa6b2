// Package at provides parsing and tokenization utilities for AT command protocol
// communication with GSM modems.
//
// AT commands are the standard interface for controlling GSM/cellular modems,
// originally developed for Hayes-compatible modems. This package handles the
// text-based request-response protocol, including proper line termination,
// response classification, and special cases like SMS text entry prompts.
//
// # Protocol Overview
//
// AT commands follow a structured pattern:
//  1. Commands are sent with CRLF termination
//  2. Responses arrive as CRLF-terminated lines
//  3. Commands conclude with final result codes (OK, ERROR, etc.)
//  4. Intermediate data may be returned before the final result
//  5. Unsolicited Result Codes (URCs) can arrive asynchronously
//
// # No Echo Mode
//
// This package assumes "No Echo" mode (ATE0) where commands are not echoed
// back by the modem.
//
// # Usage Example
//
//	lb := at.NewLineBuffer(4096)
//	for _, ev := range lb.Process(chunk) {
//		switch ev.Kind {
//		case at.LineEventLine:
//			// classify and route ev.Text
//		case at.LineEventPrompt:
//			// SMS text entry mode
//		}
//	}
//
// # Key Components
//
//   - Constants: Standard AT command strings and response codes
//   - LineBuffer: incremental, multi-call-safe line/prompt tokenizer
//   - Parsers: typed decoders for specific AT command responses
//   - ResponseType: Enum for different kinds of modem responses
package at

const (
	// Terminal Control
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1A"

	// Response Codes
	OK         = "OK"
	ERROR      = "ERROR"
	NoCarrier  = "NO CARRIER"
	NoDialtone = "NO DIALTONE"
	Busy       = "BUSY"
	NoAnswer   = "NO ANSWER"
	CmeError   = "+CME ERROR:"
	CmsError   = "+CMS ERROR:"
	SimReady   = "+CPIN: READY"
	SimPin     = "+CPIN: SIM PIN"

	// Commands
	CmdAt            = "AT"
	CmdEchoOff       = "ATE0"
	CmdSetTextMode   = "AT+CMGF=1"
	CmdVerboseErrors = "AT+CMEE=2"
	CmdSimStatus     = "AT+CPIN?"

	// URCs (Unsolicited Result Codes)
	UrcNewMsg         = "+CMTI:"
	UrcMessageReport  = "+CDSI:"
	UrcSignalStrength = "+CSQ:"
	UrcCall           = "RING"

	// Unsolicited message headers recognized by the state machine.
	// These take priority over command-reply classification regardless
	// of whether a command is currently in flight.
	HeaderIncomingSMS     = "+CMT"
	HeaderDeliveryReport  = "+CDS"
	HeaderNetworkStatus   = "+CGREG:"
	HeaderGNSSUnsolicited = "+UGNSINF"

	// Exact-match shutdown notifications.
	ShutdownNormalPowerDown = "NORMAL POWER DOWN"
	ShutdownPowerDown       = "POWER DOWN"
	ShutdownShutdown        = "SHUTDOWN"
	ShutdownPoweringDown    = "POWERING DOWN"

	// Command-family reply markers recognized while a command is in
	// flight (in addition to OK/ERROR/+CME ERROR:/+CMS ERROR:).
	FamilyCMGS       = "+CMGS:"
	FamilyCSQ        = "+CSQ:"
	FamilyCREG       = "+CREG:"
	FamilyCOPS       = "+COPS:"
	FamilyCSPN       = "+CSPN:"
	FamilyCBC        = "+CBC:"
	FamilyCGPSStatus = "+CGPSSTATUS:"
	FamilyCGNSINF    = "+CGNSINF:"
	FamilyUGNSINF    = "+UGNSINF:"
)

// IsShutdownNotice reports whether line is one of the exact shutdown
// strings the modem sends before going offline.
func IsShutdownNotice(line string) bool {
	switch line {
	case ShutdownNormalPowerDown, ShutdownPowerDown, ShutdownShutdown, ShutdownPoweringDown:
		return true
	default:
		return false
	}
}

// CommandFamilyMarkers lists every reply-family marker the state
// machine classifies as a command response while a command is in
// flight, in addition to the bare result codes (OK, ERROR, +CME ERROR:,
// +CMS ERROR:). Whether a line completes the command is decided
// separately by the command's state.
var CommandFamilyMarkers = []string{
	FamilyCMGS, FamilyCSQ, FamilyCREG, FamilyCOPS, FamilyCSPN,
	FamilyCBC, FamilyCGPSStatus, FamilyCGNSINF, FamilyUGNSINF,
}

// ResponseType classifies the nature of AT command modem responses for parsing
// and flow control purposes.
//
// AT command communication follows a structured protocol where different response
// types require different handling strategies. This classification enables the
// command processor to determine appropriate next actions, such as continuing
// to read more data, processing intermediate results, or concluding command
// execution.
type ResponseType int

const (
	// TypeFinal indicates command completion responses that terminate AT command
	// execution. These responses signal that no additional output should be
	// expected for the current command.
	//
	// Examples: "OK", "ERROR", "+CME ERROR: 30", "NO CARRIER"
	TypeFinal ResponseType = iota

	// TypeURC represents Unsolicited Result Codes - asynchronous notifications
	// from the modem that are not direct responses to AT commands. These can
	// arrive at any time and should be processed separately from command flows.
	//
	// Examples: "+CMTI: \"SM\",1" (new SMS), "RING" (incoming call)
	TypeURC

	// TypeData represents intermediate command output that provides requested
	// information but does not indicate command completion. Commands may return
	// multiple TypeData responses followed by a TypeFinal response.
	//
	// Examples: "+CSQ: 15,99" (signal quality), "+CPIN: READY" (SIM status)
	TypeData

	// TypePrompt indicates the SMS text input prompt ("> ") which signals
	// that the modem is ready to accept SMS message content. This requires
	// special handling as it's neither command output nor a final response.
	//
	// Example: "> " (SMS composition prompt)
	TypePrompt
)
