package modem

import (
	"encoding/hex"
	"strings"
	"time"

	"i4.energy/across/smsgw/at"
)

// stateKind names the three states the StateMachine can occupy.
type stateKind int

const (
	stateIdle stateKind = iota
	stateCommand
	stateUnsolicited
)

// effectKind tags a SideEffect.
type effectKind int

const (
	effectWrite effectKind = iota
	effectRespond
	effectEmitIncoming
)

// SideEffect is one action the Worker must perform on behalf of a state
// transition. The transition function itself never performs I/O or
// fires a reply directly; it only describes what should happen, which
// is what keeps it a pure, unit-testable function (spec.md §9).
type SideEffect struct {
	Kind effectKind

	WriteBytes []byte

	Command  OutgoingCommand
	Response ModemResponse

	Incoming ModemIncomingMessage
}

// modemEventKind tags a classified line.
type modemEventKind int

const (
	evUnsolicited modemEventKind = iota
	evCommandResponse
	evData
	evPrompt
)

type modemEvent struct {
	kind            modemEventKind
	unsolicitedKind UnsolicitedMessageKind
	content         string
}

// StateMachine drives exactly one in-flight command at a time and
// classifies everything else as unsolicited. It is single-writer: only
// the Worker calls its methods.
type StateMachine struct {
	kind         stateKind
	exec         *CommandExecution
	unsolKind    UnsolicitedMessageKind
	unsolHeader  string
	interrupted  *CommandExecution
}

// NewStateMachine returns a StateMachine in the Idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{kind: stateIdle}
}

// CanAcceptCommand reports whether the Worker may pull the next command
// off the queue (spec.md §4.5's backpressure gate).
func (sm *StateMachine) CanAcceptCommand() bool {
	return sm.kind == stateIdle
}

// StartCommand transitions Idle -> Command and returns the bytes that
// must be written to the transport.
func (sm *StateMachine) StartCommand(cmd OutgoingCommand, now time.Time) []SideEffect {
	wire, initial := BuildCommand(cmd.Request)
	sm.exec = &CommandExecution{
		Context: CommandContext{
			Sequence: cmd.Sequence,
			State:    initial,
		},
		Command:  cmd,
		Deadline: now.Add(cmd.GetRequestTimeout()),
	}
	sm.kind = stateCommand
	return []SideEffect{{Kind: effectWrite, WriteBytes: wire}}
}

// HandleCommandTimeout checks the in-flight command's deadline and, if
// passed, resolves it with ErrCommandTimedOut and returns to Idle.
// cleared reports whether the caller should also clear its line buffer.
func (sm *StateMachine) HandleCommandTimeout(now time.Time) (effects []SideEffect, cleared bool) {
	if sm.kind != stateCommand || sm.exec == nil || !sm.exec.IsTimedOut(now) {
		return nil, false
	}
	exec := *sm.exec
	sm.reset()
	return []SideEffect{{
		Kind:     effectRespond,
		Command:  exec.Command,
		Response: errorResponse(ErrCommandTimedOut.Error()),
	}}, true
}

func (sm *StateMachine) reset() {
	sm.kind = stateIdle
	sm.exec = nil
	sm.interrupted = nil
	sm.unsolHeader = ""
}

// TransitionLine classifies and processes one LineEvent, returning the
// side effects the Worker must carry out.
func (sm *StateMachine) TransitionLine(ev at.LineEvent) []SideEffect {
	if ev.Kind == at.LineEventPrompt {
		return sm.processEvent(modemEvent{kind: evPrompt, content: ev.Text})
	}
	return sm.processEvent(sm.classifyLine(ev.Text))
}

// classifyLine mirrors spec.md §4.4: unsolicited headers always take
// priority; only while a command is in flight do result-code / family
// markers count as a command response; everything else is Data.
func (sm *StateMachine) classifyLine(content string) modemEvent {
	trimmed := strings.TrimSpace(content)
	if kind, ok := classifyUnsolicitedHeader(trimmed); ok {
		return modemEvent{kind: evUnsolicited, unsolicitedKind: kind, content: trimmed}
	}
	if sm.kind == stateCommand {
		if isOkOrErrorLine(trimmed) || hasAnyPrefix(trimmed, at.CommandFamilyMarkers) {
			return modemEvent{kind: evCommandResponse, content: trimmed}
		}
	}
	return modemEvent{kind: evData, content: trimmed}
}

func classifyUnsolicitedHeader(line string) (UnsolicitedMessageKind, bool) {
	switch {
	case strings.HasPrefix(line, at.HeaderIncomingSMS):
		return UnsolicitedIncomingSms, true
	case strings.HasPrefix(line, at.HeaderDeliveryReport):
		return UnsolicitedDeliveryReport, true
	case strings.HasPrefix(line, at.HeaderNetworkStatus):
		return UnsolicitedNetworkStatusChange, true
	case strings.HasPrefix(line, at.HeaderGNSSUnsolicited):
		return UnsolicitedGnssPositionReport, true
	case at.IsShutdownNotice(line):
		return UnsolicitedShuttingDown, true
	default:
		return 0, false
	}
}

func (sm *StateMachine) processEvent(ev modemEvent) []SideEffect {
	switch sm.kind {
	case stateUnsolicited:
		return sm.processUnsolicitedBody(ev)
	case stateCommand:
		return sm.processCommand(ev)
	default: // stateIdle
		return sm.processIdle(ev)
	}
}

func (sm *StateMachine) processIdle(ev modemEvent) []SideEffect {
	if ev.kind != evUnsolicited {
		// Prompt / CommandResponse / Data with nothing in flight: no
		// side effect, stay Idle.
		return nil
	}
	if !ev.unsolicitedKind.HasNextLine() {
		return []SideEffect{{
			Kind:     effectEmitIncoming,
			Incoming: ModemIncomingMessage{Kind: ev.unsolicitedKind, Header: ev.content},
		}}
	}
	sm.kind = stateUnsolicited
	sm.unsolKind = ev.unsolicitedKind
	sm.unsolHeader = ev.content
	sm.interrupted = nil
	return nil
}

func (sm *StateMachine) processUnsolicitedBody(ev modemEvent) []SideEffect {
	incoming := ModemIncomingMessage{Kind: sm.unsolKind, Header: sm.unsolHeader, Content: ev.content}
	interrupted := sm.interrupted
	if interrupted != nil {
		sm.exec = interrupted
		sm.kind = stateCommand
	} else {
		sm.reset()
	}
	return []SideEffect{{Kind: effectEmitIncoming, Incoming: incoming}}
}

func (sm *StateMachine) processCommand(ev modemEvent) []SideEffect {
	exec := sm.exec
	switch ev.kind {
	case evPrompt:
		return sm.processPrompt(exec, ev)

	case evUnsolicited:
		if !ev.unsolicitedKind.HasNextLine() {
			return []SideEffect{{
				Kind:     effectEmitIncoming,
				Incoming: ModemIncomingMessage{Kind: ev.unsolicitedKind, Header: ev.content},
			}}
		}
		sm.kind = stateUnsolicited
		sm.unsolKind = ev.unsolicitedKind
		sm.unsolHeader = ev.content
		sm.interrupted = exec
		sm.exec = nil
		return nil

	default: // evCommandResponse, evData
		exec.Context.AccumulatedResponse += ev.content + "\n"
		if !exec.Context.State.IsComplete(ev.content) {
			return nil
		}
		response := decodeFinalResponse(exec.Command.Request, exec.Context.AccumulatedResponse)
		sm.reset()
		return []SideEffect{{Kind: effectRespond, Command: exec.Command, Response: response}}
	}
}

func (sm *StateMachine) processPrompt(exec *CommandExecution, ev modemEvent) []SideEffect {
	if exec.Command.Request.Kind != RequestSendSms {
		sm.reset()
		return []SideEffect{{
			Kind:     effectRespond,
			Command:  exec.Command,
			Response: errorResponse("unexpected prompt for non-SMS command"),
		}}
	}
	pduBytes, err := hex.DecodeString(exec.Command.Request.PDUHex)
	if err != nil {
		sm.reset()
		return []SideEffect{{
			Kind:     effectRespond,
			Command:  exec.Command,
			Response: errorResponse("invalid PDU hex: " + err.Error()),
		}}
	}
	exec.Context.State = WaitingForOk
	sm.exec = exec
	return []SideEffect{{Kind: effectWrite, WriteBytes: PromptBody(exec.Command.Request, pduBytes)}}
}

func decodeFinalResponse(req ModemRequest, accumulated string) ModemResponse {
	if !strings.HasSuffix(strings.TrimSpace(accumulated), at.OK) {
		return errorResponse(strings.TrimSpace(lastNonEmptyLine(accumulated)))
	}
	resp, err := DecodeResponse(req, accumulated)
	if err != nil {
		return errorResponse(err.Error())
	}
	return resp
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return s
}
