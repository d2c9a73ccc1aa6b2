package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jpillora/backoff"

	"i4.energy/across/smsgw/at"
)

// initCommand is one step of the power-up initialization sequence: the
// AT command to send and the prefix its final line must carry before
// the sequence advances.
type initCommand struct {
	wire       string
	mustPrefix string
}

func initSequence(cfg Config) []initCommand {
	seq := []initCommand{
		{wire: "ATZ\r\n", mustPrefix: at.OK},
		{wire: "ATE0\r\n", mustPrefix: at.OK},
		{wire: "AT+CMGF=0\r\n", mustPrefix: at.OK},
		{wire: `AT+CSCS="GSM"` + "\r\n", mustPrefix: at.OK},
		{wire: "AT+CNMI=2,2,0,1,0\r\n", mustPrefix: at.OK},
		{wire: "AT+CSMP=49,167,0,0\r\n", mustPrefix: at.OK},
		{wire: `AT+CPMS="ME","ME","ME"` + "\r\n", mustPrefix: at.OK},
	}
	if cfg.GNSSEnabled {
		seq = append(seq,
			initCommand{wire: "AT+CGNSPWR=1\r\n", mustPrefix: at.OK},
			initCommand{wire: "AT+CGPSRST=0\r\n", mustPrefix: at.OK},
			initCommand{wire: fmt.Sprintf("AT+CGNSURC=%d\r\n", cfg.GNSSReportInterval), mustPrefix: at.OK},
		)
	}
	return seq
}

// Worker owns the serial port end to end: exclusive reader and writer,
// sole mutator of the StateMachine, LineBuffer, and ModemStatus.
type Worker struct {
	cfg          Config
	transport    Transport
	sm           *StateMachine
	lineBuf      *at.LineBuffer
	status       ModemStatus
	commandQueue chan OutgoingCommand
	incoming     chan ModemIncomingMessage
	logger       *slog.Logger
}

// NewWorker builds a Worker around an already-validated Config. The
// Worker does not dial until Run is called.
func NewWorker(cfg Config, commandQueue chan OutgoingCommand) *Worker {
	return &Worker{
		cfg:          cfg,
		sm:           NewStateMachine(),
		lineBuf:      at.NewLineBuffer(cfg.LineBufferSize),
		status:       StatusStartup,
		commandQueue: commandQueue,
		incoming:     make(chan ModemIncomingMessage, 256),
		logger:       cfg.Logger,
	}
}

// Incoming returns the channel the Receiver drains for every
// ModemIncomingMessage the Worker produces.
func (w *Worker) Incoming() <-chan ModemIncomingMessage {
	return w.incoming
}

// Status returns the Worker's current lifecycle status. Safe to call
// from other goroutines only after Run has returned or between runs;
// Run itself is the sole mutator while active.
func (w *Worker) Status() ModemStatus {
	return w.status
}

// Run drives connect/init/serve/reconnect until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	b := &backoff.Backoff{Min: time.Second, Max: 30 * time.Second}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if w.status == StatusOffline {
		drainOffline:
			for {
				select {
				case cmd := <-w.commandQueue:
					cmd.Respond(errorResponse(ErrModemOffline.Error()))
				default:
					break drainOffline
				}
			}
		}
		if err := w.connectAndInit(ctx); err != nil {
			w.logger.Warn("modem init failed", "err", err)
			w.setStatus(StatusOffline)
			if w.cfg.PowerControlRepowerOnFail {
				w.repower()
			}
			wait := b.Duration()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		b.Reset()
		w.setStatus(StatusOnline)

		err := w.serve(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warn("modem connection lost", "err", err)
		w.setStatus(StatusOffline)
	}
}

// connectAndInit dials the transport, probes with a bare AT, optionally
// power-cycles on probe failure, and walks the init sequence.
func (w *Worker) connectAndInit(ctx context.Context) error {
	transport, err := w.cfg.Dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	w.transport = transport
	w.lineBuf.Clear()
	w.sm = NewStateMachine()

	if _, err := w.runBlocking(ctx, "AT\r\n", at.OK); err != nil {
		if w.cfg.PowerControlRepowerOnFail {
			w.repower()
		}
		if _, err := w.runBlocking(ctx, "AT\r\n", at.OK); err != nil {
			return fmt.Errorf("probe: %w", err)
		}
	}

	for _, step := range initSequence(w.cfg) {
		if _, err := w.runBlocking(ctx, step.wire, step.mustPrefix); err != nil {
			return fmt.Errorf("init %q: %w", step.wire, err)
		}
	}
	return nil
}

func (w *Worker) repower() {
	if err := w.cfg.PowerController.Off(); err != nil {
		w.logger.Warn("power off failed", "err", err)
		return
	}
	time.Sleep(4 * time.Second)
	if err := w.cfg.PowerController.On(); err != nil {
		w.logger.Warn("power on failed", "err", err)
	}
}

// runBlocking writes wire and reads lines until one carries mustPrefix
// or ctx's init timeout elapses. Used only during connectAndInit, before
// the main loop and its StateMachine take over.
func (w *Worker) runBlocking(ctx context.Context, wire, mustPrefix string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.InitTimeout)
	defer cancel()

	if _, err := w.transport.Write([]byte(wire)); err != nil {
		return "", err
	}

	buf := make([]byte, w.cfg.ReadBufferSize)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		n, err := w.transport.Read(buf)
		if n > 0 {
			for _, ev := range w.lineBuf.Process(buf[:n]) {
				if ev.Kind != at.LineEventLine {
					continue
				}
				if hasAnyPrefix(ev.Text, []string{mustPrefix}) {
					return ev.Text, nil
				}
				if ev.Text == at.ERROR || hasAnyPrefix(ev.Text, []string{at.CmeError, at.CmsError}) {
					return "", fmt.Errorf("modem replied %q", ev.Text)
				}
			}
		}
		if err != nil {
			return "", err
		}
	}
}

// serve runs the prioritized main loop until the transport closes, an
// unrecoverable read error occurs, or ctx is canceled.
func (w *Worker) serve(ctx context.Context) error {
	readCh := w.startReader(ctx)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			w.shutdown(ctx)
			return ctx.Err()
		}

		// Priority (ii): drain a queued command first, but only while
		// the state machine is idle (backpressure).
		var cmdCh chan OutgoingCommand
		if w.sm.CanAcceptCommand() {
			cmdCh = w.commandQueue
		}
		select {
		case cmd := <-cmdCh:
			w.startCommand(cmd)
			continue
		default:
		}

		// Priority (iii): drain any serial bytes already buffered.
		select {
		case r := <-readCh:
			if err := w.handleRead(r); err != nil {
				return err
			}
			continue
		default:
		}

		// Nothing immediately ready: block on whichever case fires
		// next, still respecting the command-queue idle gate.
		select {
		case <-ctx.Done():
			w.shutdown(ctx)
			return ctx.Err()
		case cmd := <-cmdCh:
			w.startCommand(cmd)
		case r := <-readCh:
			if err := w.handleRead(r); err != nil {
				return err
			}
		case now := <-ticker.C:
			effects, cleared := w.sm.HandleCommandTimeout(now)
			w.applyEffects(effects)
			if cleared {
				w.lineBuf.Clear()
			}
		}
	}
}

func (w *Worker) startCommand(cmd OutgoingCommand) {
	w.applyEffects(w.sm.StartCommand(cmd, time.Now()))
}

func (w *Worker) handleRead(r readResult) error {
	if r.err != nil {
		return r.err
	}
	for _, ev := range w.lineBuf.Process(r.data) {
		w.applyEffects(w.sm.TransitionLine(ev))
	}
	return nil
}

type readResult struct {
	data []byte
	err  error
}

func (w *Worker) startReader(ctx context.Context) <-chan readResult {
	ch := make(chan readResult)
	go func() {
		buf := make([]byte, w.cfg.ReadBufferSize)
		for {
			n, err := w.transport.Read(buf)
			if n > 0 {
				cp := make([]byte, n)
				copy(cp, buf[:n])
				select {
				case ch <- readResult{data: cp}:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				select {
				case ch <- readResult{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if n == 0 {
				select {
				case ch <- readResult{err: io.EOF}:
				case <-ctx.Done():
				}
				return
			}
		}
	}()
	return ch
}

// applyEffects executes every SideEffect the StateMachine returned from
// one transition, in order.
func (w *Worker) applyEffects(effects []SideEffect) {
	for _, eff := range effects {
		switch eff.Kind {
		case effectWrite:
			if w.status != StatusOnline {
				w.logger.Warn("dropped write while offline")
				continue
			}
			if _, err := w.transport.Write(eff.WriteBytes); err != nil {
				w.logger.Warn("write failed", "err", err)
			}
		case effectRespond:
			eff.Command.Respond(eff.Response)
		case effectEmitIncoming:
			select {
			case w.incoming <- eff.Incoming:
			default:
				w.logger.Warn("incoming queue full, dropping message", "kind", eff.Incoming.Kind)
			}
		}
	}
}

func (w *Worker) setStatus(newStatus ModemStatus) {
	previous := w.status
	w.status = newStatus
	if previous == newStatus {
		return
	}
	msg := ModemIncomingMessage{Kind: UnsolicitedModemStatusUpdate}
	msg.StatusUpdate.Previous = previous
	msg.StatusUpdate.Current = newStatus
	select {
	case w.incoming <- msg:
	default:
		w.logger.Warn("incoming queue full, dropping status update")
	}
}

// shutdown drains the command queue with a synthetic error, waits for
// in-flight I/O to settle, and resets local state. Called with ctx
// already canceled.
func (w *Worker) shutdown(ctx context.Context) {
	w.setStatus(StatusShuttingDown)
	deadline := time.NewTimer(2 * time.Second)
	defer deadline.Stop()
drain:
	for {
		select {
		case cmd := <-w.commandQueue:
			cmd.Respond(errorResponse(ErrModemShuttingDown.Error()))
		case <-deadline.C:
			break drain
		}
	}
	if w.transport != nil {
		if err := w.transport.Close(); err != nil && !errors.Is(err, io.EOF) {
			w.logger.Warn("transport close failed", "err", err)
		}
	}
	w.setStatus(StatusOffline)
	w.sm = NewStateMachine()
	w.lineBuf.Clear()
}
