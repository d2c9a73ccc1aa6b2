package modem

import "errors"

var (
	// ErrNilContext names the error of passing a nil context where a
	// valid one is required. SerialDialer.Dial does not return this
	// value; it reports a nil context with its own "gsm: context is nil"
	// error.
	ErrNilContext = errors.New("context is nil")

	// ErrMissingPort names the error of dialing without a port name.
	// SerialDialer.Dial does not return this value; it reports an empty
	// PortName with its own "gsm: serial port name is required" error.
	ErrMissingPort = errors.New("missing required serial port name")

	// ErrPortOpenFail names the error of a serial port that cannot be
	// opened. SerialDialer.Dial does not wrap this value; it wraps the
	// serial library's error in an "open serial port" error instead.
	ErrPortOpenFail = errors.New("failed to open serial port")

	// ErrNoDialer is returned by ConfigBuilder.Build when no Dialer was
	// configured.
	ErrNoDialer = errors.New("gsm: no dialer configured")

	// ErrNotInitialized names the error of using a Modem whose transport
	// has not been established. Nothing in this package returns it:
	// commands submitted before Loop has connected wait in the queue.
	ErrNotInitialized = errors.New("gsm: modem not initialized")

	// ErrSIMPinRequired names the error of a SIM that needs a PIN when
	// none was configured. Nothing in this package returns it: the
	// initialization sequence does not query the SIM PIN state, and
	// Config.SimPIN is not sent to the modem.
	ErrSIMPinRequired = errors.New("gsm: SIM PIN required but not configured")

	// ErrQueueFull is returned when the command queue cannot accept a new
	// command because the Worker is saturated.
	ErrQueueFull = errors.New("gsm: command queue is full")

	// ErrQueueClosed is returned when a command is submitted after the
	// Modem has been closed.
	ErrQueueClosed = errors.New("gsm: command queue is closed")

	// ErrModemOffline is the error text a queued command receives when
	// the modem is offline.
	ErrModemOffline = errors.New("Modem is offline")

	// ErrModemShuttingDown is the error text a queued command receives
	// while the modem drains for shutdown.
	ErrModemShuttingDown = errors.New("Modem is shutting down")

	// ErrCommandTimedOut is the error synthesized by the state machine
	// when a command's deadline passes with no terminal reply.
	ErrCommandTimedOut = errors.New("Command timed out!")
)
