package modem

import (
	"context"
	"sync"
	"time"
)

// Modem is the package's façade: it owns the command queue shared
// between Sender and Worker and exposes the high-level operations a
// caller needs (sending SMS, querying signal/network/battery/GNSS
// state) without requiring callers to touch OutgoingCommand directly.
type Modem struct {
	cfg    Config
	worker *Worker
	sender *Sender

	closeOnce sync.Once
	closed    chan struct{}
}

// New validates cfg, applies its defaults, and wires a Worker and
// Sender around a freshly created command queue. It does not dial;
// call Loop to start the connect/init/serve/reconnect cycle.
func New(ctx context.Context, cfg Config) (*Modem, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	queue := make(chan OutgoingCommand, cfg.CommandChannelCapacity)
	return &Modem{
		cfg:    cfg,
		worker: NewWorker(cfg, queue),
		sender: NewSender(queue, cfg.ATTimeout),
		closed: make(chan struct{}),
	}, nil
}

// Loop runs the Worker until ctx is canceled, reconnecting after
// failures. Intended to run in its own goroutine.
func (m *Modem) Loop(ctx context.Context) error {
	defer m.closeOnce.Do(func() { close(m.closed) })
	return m.worker.Run(ctx)
}

// Incoming exposes the Worker's unsolicited-message stream, which the
// Receiver drains.
func (m *Modem) Incoming() <-chan ModemIncomingMessage {
	return m.worker.Incoming()
}

// Close marks the Modem closed, so that later sends and queries fail
// with ErrQueueClosed. It neither stops Loop nor waits for it to exit.
// Safe to call multiple times and safe to call even if Loop was never
// started.
func (m *Modem) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *Modem) isClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

// SendSMS sends a plain-text message with the package's default
// timeout and no flash/validity options. It reports only success or
// failure; use SendSMSAdvanced to get the parts' TP-Message-References.
func (m *Modem) SendSMS(ctx context.Context, to, text string) error {
	if m.isClosed() {
		return ErrQueueClosed
	}
	_, err := m.sender.Send(ctx, SmsOutgoingMessage{To: to, Content: text})
	return err
}

// SendSMSAdvanced sends msg as-is, returning every part's reference.
func (m *Modem) SendSMSAdvanced(ctx context.Context, msg SmsOutgoingMessage) ([]uint8, error) {
	if m.isClosed() {
		return nil, ErrQueueClosed
	}
	return m.sender.Send(ctx, msg)
}

func (m *Modem) query(ctx context.Context, kind RequestKind, timeout time.Duration) (ModemResponse, error) {
	if m.isClosed() {
		return ModemResponse{}, ErrQueueClosed
	}
	cmd := OutgoingCommand{
		Sequence: NextCommandSequence(),
		Request:  ModemRequest{Kind: kind},
		Timeout:  timeout,
		reply:    newReplySink(),
	}
	select {
	case m.worker.commandQueue <- cmd:
	default:
		return ModemResponse{}, ErrQueueFull
	}
	return awaitReply(ctx, cmd.reply, cmd.GetRequestTimeout()+time.Second)
}

// GetNetworkStatus issues AT+CREG? and returns the parsed result.
func (m *Modem) GetNetworkStatus(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetNetworkStatus, 0)
}

// GetSignalStrength issues AT+CSQ and returns the parsed result.
func (m *Modem) GetSignalStrength(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetSignalStrength, 0)
}

// GetNetworkOperator issues AT+COPS? and returns the parsed result.
func (m *Modem) GetNetworkOperator(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetNetworkOperator, 0)
}

// GetServiceProvider issues AT+CSPN? and returns the parsed result.
func (m *Modem) GetServiceProvider(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetServiceProvider, 0)
}

// GetBatteryLevel issues AT+CBC and returns the parsed result.
func (m *Modem) GetBatteryLevel(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetBatteryLevel, 0)
}

// GetGnssStatus issues AT+CGPSSTATUS? and returns the parsed result.
func (m *Modem) GetGnssStatus(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetGnssStatus, 0)
}

// GetGnssLocation issues AT+CGNSINF and returns the parsed result.
func (m *Modem) GetGnssLocation(ctx context.Context) (ModemResponse, error) {
	return m.query(ctx, RequestGetGnssLocation, 0)
}
