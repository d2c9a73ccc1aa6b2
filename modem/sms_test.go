package modem_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"
	"i4.energy/across/smsgw/modem"
)

// startModem wires a Modem around mockDialer/mockTransport and starts
// Loop in the background, returning a func to synchronize shutdown.
func startModem(t *testing.T, mockDialer *modem.MockDialer) (*modem.Modem, func()) {
	t.Helper()

	config, err := modem.NewConfigBuilder().WithDialer(mockDialer).Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m, err := modem.New(ctx, config)
	if err != nil {
		t.Fatalf("failed to create modem: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := m.Loop(ctx); err != nil && err != context.Canceled {
			t.Logf("modem loop exited: %v", err)
		}
	}()

	return m, func() {
		cancel()
		m.Close()
		<-done
	}
}

func TestSendSMS_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := modem.NewMockTransport(ctrl)
	mockDialer := modem.NewMockDialer(ctrl)

	gomock.InOrder(
		append([]any{mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)},
			initMockCalls(mockTransport)...)...,
	)

	m, stop := startModem(t, mockDialer)
	defer stop()

	allowReply := make(chan struct{})
	allowEOF := make(chan struct{})

	mockTransport.EXPECT().Write(matchPrefix(t, "AT+CMGS=")).Return(1, nil)
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		return copy(p, "\r\n> "), nil
	})
	mockTransport.EXPECT().Write(matchCtrlZTerminated(t)).Do(func([]byte) {
		close(allowReply)
	}).Return(1, nil)
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-allowReply
		return copy(p, "\r\n+CMGS: 123\r\nOK\r\n"), nil
	})
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-allowEOF
		return 0, io.EOF
	}).AnyTimes()
	mockTransport.EXPECT().Close().Return(nil).AnyTimes()

	err := m.SendSMS(context.Background(), "+1234567890", "Hello World")
	close(allowEOF)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSendSMS_ErrorOnNoPrompt(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := modem.NewMockTransport(ctrl)
	mockDialer := modem.NewMockDialer(ctrl)

	gomock.InOrder(
		append([]any{mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)},
			initMockCalls(mockTransport)...)...,
	)

	m, stop := startModem(t, mockDialer)
	defer stop()

	allowEOF := make(chan struct{})

	mockTransport.EXPECT().Write(matchPrefix(t, "AT+CMGS=")).Return(1, nil)
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		return copy(p, "\r\nERROR\r\n"), nil
	})
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-allowEOF
		return 0, io.EOF
	}).AnyTimes()
	mockTransport.EXPECT().Close().Return(nil).AnyTimes()

	err := m.SendSMS(context.Background(), "+1234567890", "Hello World")
	close(allowEOF)
	if err == nil {
		t.Error("expected SendSMS to fail when no prompt received")
	}
}

func TestSendSMS_ErrorOnNetworkRejection(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := modem.NewMockTransport(ctrl)
	mockDialer := modem.NewMockDialer(ctrl)

	gomock.InOrder(
		append([]any{mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)},
			initMockCalls(mockTransport)...)...,
	)

	m, stop := startModem(t, mockDialer)
	defer stop()

	allowReply := make(chan struct{})
	allowEOF := make(chan struct{})

	mockTransport.EXPECT().Write(matchPrefix(t, "AT+CMGS=")).Return(1, nil)
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		return copy(p, "\r\n> "), nil
	})
	mockTransport.EXPECT().Write(matchCtrlZTerminated(t)).Do(func([]byte) {
		close(allowReply)
	}).Return(1, nil)
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-allowReply
		return copy(p, "\r\n+CMS ERROR: 500\r\n"), nil
	})
	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-allowEOF
		return 0, io.EOF
	}).AnyTimes()
	mockTransport.EXPECT().Close().Return(nil).AnyTimes()

	err := m.SendSMS(context.Background(), "+1234567890", "Hello World")
	close(allowEOF)
	if err == nil {
		t.Error("expected SendSMS to fail on network error")
	}
	if !strings.Contains(err.Error(), "+CMS ERROR: 500") {
		t.Errorf("expected original error to be surfaced: %v", err)
	}
}

func TestSendSMS_ErrorOnClosedModem(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockDialer := modem.NewMockDialer(ctrl)

	config, err := modem.NewConfigBuilder().WithDialer(mockDialer).Build()
	if err != nil {
		t.Fatalf("config build failed: %v", err)
	}
	m, err := modem.New(context.Background(), config)
	if err != nil {
		t.Fatalf("modem creation failed: %v", err)
	}

	m.Close() // Never started Loop; Close alone should reject further sends.

	if err := m.SendSMS(context.Background(), "+1234567890", "test"); err == nil {
		t.Error("expected error when sending SMS on closed modem")
	}
}

func matchPrefix(t *testing.T, prefix string) gomock.Matcher {
	t.Helper()
	return prefixMatcher{prefix}
}

type prefixMatcher struct{ prefix string }

func (m prefixMatcher) Matches(x any) bool {
	b, ok := x.([]byte)
	return ok && bytes.HasPrefix(b, []byte(m.prefix))
}

func (m prefixMatcher) String() string { return "has prefix " + m.prefix }

func matchCtrlZTerminated(t *testing.T) gomock.Matcher {
	t.Helper()
	return ctrlZMatcher{}
}

type ctrlZMatcher struct{}

func (ctrlZMatcher) Matches(x any) bool {
	b, ok := x.([]byte)
	return ok && len(b) > 0 && b[len(b)-1] == 0x1A
}

func (ctrlZMatcher) String() string { return "ends with Ctrl-Z" }
