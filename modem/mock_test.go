package modem_test

import (
	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/smsgw/modem"
)

// MockSequenceBuilder accumulates the ordered Write/Read expectations
// for one connect-and-initialize cycle, so individual tests only need
// to describe what happens after the modem comes Online.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{transport: transport}
}

func (b *MockSequenceBuilder) step(wire, reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(wire)).Return(len(wire), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, reply), nil
		}),
	)
	return b
}

// Probe represents the initial bare "AT" liveness check.
func (b *MockSequenceBuilder) Probe() *MockSequenceBuilder {
	return b.step("AT\r\n", "OK\r\n")
}

// Init represents the full PDU-mode initialization sequence the Worker
// walks on every successful connect.
func (b *MockSequenceBuilder) Init() *MockSequenceBuilder {
	b.step("ATZ\r\n", "OK\r\n")
	b.step("ATE0\r\n", "OK\r\n")
	b.step("AT+CMGF=0\r\n", "OK\r\n")
	b.step(`AT+CSCS="GSM"`+"\r\n", "OK\r\n")
	b.step("AT+CNMI=2,2,0,1,0\r\n", "OK\r\n")
	b.step("AT+CSMP=49,167,0,0\r\n", "OK\r\n")
	b.step(`AT+CPMS="ME","ME","ME"`+"\r\n", "OK\r\n")
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// initMockCalls is the one-line helper every test reaches for: the
// ordered Write/Read pairs for a probe followed by full init.
func initMockCalls(transport *modem.MockTransport) []any {
	return NewMockSequence(transport).Probe().Init().Build()
}
