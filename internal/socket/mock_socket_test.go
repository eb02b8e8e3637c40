package socket_test

import (
	"context"
	"reflect"

	"github.com/golang/mock/gomock"
	"github.com/rsocket/rpc-go/core"
	"github.com/rsocket/rpc-go/core/transport"
)

// MockSocket is a mock of Socket interface.
type MockSocket struct {
	ctrl     *gomock.Controller
	recorder *MockSocketMockRecorder
}

// MockSocketMockRecorder is the mock recorder for MockSocket.
type MockSocketMockRecorder struct {
	mock *MockSocket
}

// NewMockSocket creates a new mock instance.
func NewMockSocket(ctrl *gomock.Controller) *MockSocket {
	mock := &MockSocket{ctrl: ctrl}
	mock.recorder = &MockSocketMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockSocket) EXPECT() *MockSocketMockRecorder {
	return m.recorder
}

// Close mocks base method.
func (m *MockSocket) Close() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Close")
	ret0, _ := ret[0].(error)
	return ret0
}

// Close indicates an expected call of Close.
func (mr *MockSocketMockRecorder) Close() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Close", reflect.TypeOf((*MockSocket)(nil).Close))
}

// Events mocks base method.
func (m *MockSocket) Events() <-chan transport.Event {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Events")
	ret0, _ := ret[0].(<-chan transport.Event)
	return ret0
}

// Events indicates an expected call of Events.
func (mr *MockSocketMockRecorder) Events() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Events", reflect.TypeOf((*MockSocket)(nil).Events))
}

// Open mocks base method.
func (m *MockSocket) Open(ctx context.Context) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Open", ctx)
	ret0, _ := ret[0].(error)
	return ret0
}

// Open indicates an expected call of Open.
func (mr *MockSocketMockRecorder) Open(ctx interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Open", reflect.TypeOf((*MockSocket)(nil).Open), ctx)
}

// RemoteAddr mocks base method.
func (m *MockSocket) RemoteAddr() string {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RemoteAddr")
	ret0, _ := ret[0].(string)
	return ret0
}

// RemoteAddr indicates an expected call of RemoteAddr.
func (mr *MockSocketMockRecorder) RemoteAddr() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RemoteAddr", reflect.TypeOf((*MockSocket)(nil).RemoteAddr))
}

// Send mocks base method.
func (m *MockSocket) Send(frame transport.Frame) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Send", frame)
	ret0, _ := ret[0].(error)
	return ret0
}

// Send indicates an expected call of Send.
func (mr *MockSocketMockRecorder) Send(frame interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Send", reflect.TypeOf((*MockSocket)(nil).Send), frame)
}

// SetCounter mocks base method.
func (m *MockSocket) SetCounter(c *core.TrafficCounter) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "SetCounter", c)
}

// SetCounter indicates an expected call of SetCounter.
func (mr *MockSocketMockRecorder) SetCounter(c interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "SetCounter", reflect.TypeOf((*MockSocket)(nil).SetCounter), c)
}
