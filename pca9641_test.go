package pca9641

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockI2CBus is a scriptable raw transport built on testify/mock. Register
// reads are two bus transactions (command select, then a one byte read), so
// scripts queue read values with Once expectations in poll order.
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

const testAddr = byte(DefaultAddress)

var selectControl = []byte{0x01}

// lock request as it goes over the wire: CONTR with auto-increment, then
// LOCK_REQ|BUS_CONNECT|IDLE_TIMER_DIS and the reserve time
var requestWrite = []byte{0x81, 0x25, 0x14}

func TestAcquire_IdleFastPath(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x00}, nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, requestWrite).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x07}, nil).Once()

	arb := New(bus)
	err := arb.Acquire(context.Background())
	assert.NoError(t, err)
	bus.AssertExpectations(t)
	bus.AssertNumberOfCalls(t, "ReadFromAddr", 2)
}

func TestAcquire_AlreadyConnected(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x07}, nil).Once()

	arb := New(bus)
	assert.NoError(t, arb.Acquire(context.Background()))
	bus.AssertExpectations(t)
}

func TestAcquire_BacksOffWhileRequestPending(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil)
	// request in flight on the first poll, granted on the second; the engine
	// must not touch the control register in between
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x01}, nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x07}, nil).Once()

	arb := New(bus)
	start := time.Now()
	err := arb.Acquire(context.Background())
	elapsed := time.Since(start)
	assert.NoError(t, err)
	// the second poll only happens after the long backoff
	assert.GreaterOrEqual(t, elapsed, retryDelayLong)
	bus.AssertExpectations(t)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, testAddr, requestWrite)
}

func TestAcquire_TimesOutUnderForeignLock(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil)
	// the other master keeps its request outstanding forever
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x01}, nil)

	arb := New(bus)
	start := time.Now()
	err := arb.Acquire(context.Background())
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArbitrationTimeout)
	assert.GreaterOrEqual(t, elapsed, arbitrationTimeout)
	assert.Less(t, elapsed, arbitrationTimeout+100*time.Millisecond)
	// zero control register writes for the whole call
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, testAddr, requestWrite)
}

func TestAcquire_BusErrorShortCircuits(t *testing.T) {
	busErr := errors.New("no ack from device")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return(nil, busErr).Once()

	arb := New(bus)
	err := arb.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, busErr)
	assert.NotErrorIs(t, err, ErrArbitrationTimeout)
	bus.AssertNumberOfCalls(t, "ReadFromAddr", 1)
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, testAddr, requestWrite)
}

func TestAcquire_RequestWriteErrorShortCircuits(t *testing.T) {
	busErr := errors.New("arbitration lost")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x00}, nil).Once()
	bus.On("WriteToAddr", mock.Anything, testAddr, requestWrite).Return(busErr).Once()

	arb := New(bus)
	err := arb.Acquire(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, busErr)
	bus.AssertExpectations(t)
}

func TestAcquire_HonorsContext(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, selectControl).Return(nil)
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0x01}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	arb := New(bus)
	err := arb.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRelease_Idempotent(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x01, 0x00}).Return(nil).Twice()

	arb := New(bus)
	// releasing without holding the lock is not an error at this layer
	assert.NoError(t, arb.Release(context.Background()))
	assert.NoError(t, arb.Release(context.Background()))
	bus.AssertExpectations(t)
}

func TestRelease_BusError(t *testing.T) {
	busErr := errors.New("bus hung")
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x01, 0x00}).Return(busErr).Once()

	arb := New(bus)
	err := arb.Release(context.Background())
	assert.ErrorIs(t, err, busErr)
}

func TestInit_ForcesRelease(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(0x71), []byte{0x01, 0x00}).Return(nil).Once()

	arb := New(bus, WithAddress(0x71))
	assert.NoError(t, arb.Init(context.Background()))
	bus.AssertExpectations(t)
}

func TestStatus_ReadsStatusRegister(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, testAddr, []byte{0x02}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, testAddr, mock.Anything).Return([]byte{0xC1}, nil).Once()

	arb := New(bus)
	status, err := arb.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OtherLock)
	assert.True(t, status.SCLHigh)
	assert.True(t, status.SDAHigh)
	assert.False(t, status.BusHung)
	assert.Equal(t, byte(0xC1), status.Raw)
	bus.AssertExpectations(t)
}

func TestDo_AcquiresAndReleases(t *testing.T) {
	chip := NewMockChip()
	arb := New(chip.Port(0))
	require.NoError(t, arb.Init(context.Background()))

	var ranConnected bool
	err := arb.Do(context.Background(), func(ctx context.Context) error {
		ranConnected = chip.Owner() == 0
		return nil
	})
	assert.NoError(t, err)
	assert.True(t, ranConnected)
	assert.Equal(t, -1, chip.Owner())
}

func TestDo_ReleasesOnTransactionFailure(t *testing.T) {
	chip := NewMockChip()
	arb := New(chip.Port(0))

	txErr := errors.New("downstream device absent")
	err := arb.Do(context.Background(), func(ctx context.Context) error {
		return txErr
	})
	assert.ErrorIs(t, err, txErr)
	// the bus must not stay reserved after a failed transaction
	assert.Equal(t, -1, chip.Owner())
}
