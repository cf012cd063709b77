package pca9641

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControl_Connected(t *testing.T) {
	tests := []struct {
		given    byte
		expected bool
	}{
		{0x00, false},
		{ctlLockReq, false},
		{ctlLockReq | ctlLockGrant, false},
		{ctlLockReq | ctlLockGrant | ctlBusConnect, true},
		{ctlLockReq | ctlLockGrant | ctlBusConnect | ctlIdleTimerDis, true},
		{ctlLockGrant | ctlBusConnect, false},
		{0xFF, true},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x", test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, connected(test.given))
		})
	}
}

func TestControl_Requested(t *testing.T) {
	tests := []struct {
		given    byte
		expected bool
	}{
		{0x00, false},
		{ctlLockReq, true},
		{ctlLockReq | ctlIdleTimerDis, true},
		{ctlLockReq | ctlPriority, true},
		{ctlLockReq | ctlLockGrant, false},
		{ctlLockReq | ctlLockGrant | ctlBusConnect, false},
		{ctlBusConnect, false},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x", test.given), func(t *testing.T) {
			assert.Equal(t, test.expected, requested(test.given))
		})
	}
}

func TestStatus_Decode(t *testing.T) {
	tests := []struct {
		given    byte
		expected Status
	}{
		{0x00, Status{}},
		{statOtherLock, Status{OtherLock: true, Raw: statOtherLock}},
		{statBusHung | statBusInitFail, Status{BusHung: true, BusInitFail: true, Raw: 0x06}},
		{statSCLIO | statSDAIO, Status{SCLHigh: true, SDAHigh: true, Raw: 0xC0}},
		{statMboxEmpty | statMboxFull | statTestInt, Status{MboxEmpty: true, MboxFull: true, TestInt: true, Raw: 0x38}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#02x", test.given), func(t *testing.T) {
			test.expected.Raw = test.given
			assert.Equal(t, test.expected, decodeStatus(test.given))
		})
	}
}
