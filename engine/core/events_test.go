package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewEventBus()

	var order []string
	first := "first"
	second := "second"
	bus.Register(EVENT_CODE_RESIZED, &first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		order = append(order, "first")
		return false
	})
	bus.Register(EVENT_CODE_RESIZED, &second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		order = append(order, "second")
		return false
	})

	handled := bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{})
	assert.False(t, handled)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestEventBusHandledStopsDelivery(t *testing.T) {
	bus := NewEventBus()

	var reachedSecond bool
	first := "first"
	second := "second"
	bus.Register(EVENT_CODE_APPLICATION_QUIT, &first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		return true
	})
	bus.Register(EVENT_CODE_APPLICATION_QUIT, &second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		reachedSecond = true
		return false
	})

	assert.True(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
	assert.False(t, reachedSecond)
}

func TestEventBusRejectsDuplicateListener(t *testing.T) {
	bus := NewEventBus()
	listener := "only"

	cb := func(code SystemEventCode, sender, listener interface{}, data EventContext) bool { return false }
	require.True(t, bus.Register(EVENT_CODE_RESIZED, &listener, cb))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, &listener, cb))
}

func TestEventBusUnregister(t *testing.T) {
	bus := NewEventBus()
	listener := "gone"

	var fired int
	bus.Register(EVENT_CODE_RESIZED, &listener, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		fired++
		return false
	})
	bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{})

	require.True(t, bus.Unregister(EVENT_CODE_RESIZED, &listener))
	assert.False(t, bus.Unregister(EVENT_CODE_RESIZED, &listener))
	bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{})

	assert.Equal(t, 1, fired)
}

func TestEventContextCarriesPayload(t *testing.T) {
	bus := NewEventBus()
	listener := "size"

	var gotW, gotH uint16
	var gotPath string
	bus.Register(EVENT_CODE_SWAPCHAIN_RECREATED, &listener, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		gotW = data.Data.U16[0]
		gotH = data.Data.U16[1]
		gotPath = data.Data.Str
		return true
	})

	context := EventContext{}
	context.Data.U16[0] = 1920
	context.Data.U16[1] = 1080
	context.Data.Str = "textures/brick.png"
	bus.Fire(EVENT_CODE_SWAPCHAIN_RECREATED, nil, context)

	assert.Equal(t, uint16(1920), gotW)
	assert.Equal(t, uint16(1080), gotH)
	assert.Equal(t, "textures/brick.png", gotPath)
}
