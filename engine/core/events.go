package core

// EventContext carries a fixed-size payload alongside every fired event.
// Senders pick whichever view matches the data; listeners read the same one.
type EventContext struct {
	Data struct {
		I64 [2]int64
		U64 [2]uint64
		F64 [2]float64

		I32 [4]int32
		U32 [4]uint32
		F32 [4]float32

		I16 [8]int16
		U16 [8]uint16

		I8 [16]int8
		U8 [16]uint8

		// Str is for out-of-band payloads such as file paths. Not part of
		// the fixed 128 bytes.
		Str string
	}
}

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * u16 width = data.data.u16[0];
	 * u16 height = data.data.u16[1];
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x02

	// The swapchain was destroyed and rebuilt.
	/* Context usage:
	 * u16 width = data.data.u16[0];
	 * u16 height = data.data.u16[1];
	 */
	EVENT_CODE_SWAPCHAIN_RECREATED SystemEventCode = 0x03

	// A file under the asset root changed on disk.
	/* Context usage:
	 * str path = data.data.str;
	 */
	EVENT_CODE_ASSET_MODIFIED SystemEventCode = 0x04

	// Toggles debug output (allocator stats dump, frame metrics).
	EVENT_CODE_DEBUG_TOGGLE SystemEventCode = 0x05

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listenerInst interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

// EventBus dispatches events to registered listeners. It is owned by the
// engine context and passed to every subsystem that needs it; it is not
// safe for concurrent use, matching the single-threaded driving model.
type EventBus struct {
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

// Register adds a listener for the given code. Duplicate listener
// registrations for the same code are rejected and return false.
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	for _, e := range eb.registered[code] {
		if e.listener == listener {
			LogWarn("event listener already registered for code %#02x", code)
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

// Unregister removes the listener for the given code. Returns false if no
// matching registration is found.
func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

// Fire delivers the event to listeners of the given code in registration
// order. A listener returning true marks the event handled and stops
// delivery. Returns true if any listener handled it.
func (eb *EventBus) Fire(code SystemEventCode, sender interface{}, context EventContext) bool {
	for _, e := range eb.registered[code] {
		if e.callback(code, sender, e.listener, context) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration. Objects pointed to are destroyed on
// their own.
func (eb *EventBus) Shutdown() {
	eb.registered = make(map[SystemEventCode][]*registeredEvent)
}
