package sim

// HookPosBufPush marks when an element is pushed into the buffer.
var HookPosBufPush = &HookPos{Name: "BufferPush"}

// HookPosBufPop marks when an element is popped from the buffer.
var HookPosBufPop = &HookPos{Name: "BufferPop"}

// A Buffer is a bounded FIFO queue. Devices use buffers as transmit queues.
type Buffer interface {
	Named
	Hookable

	CanPush() bool

	// Push panics if the buffer is full. Callers that can drop elements
	// check CanPush first.
	Push(e interface{})

	// Pop and Peek return nil if the buffer is empty.
	Pop() interface{}
	Peek() interface{}

	Capacity() int
	Size() int

	// HighWater returns the largest size the buffer has reached.
	HighWater() int

	// Clear removes all elements without invoking hooks.
	Clear()
}

// NewBuffer creates a buffer that holds at most capacity elements.
func NewBuffer(name string, capacity int) Buffer {
	NameMustBeValid(name)

	if capacity <= 0 {
		panic("buffer capacity must be positive")
	}

	return &ringBuffer{
		name:  name,
		slots: make([]interface{}, capacity),
	}
}

// ringBuffer keeps its elements in a fixed slice. head is the index of the
// oldest element.
type ringBuffer struct {
	HookableBase

	name      string
	slots     []interface{}
	head      int
	size      int
	highWater int
}

func (b *ringBuffer) Name() string {
	return b.name
}

func (b *ringBuffer) CanPush() bool {
	return b.size < len(b.slots)
}

func (b *ringBuffer) Push(e interface{}) {
	if !b.CanPush() {
		panic("buffer " + b.name + " overflow")
	}

	b.slots[(b.head+b.size)%len(b.slots)] = e
	b.size++

	if b.size > b.highWater {
		b.highWater = b.size
	}

	b.invoke(HookPosBufPush, e)
}

func (b *ringBuffer) Pop() interface{} {
	if b.size == 0 {
		return nil
	}

	e := b.slots[b.head]
	b.slots[b.head] = nil
	b.head = (b.head + 1) % len(b.slots)
	b.size--

	b.invoke(HookPosBufPop, e)

	return e
}

func (b *ringBuffer) invoke(pos *HookPos, e interface{}) {
	if b.NumHooks() == 0 {
		return
	}

	b.InvokeHook(HookCtx{Domain: b, Pos: pos, Item: e})
}

func (b *ringBuffer) Peek() interface{} {
	if b.size == 0 {
		return nil
	}

	return b.slots[b.head]
}

func (b *ringBuffer) Capacity() int {
	return len(b.slots)
}

func (b *ringBuffer) Size() int {
	return b.size
}

func (b *ringBuffer) HighWater() int {
	return b.highWater
}

func (b *ringBuffer) Clear() {
	clear(b.slots)
	b.head = 0
	b.size = 0
}
