// Package router implements the name→handler table: stable 32-bit name
// hashing, argument decoding, and uniform success/failure reply encoding.
//
// Routing is stateless between calls, so a *Table is safe to invoke
// concurrently from many reactor goroutines once registration has
// finished; individual handlers must themselves be safe for concurrent
// invocation, since two different connections on two different reactors
// may call the same handler at once.
package router

import (
	"fmt"
	"reflect"
	"sync"

	"rpccore/codec"
	"rpccore/wire"
)

// maxResultSize is the largest reply body the wire format can carry
// (body_len is a uint32).
const maxResultSize = 1<<32 - 1

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// callable is the reflection metadata needed to decode arguments for, and
// invoke, a single registered procedure.
type callable struct {
	name     string
	fn       reflect.Value
	argTypes []reflect.Type
	hasValue bool
	hasError bool
}

func newCallable(name string, fn reflect.Value) (*callable, error) {
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("router: %s: not a function", name)
	}
	typ := fn.Type()
	if typ.IsVariadic() {
		return nil, fmt.Errorf("router: %s: variadic handlers are not supported", name)
	}

	argTypes := make([]reflect.Type, typ.NumIn())
	for i := range argTypes {
		argTypes[i] = typ.In(i)
	}

	var hasValue, hasError bool
	switch typ.NumOut() {
	case 0:
	case 1:
		if typ.Out(0) == errorType {
			hasError = true
		} else {
			hasValue = true
		}
	case 2:
		if typ.Out(1) != errorType {
			return nil, fmt.Errorf("router: %s: two-return handlers must return (value, error)", name)
		}
		hasValue = true
		hasError = true
	default:
		return nil, fmt.Errorf("router: %s: too many return values", name)
	}

	return &callable{name: name, fn: fn, argTypes: argTypes, hasValue: hasValue, hasError: hasError}, nil
}

// invoke decodes payload into the handler's declared argument types, calls
// the handler, and encodes the outcome as a reply tuple. It never panics:
// a decode failure, a handler error, or a recovered panic inside the
// handler all become a FAIL reply so the connection survives.
func (c *callable) invoke(payload []byte) []byte {
	argVals := make([]reflect.Value, len(c.argTypes))
	argPtrs := make([]any, len(c.argTypes))
	for i, t := range c.argTypes {
		p := reflect.New(t)
		argVals[i] = p.Elem()
		argPtrs[i] = p.Interface()
	}

	if err := codec.DecodeTuple(payload, argPtrs...); err != nil {
		return failReply(err.Error())
	}

	out, err := c.callSafely(argVals)
	if err != nil {
		return failReply(err.Error())
	}

	if c.hasError {
		errVal := out[len(out)-1]
		if !errVal.IsNil() {
			return failReply(errVal.Interface().(error).Error())
		}
	}

	var reply []byte
	var encErr error
	if c.hasValue {
		reply, encErr = codec.EncodeOKValue(out[0].Interface())
	} else {
		reply, encErr = codec.EncodeOKVoid()
	}
	if encErr != nil {
		return failReply("encode error: " + encErr.Error())
	}
	if len(reply) > maxResultSize {
		return failReply("result too long")
	}
	return reply
}

// callSafely invokes the handler, converting any panic into an error so
// that an abnormal handler return never tears down the connection.
func (c *callable) callSafely(args []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	out = c.fn.Call(args)
	return out, nil
}

func failReply(msg string) []byte {
	b, err := codec.EncodeFail(msg)
	if err != nil {
		// A string can always be msgpack-encoded; this path is unreachable
		// in practice, but Route must still return well-formed bytes.
		b, _ = codec.EncodeTuple(codec.StatusFail, "")
	}
	return b
}

// Table maps a 32-bit name hash to the callable registered under it, and
// separately remembers the original name for diagnostics. Its lifetime is
// the server's lifetime; a repeated registration under the same name
// replaces the previous binding.
type Table struct {
	mu       sync.RWMutex
	handlers map[uint32]*callable
	names    map[uint32]string
}

// NewTable creates an empty handler table.
func NewTable() *Table {
	return &Table{
		handlers: make(map[uint32]*callable),
		names:    make(map[uint32]string),
	}
}

// Register binds name to fn. fn may declare any number of typed
// parameters and return either nothing, a single value, a single error,
// or (value, error). Overloading by name is not supported: the last
// registration under a given name wins.
func (t *Table) Register(name string, fn any) error {
	c, err := newCallable(name, reflect.ValueOf(fn))
	if err != nil {
		return err
	}
	t.store(name, c)
	return nil
}

// RegisterMethod binds name to methodName looked up on receiver (typically
// a pointer to a struct), the same way Register binds a free function.
func (t *Table) RegisterMethod(name, methodName string, receiver any) error {
	v := reflect.ValueOf(receiver)
	m := v.MethodByName(methodName)
	if !m.IsValid() {
		return fmt.Errorf("router: %T has no method %q", receiver, methodName)
	}
	c, err := newCallable(name, m)
	if err != nil {
		return err
	}
	t.store(name, c)
	return nil
}

func (t *Table) store(name string, c *callable) {
	id := wire.NameHash(name)
	t.mu.Lock()
	t.handlers[id] = c
	t.names[id] = name
	t.mu.Unlock()
}

// Name returns the procedure name registered under functionID, for
// diagnostics/logging.
func (t *Table) Name(functionID uint32) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.names[functionID]
	return name, ok
}

// Route looks up functionID, decodes payload into the handler's declared
// arguments, invokes it, and returns the encoded reply. A miss encodes
// (FAIL, "unknown function"); Route itself never returns an error because
// every outcome — success, decode failure, handler failure — is carried
// in-band in the returned bytes.
func (t *Table) Route(functionID uint32, payload []byte) []byte {
	t.mu.RLock()
	c, ok := t.handlers[functionID]
	t.mu.RUnlock()
	if !ok {
		return failReply("unknown function")
	}
	return c.invoke(payload)
}
