package router

import (
	"errors"
	"testing"

	"rpccore/codec"
	"rpccore/wire"
)

type Fun struct {
	ID   int64
	Name string
	Age  int64
}

func (f *Fun) FF(a int64, b float64) (float64, error) {
	return float64(a) + b, nil
}

func (f *Fun) Print() {}

func routeNamed(t *Table, name string, args ...any) []byte {
	payload, err := codec.EncodeTuple(args...)
	if err != nil {
		panic(err)
	}
	return t.Route(wire.NameHash(name), payload)
}

func TestRouteHelloAddsInts(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register("hello", func(a, b int64) int64 { return a + b }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	reply := routeNamed(tbl, "hello", int64(1), int64(2))
	var out int64
	status, err := codec.DecodeReply(reply, &out)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if status != codec.StatusOK || out != 3 {
		t.Fatalf("got status=%d out=%d, want OK/3", status, out)
	}
}

func TestRouteGetDummyReturnsExactString(t *testing.T) {
	tbl := NewTable()
	tbl.Register("get_dummy", func(a int64, b float64) string { return "hello" })
	reply := routeNamed(tbl, "get_dummy", int64(1), 2.0)
	var out string
	status, err := codec.DecodeReply(reply, &out)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if status != codec.StatusOK || out != "hello" {
		t.Fatalf("got status=%d out=%q, want OK/\"hello\"", status, out)
	}
}

func TestRouteGetFunDecodesRecordVerbatim(t *testing.T) {
	tbl := NewTable()
	tbl.Register("get_fun", func() Fun { return Fun{ID: 1, Name: "xiaoqie", Age: 20} })
	reply := routeNamed(tbl, "get_fun")
	var out Fun
	status, err := codec.DecodeReply(reply, &out)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if status != codec.StatusOK || out != (Fun{ID: 1, Name: "xiaoqie", Age: 20}) {
		t.Fatalf("got status=%d out=%+v", status, out)
	}
}

func TestRouteMethodHandler(t *testing.T) {
	tbl := NewTable()
	f := &Fun{}
	if err := tbl.RegisterMethod("ff", "FF", f); err != nil {
		t.Fatalf("RegisterMethod: %v", err)
	}
	reply := routeNamed(tbl, "ff", int64(1), 2.0)
	var out float64
	status, err := codec.DecodeReply(reply, &out)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if status != codec.StatusOK || out != 3.0 {
		t.Fatalf("got status=%d out=%v, want OK/3.0", status, out)
	}
}

func TestRouteVoidMethodHandler(t *testing.T) {
	tbl := NewTable()
	f := &Fun{}
	tbl.RegisterMethod("print", "Print", f)
	reply := routeNamed(tbl, "print")
	status, err := codec.DecodeReply(reply, nil)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if status != codec.StatusOK {
		t.Fatalf("got status=%d, want OK", status)
	}
}

func TestRouteUnknownFunction(t *testing.T) {
	tbl := NewTable()
	reply := routeNamed(tbl, "nope")
	_, err := codec.DecodeReply(reply, nil)
	var remErr *codec.RemoteError
	if !errors.As(err, &remErr) {
		t.Fatalf("expected *codec.RemoteError, got %T: %v", err, err)
	}
	if remErr.Message != "unknown function" {
		t.Fatalf("got message %q, want %q", remErr.Message, "unknown function")
	}
}

func TestRouteArgMismatchSurvivesConnection(t *testing.T) {
	tbl := NewTable()
	tbl.Register("hello", func(a, b int64) int64 { return a + b })

	badPayload, _ := codec.EncodeTuple("not an int", int64(2))
	reply := tbl.Route(wire.NameHash("hello"), badPayload)
	_, err := codec.DecodeReply(reply, nil)
	if err == nil {
		t.Fatalf("expected a decode-mismatch failure")
	}

	// A subsequent, well-formed call on the same table still succeeds.
	reply2 := routeNamed(tbl, "hello", int64(1), int64(2))
	var out int64
	status, err := codec.DecodeReply(reply2, &out)
	if err != nil || status != codec.StatusOK || out != 3 {
		t.Fatalf("subsequent call failed: status=%d out=%d err=%v", status, out, err)
	}
}

func TestRouteHandlerPanicBecomesFailReply(t *testing.T) {
	tbl := NewTable()
	tbl.Register("boom", func() int64 { panic("kaboom") })
	reply := routeNamed(tbl, "boom")
	_, err := codec.DecodeReply(reply, nil)
	if err == nil {
		t.Fatalf("expected a FAIL reply for a panicking handler")
	}
}

func TestRouteHandlerErrorReturn(t *testing.T) {
	tbl := NewTable()
	tbl.Register("fails", func() error { return errors.New("boom") })
	reply := routeNamed(tbl, "fails")
	_, err := codec.DecodeReply(reply, nil)
	var remErr *codec.RemoteError
	if !errors.As(err, &remErr) || remErr.Message != "boom" {
		t.Fatalf("got err=%v, want RemoteError(\"boom\")", err)
	}
}

func TestRegisterReplacesPreviousBinding(t *testing.T) {
	tbl := NewTable()
	tbl.Register("f", func() int64 { return 1 })
	tbl.Register("f", func() int64 { return 2 })
	reply := routeNamed(tbl, "f")
	var out int64
	codec.DecodeReply(reply, &out)
	if out != 2 {
		t.Fatalf("expected last registration to win, got %d", out)
	}
}
