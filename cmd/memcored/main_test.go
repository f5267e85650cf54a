package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sqmem/memcore/pkg/dispatch"
	"github.com/sqmem/memcore/pkg/embedder"
	"github.com/sqmem/memcore/pkg/engine"
	"github.com/sqmem/memcore/pkg/logging"
	"github.com/sqmem/memcore/pkg/rpcwire"
	"github.com/sqmem/memcore/pkg/storage"
)

func newTestDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.Open(context.Background(), dir+"/test.db", logging.NopLogger())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := engine.DefaultConfig()
	cfg.Dim = 16
	cfg.MatryoshkaDim = 8
	eng := engine.New(store, embedder.NewDeterministic(cfg.Dim), cfg, logging.NopLogger(), nil)
	return dispatch.New(eng)
}

func TestServeEchoesOneResponsePerRequestLine(t *testing.T) {
	disp := newTestDispatcher(t)
	input := strings.NewReader("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"tools/list\"}\n")
	var out bytes.Buffer

	if err := serve(context.Background(), disp, input, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d output lines, want 1", len(lines))
	}
	var resp rpcwire.Response
	if err := json.Unmarshal([]byte(lines[0]), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
}

func TestServeReturnsParseErrorForMalformedLine(t *testing.T) {
	disp := newTestDispatcher(t)
	input := strings.NewReader("not json\n")
	var out bytes.Buffer

	if err := serve(context.Background(), disp, input, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	var resp rpcwire.Response
	if err := json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != rpcwire.CodeParseError {
		t.Fatalf("resp.Error = %+v, want CodeParseError", resp.Error)
	}
}

func TestServeHandlesMultipleLines(t *testing.T) {
	disp := newTestDispatcher(t)
	input := strings.NewReader(
		"{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"initialize\"}\n" +
			"{\"jsonrpc\":\"2.0\",\"id\":2,\"method\":\"tools/list\"}\n",
	)
	var out bytes.Buffer

	if err := serve(context.Background(), disp, input, &out); err != nil {
		t.Fatalf("serve: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d output lines, want 2", len(lines))
	}
}
