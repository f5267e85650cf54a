// Command memcored runs the memory engine behind a line-delimited JSON-RPC
// 2.0 transport over stdin/stdout: one request per line in, one response per
// line out. Framing lives entirely in this binary — pkg/rpcwire and
// pkg/dispatch know nothing about stdio.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqmem/memcore/pkg/dispatch"
	"github.com/sqmem/memcore/pkg/embedder"
	"github.com/sqmem/memcore/pkg/engine"
	"github.com/sqmem/memcore/pkg/logging"
	"github.com/sqmem/memcore/pkg/rpcwire"
	"github.com/sqmem/memcore/pkg/storage"
)

func main() {
	dbPath := flag.String("db", engine.DefaultConfig().StoragePath, "path to the SQLite database file")
	dim := flag.Int("dim", engine.DefaultConfig().Dim, "embedding dimension")
	flag.Parse()

	if err := run(*dbPath, *dim, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "memcored:", err)
		os.Exit(1)
	}
}

func run(dbPath string, dim int, stdin io.Reader, stdout, stderr io.Writer) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := logging.New(stderr, logging.LevelInfo)

	cfg := engine.DefaultConfig()
	cfg.StoragePath = dbPath
	cfg.Dim = dim

	store, err := storage.Open(ctx, cfg.StoragePath, logger)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	eng := engine.New(store, embedder.NewDeterministic(cfg.Dim), cfg, logger, nil)
	disp := dispatch.New(eng)

	return serve(ctx, disp, stdin, stdout)
}

// serve reads one JSON-RPC request per line from r and writes one response
// per line to w, until r is exhausted or ctx is cancelled.
func serve(ctx context.Context, disp *dispatch.Dispatcher, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcwire.Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := rpcwire.NewError(nil, rpcwire.CodeParseError, fmt.Sprintf("parse error: %v", err), nil)
			if encErr := enc.Encode(resp); encErr != nil {
				return encErr
			}
			continue
		}

		resp := disp.Handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}
