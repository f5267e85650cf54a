// Package dispatch implements the tool dispatcher: validating tools/call
// arguments for memory_insert, memory_search, and memory_delete, invoking
// the engine, and translating its abstract error kinds into JSON-RPC
// numeric codes per the error taxonomy. It has no opinion about framing —
// cmd/memcored feeds it one parsed rpcwire.Request at a time and writes back
// whatever rpcwire.Response it returns.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sqmem/memcore/pkg/engine"
	"github.com/sqmem/memcore/pkg/rpcwire"
	"github.com/sqmem/memcore/pkg/tiering"
)

// Engine is the narrow capability the dispatcher needs from pkg/engine.
type Engine interface {
	Ingest(ctx context.Context, in engine.IngestInput) (string, error)
	Search(ctx context.Context, in engine.SearchInput) ([]engine.Result, error)
	Delete(ctx context.Context, id string) error
	DeleteByFilter(ctx context.Context, filters map[string]any) (int, error)
}

// Dispatcher routes tools/call invocations to the engine.
type Dispatcher struct {
	engine Engine
}

// New constructs a Dispatcher over the given engine.
func New(e Engine) *Dispatcher {
	return &Dispatcher{engine: e}
}

// Handle dispatches one parsed request to the right handler and always
// returns a well-formed Response, never an error the caller has to wrap.
func (d *Dispatcher) Handle(ctx context.Context, req rpcwire.Request) rpcwire.Response {
	switch req.Method {
	case rpcwire.MethodInitialize:
		return d.handleInitialize(req)
	case rpcwire.MethodToolsList:
		return d.handleToolsList(req)
	case rpcwire.MethodToolsCall:
		return d.handleToolsCall(ctx, req)
	default:
		return rpcwire.NewError(req.ID, rpcwire.CodeMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

func (d *Dispatcher) handleInitialize(req rpcwire.Request) rpcwire.Response {
	resp, err := rpcwire.NewResult(req.ID, map[string]any{
		"protocolVersion": "2024-11-05",
		"serverInfo":      map[string]string{"name": "memcore", "version": "0.1.0"},
	})
	if err != nil {
		return rpcwire.NewError(req.ID, rpcwire.CodeInternalError, "failed to encode initialize result", nil)
	}
	return resp
}

func (d *Dispatcher) handleToolsList(req rpcwire.Request) rpcwire.Response {
	tools := []rpcwire.ToolsListEntry{
		{Name: rpcwire.ToolMemoryInsert, Description: "Store a new memory entry.", InputSchema: json.RawMessage(`{"type":"object","required":["text"],"properties":{"text":{"type":"string"},"metadata":{"type":"object"},"tier":{"type":"string"}}}`)},
		{Name: rpcwire.ToolMemorySearch, Description: "Search stored memory entries by semantic similarity.", InputSchema: json.RawMessage(`{"type":"object","required":["query"],"properties":{"query":{"type":"string"},"top_k":{"type":"integer"}}}`)},
		{Name: rpcwire.ToolMemoryDelete, Description: "Delete a memory entry by id or by a metadata filter.", InputSchema: json.RawMessage(`{"type":"object","properties":{"id":{"type":"string"},"filters":{"type":"object"}}}`)},
	}
	resp, err := rpcwire.NewResult(req.ID, map[string]any{"tools": tools})
	if err != nil {
		return rpcwire.NewError(req.ID, rpcwire.CodeInternalError, "failed to encode tools/list result", nil)
	}
	return resp
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req rpcwire.Request) rpcwire.Response {
	var params rpcwire.ToolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcwire.NewError(req.ID, rpcwire.CodeInvalidParams, fmt.Sprintf("malformed params: %v", err), nil)
	}

	switch params.Name {
	case rpcwire.ToolMemoryInsert:
		return d.callInsert(ctx, req.ID, params.Arguments)
	case rpcwire.ToolMemorySearch:
		return d.callSearch(ctx, req.ID, params.Arguments)
	case rpcwire.ToolMemoryDelete:
		return d.callDelete(ctx, req.ID, params.Arguments)
	default:
		return rpcwire.NewError(req.ID, rpcwire.CodeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name), nil)
	}
}

type insertArgs struct {
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
	Tier       string         `json:"tier"`
	TTLSeconds int            `json:"ttl_seconds"`
}

func (d *Dispatcher) callInsert(ctx context.Context, id json.RawMessage, raw json.RawMessage) rpcwire.Response {
	var args insertArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return rpcwire.NewError(id, rpcwire.CodeInvalidParams, fmt.Sprintf("malformed memory_insert arguments: %v", err), nil)
	}
	if args.Text == "" {
		return rpcwire.NewError(id, rpcwire.CodeInvalidParams, "memory_insert requires a non-empty \"text\"", nil)
	}
	tier := tiering.Tier(args.Tier)
	if tier == "" {
		tier = tiering.Semantic
	}
	in := engine.IngestInput{Text: args.Text, Metadata: args.Metadata, Tier: tier}
	if args.TTLSeconds > 0 {
		in.TTL = time.Now().Add(time.Duration(args.TTLSeconds) * time.Second)
	}

	entryID, err := d.engine.Ingest(ctx, in)
	if err != nil {
		return errorResponse(id, err)
	}
	resp, encErr := rpcwire.NewResult(id, map[string]any{"id": entryID})
	if encErr != nil {
		return rpcwire.NewError(id, rpcwire.CodeInternalError, "failed to encode memory_insert result", nil)
	}
	return resp
}

type searchArgs struct {
	// Query is memory_search's documented argument name (spec §4.6). Text is
	// accepted as an alias for callers that still send the pre-§4.6 field
	// name; Query wins if both are present.
	Query   string `json:"query"`
	Text    string `json:"text"`
	TopK    int    `json:"top_k"`
	Stage1K int    `json:"stage1_k"`
	Stage2K int    `json:"stage2_k"`
}

func (d *Dispatcher) callSearch(ctx context.Context, id json.RawMessage, raw json.RawMessage) rpcwire.Response {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return rpcwire.NewError(id, rpcwire.CodeInvalidParams, fmt.Sprintf("malformed memory_search arguments: %v", err), nil)
	}
	query := args.Query
	if query == "" {
		query = args.Text
	}
	if query == "" {
		return rpcwire.NewError(id, rpcwire.CodeInvalidParams, "memory_search requires a non-empty \"query\"", nil)
	}
	if args.TopK <= 0 {
		args.TopK = 5
	}

	results, err := d.engine.Search(ctx, engine.SearchInput{Text: query, TopK: args.TopK, Stage1K: args.Stage1K, Stage2K: args.Stage2K})
	if err != nil {
		return errorResponse(id, err)
	}
	resp, encErr := rpcwire.NewResult(id, map[string]any{"results": results})
	if encErr != nil {
		return rpcwire.NewError(id, rpcwire.CodeInternalError, "failed to encode memory_search result", nil)
	}
	return resp
}

type deleteArgs struct {
	ID      string         `json:"id"`
	Filters map[string]any `json:"filters"`
}

// callDelete implements memory_delete's dual calling convention (spec
// §4.6): delete by id, or delete by a metadata filter set. Per spec §7,
// kNotFound on a delete is not a wire-level error — it is reported as an
// ordinary {success:false, deleted:0} result, distinct from every other
// engine error kind, which still maps to an RPC error through
// errorResponse.
func (d *Dispatcher) callDelete(ctx context.Context, id json.RawMessage, raw json.RawMessage) rpcwire.Response {
	var args deleteArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return rpcwire.NewError(id, rpcwire.CodeInvalidParams, fmt.Sprintf("malformed memory_delete arguments: %v", err), nil)
	}

	switch {
	case args.ID != "":
		err := d.engine.Delete(ctx, args.ID)
		if err != nil {
			if engine.KindOf(err) == engine.KindNotFound {
				return deleteResult(id, false, 0)
			}
			return errorResponse(id, err)
		}
		return deleteResult(id, true, 1)
	case len(args.Filters) > 0:
		n, err := d.engine.DeleteByFilter(ctx, args.Filters)
		if err != nil {
			return errorResponse(id, err)
		}
		return deleteResult(id, n > 0, n)
	default:
		return rpcwire.NewError(id, rpcwire.CodeInvalidParams, "memory_delete requires a non-empty \"id\" or a non-empty \"filters\"", nil)
	}
}

func deleteResult(id json.RawMessage, success bool, deleted int) rpcwire.Response {
	resp, encErr := rpcwire.NewResult(id, map[string]any{"success": success, "deleted": deleted})
	if encErr != nil {
		return rpcwire.NewError(id, rpcwire.CodeInternalError, "failed to encode memory_delete result", nil)
	}
	return resp
}

// errorResponse maps an engine error's abstract Kind to its JSON-RPC code.
func errorResponse(id json.RawMessage, err error) rpcwire.Response {
	code := kindToCode(engine.KindOf(err))
	return rpcwire.NewError(id, code, err.Error(), nil)
}

func kindToCode(k engine.Kind) int {
	switch k {
	case engine.KindInvalidInput, engine.KindInvalidParams:
		return rpcwire.CodeInvalidParams
	case engine.KindEmbedderFailure:
		return rpcwire.CodeEmbedderFailure
	case engine.KindStorageFailure:
		return rpcwire.CodeStorageFailure
	case engine.KindDegenerateVector:
		return rpcwire.CodeDegenerateVector
	case engine.KindNotFound:
		return rpcwire.CodeNotFound
	default:
		return rpcwire.CodeInternalError
	}
}
