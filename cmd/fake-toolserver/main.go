// ABOUTME: Minimal fake tool provider for E2E testing — connects via websocket, serves canned tools.
// ABOUTME: Usage: fake-toolserver [-addr localhost:8080] [-identity echo-provider] [-tools tools.toml]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/gorilla/websocket"

	"github.com/2389/mcp-bridge/internal/protocol"
)

// toolDef is one canned tool loaded from the TOML file.
type toolDef struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Result      string `toml:"result"`
}

type toolFile struct {
	Tool []toolDef `toml:"tool"`
}

// response is the outbound JSON-RPC envelope for replies to the bridge.
type response struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      string             `json:"id"`
	Result  any                `json:"result,omitempty"`
	Error   *protocol.RPCError `json:"error,omitempty"`
}

func main() {
	addr := flag.String("addr", "localhost:8080", "bridge HTTP address")
	identity := flag.String("identity", "echo-provider", "provider identity")
	toolsPath := flag.String("tools", "", "TOML file with [[tool]] definitions")
	flag.Parse()

	tools, err := loadTools(*toolsPath)
	if err != nil {
		log.Fatal(err)
	}

	if err := run(*addr, *identity, tools); err != nil {
		log.Fatal(err)
	}
}

// loadTools reads tool definitions from a TOML file, or falls back to a
// single echo tool when no file is given.
func loadTools(path string) ([]toolDef, error) {
	if path == "" {
		return []toolDef{{
			Name:        "echo",
			Description: "Echoes the provided text back",
			Result:      "echo: %s",
		}}, nil
	}

	var f toolFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("loading tools from %s: %w", path, err)
	}
	if len(f.Tool) == 0 {
		return nil, fmt.Errorf("no [[tool]] entries in %s", path)
	}
	return f.Tool, nil
}

func run(addr, identity string, tools []toolDef) error {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/" + identity}

	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", u.String(), err)
	}
	defer ws.Close()

	fmt.Fprintf(os.Stderr, "connected as %s with %d tool(s)\n", identity, len(tools))

	// Close the socket on interrupt so ReadMessage unblocks.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return nil
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("discarding malformed frame: %v", err)
			continue
		}

		log.Printf("received %s [%s]", req.Method, req.ID)

		reply := handle(&req, tools)
		if err := writeJSON(ws, reply); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
}

// handle answers one bridge request against the canned tool set.
func handle(req *protocol.Request, tools []toolDef) *response {
	switch req.Method {
	case protocol.MethodInitialize:
		return ok(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "fake-toolserver", "version": "dev"},
		})

	case protocol.MethodToolsList:
		descriptors := make([]protocol.ToolDescriptor, len(tools))
		for i, t := range tools {
			descriptors[i] = protocol.ToolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: json.RawMessage(`{"type":"object"}`),
			}
		}
		return ok(req.ID, protocol.ToolsListResult{Tools: descriptors})

	case protocol.MethodToolsCall:
		var params protocol.ToolsCallParams
		raw, _ := json.Marshal(req.Params)
		if err := json.Unmarshal(raw, &params); err != nil {
			return fail(req.ID, -32602, "invalid params")
		}

		for _, t := range tools {
			if t.Name != params.Name {
				continue
			}
			text := t.Result
			if strings.Contains(text, "%s") {
				args, _ := json.Marshal(params.Arguments)
				text = fmt.Sprintf(t.Result, string(args))
			}
			return ok(req.ID, protocol.ToolsCallResult{
				Content: []protocol.ContentBlock{{Type: "text", Text: text}},
			})
		}
		return fail(req.ID, -32602, fmt.Sprintf("unknown tool: %s", params.Name))

	default:
		return fail(req.ID, -32601, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func ok(id string, result any) *response {
	return &response{JSONRPC: protocol.Version, ID: id, Result: result}
}

func fail(id string, code int, msg string) *response {
	return &response{
		JSONRPC: protocol.Version,
		ID:      id,
		Error:   &protocol.RPCError{Code: code, Message: msg},
	}
}

func writeJSON(ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}
