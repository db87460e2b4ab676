package transport

import (
	"context"
	"encoding/json"
	"io"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/logging"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/protocol"
	"github.com/fulmenhq/brooklyn-mcp-sub001/pkg/router"
)

// StdioServer serves the operation catalog over a single duplex pipe
// using the official MCP Go SDK. One call executes at a time; the SDK
// owns framing, initialize, and tool listing.
type StdioServer struct {
	server *mcp.Server
	logger logging.Logger
}

// NewStdioServer registers every router operation as an MCP tool whose
// handler funnels into the router. The envelope is rendered as JSON
// text content with IsError mirroring the envelope's success flag.
func NewStdioServer(name, version string, rt *router.Router, defaultTeamID string, logger logging.Logger) *StdioServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, nil)

	for _, def := range Catalog(rt.Operations()) {
		def := def
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.Schema,
		}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.Params.Arguments
			if args == nil {
				args = json.RawMessage("{}")
			}

			// Progress notifications are an HTTP streaming feature;
			// stdio calls run without a notifier.
			cctx := protocol.CallContext{TeamID: defaultTeamID}

			result := rt.Handle(ctx, cctx, def.Name, args)
			text, isErr := renderEnvelope(result)
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: text}},
				IsError: isErr,
			}, nil
		})
	}

	return &StdioServer{server: server, logger: logging.OrNop(logger)}
}

// Serve reads requests from in and writes responses to out until ctx
// is cancelled or the pipe closes.
func (s *StdioServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}
	return s.run(ctx, transport)
}

// run starts the server on the given transport. Split from Serve so
// tests can connect through in-memory transports.
func (s *StdioServer) run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Infof("stdio transport serving")
	return s.server.Run(ctx, transport)
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
