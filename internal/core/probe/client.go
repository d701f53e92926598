package probe

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/solatis/dispatchkeeper/internal/core/auth"
	"github.com/solatis/dispatchkeeper/internal/types"
)

// Client calls a remote match-debug service.
type Client struct {
	conn   grpc.ClientConnInterface
	closer io.Closer
	apiKey string
}

// Dial connects to target. Without extra options the connection is
// plaintext; pass transport credentials to override.
func Dial(target, apiKey string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return &Client{conn: conn, closer: conn, apiKey: apiKey}, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface, apiKey string) *Client {
	return &Client{conn: conn, apiKey: apiKey}
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

// Debug runs a match-debug probe over window.
func (c *Client) Debug(ctx context.Context, req types.DebugRequest, window types.TimeWindow) (types.DebugResponse, error) {
	in, err := encode(debugEnvelope{Request: req, Start: window.Start, End: window.End})
	if err != nil {
		return types.DebugResponse{}, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), debugMethod, in, out); err != nil {
		return types.DebugResponse{}, err
	}

	var resp types.DebugResponse
	if err := decode(out, &resp); err != nil {
		return types.DebugResponse{}, err
	}
	return resp, nil
}

// ReportAlerts appends alerts to the remote replay history.
func (c *Client) ReportAlerts(ctx context.Context, alerts []types.Alert) ([]ReportResult, error) {
	in, err := encode(reportEnvelope{Alerts: alerts})
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(c.outgoing(ctx), reportAlertsMethod, in, out); err != nil {
		return nil, err
	}

	var resp reportResponse
	if err := decode(out, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	if c.apiKey == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, auth.MetadataKey, c.apiKey)
}
