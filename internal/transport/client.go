package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Send opens a TCP connection to addr, writes request as a single JSON
// object, half-closes the send side, then reads the response to EOF.
// A correlation id is attached to the log lines only, never to the
// wire payload.
func Send(ctx context.Context, logger zerolog.Logger, addr string, request map[string]interface{}) (Response, error) {
	correlationID := uuid.NewString()
	log := logger.With().Str("correlation_id", correlationID).Str("addr", addr).Logger()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Response{}, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return Response{}, fmt.Errorf("encode request: %w", err)
	}

	log.Debug().Str("request", string(payload)).Msg("sending request")
	if _, err := conn.Write(payload); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.CloseWrite(); err != nil {
			return Response{}, fmt.Errorf("half-close connection: %w", err)
		}
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	log.Debug().Str("response", string(data)).Msg("received response")
	return resp, nil
}

// SendWithTimeout is a convenience wrapper around Send for callers
// that only need a flat deadline rather than a caller-supplied context.
func SendWithTimeout(logger zerolog.Logger, addr string, request map[string]interface{}, timeout time.Duration) (Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return Send(ctx, logger, addr, request)
}
