// Package publicserver implements the peer-facing endpoint (C8): it
// binds the node's own ip:port and answers only get-timeline requests
// from other nodes, delegating to node.Node.PublicGetTimeline.
package publicserver

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/node"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/transport"
)

// Server wraps a transport.Server bound to the node's own address,
// dispatching get-timeline requests into a node.Node.
type Server struct {
	inner *transport.Server
}

// New builds (but does not start) the public server for self
// ("ip:port", the node's own identity).
func New(self identity.User, n *node.Node, logger zerolog.Logger) *Server {
	return &Server{inner: transport.NewServer(self.String(), func(ctx context.Context, msg map[string]interface{}) transport.Response {
		return dispatch(ctx, n, msg)
	}, logger)}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start() error { return s.inner.Start() }

// Shutdown stops accepting connections and waits for in-flight ones.
func (s *Server) Shutdown() error { return s.inner.Shutdown() }

// ListenAddr returns the bound address.
func (s *Server) ListenAddr() string { return s.inner.ListenAddr() }

func dispatch(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	command, _ := msg["command"].(string)
	if command != "get-timeline" {
		return transport.ErrorResponse("Unknown command.")
	}
	return handleGetTimeline(ctx, n, msg)
}

func handleGetTimeline(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	raw, ok := msg["userid"]
	if !ok || raw == nil {
		return transport.ErrorResponse("No userid provided.")
	}
	userid, ok := raw.(string)
	if !ok || userid == "" {
		return transport.ErrorResponse("No userid provided.")
	}
	target, err := identity.Parse(userid)
	if err != nil {
		return transport.ErrorResponse("Invalid userid: " + userid)
	}

	maxPosts := optionalInt(msg, "max-posts")

	c, err := n.PublicGetTimeline(ctx, target, maxPosts)
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(map[string]interface{}{"timeline": c.MarshalForWire()})
}

func optionalInt(msg map[string]interface{}, field string) *int {
	v, ok := msg[field]
	if !ok || v == nil {
		return nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}
