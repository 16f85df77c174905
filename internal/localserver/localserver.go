// Package localserver implements the local, CLI-facing endpoint (C7):
// it binds 127.0.0.1:local_port and dispatches get/post/delete/sub/
// unsub/view/people-i-may-know commands into the node orchestrator.
package localserver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/node"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/transport"
)

// Server wraps a transport.Server bound to loopback, dispatching into
// a node.Node.
type Server struct {
	inner *transport.Server
}

// New builds (but does not start) the local server for addr
// (typically "127.0.0.1:<local_port>").
func New(addr string, n *node.Node, logger zerolog.Logger) *Server {
	return &Server{inner: transport.NewServer(addr, func(ctx context.Context, msg map[string]interface{}) transport.Response {
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
	switch command {
	case "get":
		return handleGet(ctx, n, msg)
	case "post":
		return handlePost(n, msg)
	case "delete":
		return handleDelete(n, msg)
	case "sub":
		return handleSub(ctx, n, msg)
	case "unsub":
		return handleUnsub(ctx, n, msg)
	case "view":
		return handleView(ctx, n, msg)
	case "people-i-may-know":
		return handlePeopleIMayKnow(ctx, n, msg)
	default:
		return transport.ErrorResponse("Unknown command.")
	}
}

func requiredString(msg map[string]interface{}, field string) (string, error) {
	v, ok := msg[field]
	if !ok || v == nil {
		return "", fmt.Errorf("No %s provided.", field)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("No %s provided.", field)
	}
	return s, nil
}

func requiredUser(msg map[string]interface{}, field string) (identity.User, error) {
	raw, err := requiredString(msg, field)
	if err != nil {
		return identity.User{}, err
	}
	u, err := identity.Parse(raw)
	if err != nil {
		return identity.User{}, fmt.Errorf("Invalid userid: %s", raw)
	}
	return u, nil
}

func requiredInt64(msg map[string]interface{}, field string) (int64, error) {
	v, ok := msg[field]
	if !ok || v == nil {
		return 0, fmt.Errorf("No %s provided.", field)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("No %s provided.", field)
	}
	return int64(f), nil
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

func handleGet(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	target, err := requiredUser(msg, "userid")
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	maxPosts := optionalInt(msg, "max-posts")

	c, err := n.Get(ctx, target, maxPosts)
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(map[string]interface{}{"timeline": c.MarshalForWire()})
}

func handlePost(n *node.Node, msg map[string]interface{}) transport.Response {
	content, err := requiredString(msg, "content")
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	p, err := n.Post(content)
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(map[string]interface{}{
		"id":        p.ID,
		"timestamp": p.Timestamp,
		"content":   p.Content,
	})
}

func handleDelete(n *node.Node, msg map[string]interface{}) transport.Response {
	postID, err := requiredInt64(msg, "post-id")
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	if err := n.Delete(postID); err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(nil)
}

func handleSub(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	target, err := requiredUser(msg, "userid")
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	if err := n.Sub(ctx, target); err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(nil)
}

func handleUnsub(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	target, err := requiredUser(msg, "userid")
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	if err := n.Unsub(ctx, target); err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(nil)
}

func handleView(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	maxPosts := optionalInt(msg, "max-posts")
	merged, warnings := n.View(ctx, maxPosts)

	wireWarnings := make([]interface{}, len(warnings))
	for i, w := range warnings {
		wireWarnings[i] = w
	}
	return transport.OkResponseWithWarnings(map[string]interface{}{"timeline": merged}, wireWarnings)
}

func handlePeopleIMayKnow(ctx context.Context, n *node.Node, msg map[string]interface{}) transport.Response {
	maxUsers := optionalInt(msg, "max-users")
	suggestions, err := n.PeopleIMayKnow(ctx, maxUsers)
	if err != nil {
		return transport.ErrorResponse(err.Error())
	}
	return transport.OkResponse(map[string]interface{}{"users": suggestions})
}
