// Command timelinectl is the one-shot CLI client for a running
// timelinenode: it opens a single connection to the node's local
// server, sends one request, and prints the result, grounded on
// original_source/src/operation.py's execute/get/post/sub/unsub
// helpers (and src/main.py's subcommand dispatch).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/identity"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/prettyprint"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/timeline"
	"github.com/diogolhc/feup-m.eic-sdle-proj2/internal/transport"
)

const defaultLocalPort = 8600

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	command := os.Args[1]
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	localPort := fs.Int("local-port", defaultLocalPort, "port the node's local server listens on")

	var err error
	switch command {
	case "get":
		maxPosts := fs.Int("max-posts", -1, "maximum number of posts to return (-1 = no limit)")
		fs.Parse(os.Args[2:])
		err = runGet(fs.Arg(0), *localPort, optIntArg(*maxPosts))
	case "post":
		fs.Parse(os.Args[2:])
		err = runPost(fs.Arg(0), *localPort)
	case "delete":
		fs.Parse(os.Args[2:])
		err = runDelete(fs.Arg(0), *localPort)
	case "sub":
		fs.Parse(os.Args[2:])
		err = runSub(fs.Arg(0), *localPort)
	case "unsub":
		fs.Parse(os.Args[2:])
		err = runUnsub(fs.Arg(0), *localPort)
	case "view":
		maxPosts := fs.Int("max-posts", -1, "maximum number of posts to return (-1 = no limit)")
		fs.Parse(os.Args[2:])
		err = runView(*localPort, optIntArg(*maxPosts))
	case "people-i-may-know":
		maxUsers := fs.Int("max-users", -1, "maximum number of suggestions to return (-1 = no limit)")
		fs.Parse(os.Args[2:])
		err = runPeopleIMayKnow(*localPort, optIntArg(*maxUsers))
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: timelinectl <get|post|delete|sub|unsub|view|people-i-may-know> [args]")
}

func optIntArg(v int) *int {
	if v < 0 {
		return nil
	}
	return &v
}

func execute(localPort int, request map[string]interface{}) (transport.Response, error) {
	addr := "127.0.0.1:" + strconv.Itoa(localPort)
	return transport.SendWithTimeout(zerolog.Nop(), addr, request, 30*time.Second)
}

func checkOk(resp transport.Response) error {
	if !resp.IsOk() {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

func runGet(userid string, localPort int, maxPosts *int) error {
	if _, err := identity.Parse(userid); err != nil {
		return fmt.Errorf("invalid userid: %s", userid)
	}
	req := map[string]interface{}{"command": "get", "userid": userid}
	if maxPosts != nil {
		req["max-posts"] = *maxPosts
	}
	resp, err := execute(localPort, req)
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}
	c, err := timeline.CachedTimelineFromWire(resp.Data["timeline"])
	if err != nil {
		return err
	}
	prettyprint.Timeline(os.Stdout, toPrettyPosts(c.Posts))
	return nil
}

func runPost(content string, localPort int) error {
	resp, err := execute(localPort, map[string]interface{}{"command": "post", "content": content})
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}
	fmt.Println("Successfully posted to the timeline.")
	return nil
}

func runDelete(postIDStr string, localPort int) error {
	postID, err := strconv.ParseInt(postIDStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid post-id: %s", postIDStr)
	}
	resp, err := execute(localPort, map[string]interface{}{"command": "delete", "post-id": postID})
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}
	fmt.Println("Successfully deleted post.")
	return nil
}

func runSub(userid string, localPort int) error {
	if _, err := identity.Parse(userid); err != nil {
		return fmt.Errorf("invalid userid: %s", userid)
	}
	resp, err := execute(localPort, map[string]interface{}{"command": "sub", "userid": userid})
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}
	fmt.Printf("Successfully subscribed to %s.\n", userid)
	return nil
}

func runUnsub(userid string, localPort int) error {
	if _, err := identity.Parse(userid); err != nil {
		return fmt.Errorf("invalid userid: %s", userid)
	}
	resp, err := execute(localPort, map[string]interface{}{"command": "unsub", "userid": userid})
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}
	fmt.Printf("Successfully unsubscribed from %s.\n", userid)
	return nil
}

func runView(localPort int, maxPosts *int) error {
	req := map[string]interface{}{"command": "view"}
	if maxPosts != nil {
		req["max-posts"] = *maxPosts
	}
	resp, err := execute(localPort, req)
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}

	var merged struct {
		Posts []timeline.TaggedPost `json:"posts"`
	}
	if err := reencode(resp.Data["timeline"], &merged); err != nil {
		return err
	}
	prettyprint.MergedTimeline(os.Stdout, toPrettyTaggedPosts(merged.Posts))

	for _, w := range resp.Warnings {
		if warning, ok := w.(map[string]interface{}); ok {
			fmt.Fprintf(os.Stderr, "warning: %v (%v)\n", warning["message"], warning["subscription"])
		}
	}
	return nil
}

func runPeopleIMayKnow(localPort int, maxUsers *int) error {
	req := map[string]interface{}{"command": "people-i-may-know"}
	if maxUsers != nil {
		req["max-users"] = *maxUsers
	}
	resp, err := execute(localPort, req)
	if err != nil {
		return err
	}
	if err := checkOk(resp); err != nil {
		return err
	}

	var users []struct {
		UserID       string   `json:"userid"`
		SubscribedBy []string `json:"subscribed-by"`
	}
	if err := reencode(resp.Data["users"], &users); err != nil {
		return err
	}
	suggestions := make([]prettyprint.Suggestion, len(users))
	for i, u := range users {
		suggestions[i] = prettyprint.Suggestion{UserID: u.UserID, SubscribedBy: u.SubscribedBy}
	}
	prettyprint.Suggestions(os.Stdout, suggestions)
	return nil
}

// reencode round-trips v (typically a map[string]interface{} produced
// by decoding a transport.Response) through JSON into dst, the same
// trick timeline.CachedTimelineFromWire uses to normalize an arbitrary
// JSON payload into a concrete type.
func reencode(v interface{}, dst interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("re-encode payload: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

func toPrettyPosts(posts []timeline.Post) []prettyprint.Post {
	out := make([]prettyprint.Post, len(posts))
	for i, p := range posts {
		out[i] = prettyprint.Post{ID: p.ID, Timestamp: p.Timestamp, Content: p.Content}
	}
	return out
}

func toPrettyTaggedPosts(posts []timeline.TaggedPost) []prettyprint.TaggedPost {
	out := make([]prettyprint.TaggedPost, len(posts))
	for i, p := range posts {
		out[i] = prettyprint.TaggedPost{
			Post:  prettyprint.Post{ID: p.ID, Timestamp: p.Timestamp, Content: p.Content},
			Owner: p.Owner,
		}
	}
	return out
}
