// Package prettyprint renders timelines and suggestion lists as aligned
// tables for a terminal, the way original_source/src/data/timeline.py's
// pretty_str (via Python's tabulate) and src/data/merged_timeline.py's
// pretty_str do. The core node and data types never format for display
// themselves (spec.md §1 scopes table rendering out as an external
// collaborator); only cmd/timelinectl calls into this package.
package prettyprint

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Post is the minimal shape prettyprint needs from a timeline.Post.
type Post struct {
	ID        int64
	Timestamp time.Time
	Content   string
}

// Timeline writes posts as an "id / time / content" table to w.
func Timeline(w io.Writer, posts []Post) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\ttime\tcontent")
	for _, p := range posts {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", p.ID, p.Timestamp.Format(timeLayout), p.Content)
	}
	tw.Flush()
}

// TaggedPost is the minimal shape prettyprint needs from a
// timeline.TaggedPost, for the merged "view" table.
type TaggedPost struct {
	Post
	Owner string
}

// MergedTimeline writes tagged posts as an "id / userid / time /
// content" table to w.
func MergedTimeline(w io.Writer, posts []TaggedPost) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "id\tuserid\ttime\tcontent")
	for _, p := range posts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.ID, p.Owner, p.Timestamp.Format(timeLayout), p.Content)
	}
	tw.Flush()
}

// Suggestion is the minimal shape prettyprint needs for the
// people-i-may-know table.
type Suggestion struct {
	UserID       string
	SubscribedBy []string
}

// Suggestions writes suggestions as a "userid / subscribed-by" table to w.
func Suggestions(w io.Writer, suggestions []Suggestion) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "userid\tsubscribed-by")
	for _, s := range suggestions {
		fmt.Fprintf(tw, "%s\t%s\n", s.UserID, strings.Join(s.SubscribedBy, ", "))
	}
	tw.Flush()
}
