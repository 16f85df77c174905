package timeline

import "sort"

// MergedTimeline is the on-demand, never-persisted result of the "view"
// command: posts from many owners, tagged, sorted by timestamp
// descending, truncated to maxPosts.
type MergedTimeline struct {
	Posts []TaggedPost `json:"posts"`
}

// Source pairs a timeline's posts with the owner to tag them with.
type Source struct {
	Owner string
	Posts []Post
}

// MergeTimelines flattens posts from each source, tags them with their
// owner, sorts by timestamp descending, and truncates to maxPosts
// (nil = no truncation).
func MergeTimelines(sources []Source, maxPosts *int) *MergedTimeline {
	var all []TaggedPost
	for _, s := range sources {
		for _, p := range s.Posts {
			all = append(all, TaggedPost{Post: p, Owner: s.Owner})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if maxPosts != nil && *maxPosts < len(all) {
		if *maxPosts < 0 {
			all = []TaggedPost{}
		} else {
			all = all[:*maxPosts]
		}
	}

	return &MergedTimeline{Posts: all}
}
