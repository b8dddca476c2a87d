// Package thread models conversation threads collected from social platforms:
// a root message plus nested replies.
package thread

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Node is a single message in a conversation tree.
type Node struct {
	ID      string `json:"id"`
	Author  string `json:"author"`
	Message string `json:"message"`
	Replies []Node `json:"replies"`
}

// Thread is the wire shape of one conversation: {"conversation": [...]}.
type Thread struct {
	Conversation []Node `json:"conversation"`
}

// Parse decodes a conversation JSON string.
func Parse(s string) (*Thread, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty conversation")
	}
	var t Thread
	if err := json.Unmarshal([]byte(s), &t); err != nil {
		return nil, fmt.Errorf("failed to parse conversation: %w", err)
	}
	return &t, nil
}

// Flatten returns every node in the tree in depth-first order.
// Returned nodes carry no replies.
func (t *Thread) Flatten() []Node {
	var out []Node
	var walk func(nodes []Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			out = append(out, Node{ID: n.ID, Author: n.Author, Message: n.Message})
			walk(n.Replies)
		}
	}
	walk(t.Conversation)
	return out
}

// Len returns the number of nodes in the flattened tree.
func (t *Thread) Len() int {
	return len(t.Flatten())
}

// IDs returns the set of node ids in the tree.
func (t *Thread) IDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, n := range t.Flatten() {
		ids[n.ID] = struct{}{}
	}
	return ids
}
