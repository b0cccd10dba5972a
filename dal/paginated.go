package dal

import "strconv"

// PageInfo reports whether a further page of results exists beyond this one.
type PageInfo struct {
	HasNextPage bool `json:"has_next_page"`
}

// MessageEdge pairs a message with the cursor which resumes iteration
// immediately after it. Cursors are the message's timestamp, rendered as a
// string so callers can feed them back as the next "from" bound.
type MessageEdge struct {
	Node   *Message `json:"node"`
	Cursor string   `json:"cursor"`
}

// PaginatedMessages is a single page of a ranged message read.
type PaginatedMessages struct {
	PageInfo PageInfo      `json:"page_info"`
	Edges    []MessageEdge `json:"edges"`
}

// PaginateMessages assembles a page from an ordered list of messages and a
// next-page flag.
func PaginateMessages(messages []*Message, hasNextPage bool) *PaginatedMessages {
	var edges = make([]MessageEdge, 0, len(messages))
	for _, m := range messages {
		edges = append(edges, MessageEdge{
			Node:   m,
			Cursor: strconv.FormatInt(m.Timestamp(), 10),
		})
	}
	return &PaginatedMessages{
		PageInfo: PageInfo{HasNextPage: hasNextPage},
		Edges:    edges,
	}
}
