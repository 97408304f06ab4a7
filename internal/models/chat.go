package models

import "time"

// Message is a single chat line in a session. Immutable once appended.
type Message struct {
	Name      string    `json:"name" bson:"name"`
	Text      string    `json:"text" bson:"text"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// ChatRequest is the payload sent to the chat endpoint.
type ChatRequest struct {
	Name string `json:"name"`
	Text string `json:"text"`
}
