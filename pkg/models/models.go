package models

import (
	"fmt"
	"sort"
)

// Channel is an opaque tag attached to a record, such as a severity, a
// container name or a typed token. Channels are compared as map keys, so
// they must be comparable and their dynamic type is part of their identity.
type Channel = any

// Container stream names, used as channels
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ContainerMeta holds container metadata
type ContainerMeta struct {
	ID     string
	Name   string
	Labels map[string]string
}

// Record is a single log event travelling through the handler chain
type Record struct {
	Channels  []Channel `json:"channels"`
	Force     bool      `json:"force"`
	Content   string    `json:"content,omitempty"`
	Source    string    `json:"source,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// NewRecord creates a record tagged with the given channels
func NewRecord(content string, channels ...Channel) Record {
	return Record{
		Channels: channels,
		Content:  content,
	}
}

// HasChannel reports whether the record is tagged with ch
func (r Record) HasChannel(ch Channel) bool {
	for _, c := range r.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// ChannelNames renders the record channels as sorted strings
func (r Record) ChannelNames() []string {
	return ChannelNames(r.Channels)
}

// ChannelNames renders channels as sorted strings
func ChannelNames(channels []Channel) []string {
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, fmt.Sprint(c))
	}
	sort.Strings(names)
	return names
}
