package service

import (
	"strings"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

// RetrievalPolicy decides, per message, whether the agent should query the
// index before answering. Implementations must be deterministic for
// identical inputs and should lean towards retrieving when uncertain: a
// missed retrieval costs answer quality, an extra one only costs latency.
type RetrievalPolicy interface {
	NeedsRetrieval(message string, history []*domain.Message) bool
}

// HeuristicPolicy skips retrieval only for messages that plainly carry no
// information need: empty input and short conversational pleasantries.
// Everything else retrieves.
type HeuristicPolicy struct{}

// NewHeuristicPolicy creates the default retrieval policy.
func NewHeuristicPolicy() *HeuristicPolicy { return &HeuristicPolicy{} }

// smalltalk lists messages that never warrant a knowledge-base lookup.
var smalltalk = map[string]bool{
	"hi":           true,
	"hello":        true,
	"hey":          true,
	"yo":           true,
	"thanks":       true,
	"thank you":    true,
	"ok":           true,
	"okay":         true,
	"yes":          true,
	"no":           true,
	"bye":          true,
	"goodbye":      true,
	"good morning": true,
	"good evening": true,
	"good night":   true,
	"how are you":  true,
}

// NeedsRetrieval reports whether message warrants querying the index.
func (p *HeuristicPolicy) NeedsRetrieval(message string, history []*domain.Message) bool {
	msg := strings.ToLower(strings.TrimSpace(message))
	msg = strings.TrimRight(msg, ".!?, ")
	if msg == "" {
		return false
	}
	if smalltalk[msg] {
		return false
	}
	return true
}
