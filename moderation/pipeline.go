// Package moderation decides whether a chat message may be broadcast.
// The decision runs in two stages: a local banned-term automaton that is
// always active, then an optional external classifier. The external stage
// fails open: an infrastructure fault never blocks message flow.
package moderation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"

	"stream-chat/contract"
	"stream-chat/domain"
)

const (
	// ReasonBannedTerm is the generic reason for a local block; the
	// matched term is never echoed back to the sender.
	ReasonBannedTerm = "Message contains inappropriate content"
	// ReasonClassifier is used when the external stage blocks without
	// giving a reason of its own.
	ReasonClassifier = "Message blocked by AI moderation"
)

type Pipeline struct {
	matcher    *goahocorasick.Machine
	classifier contract.Classifier
	timeout    time.Duration
	log        *slog.Logger
}

// NewPipeline builds the Aho-Corasick automaton over the lower-cased
// banned terms. classifier may be a disabled variant; the pipeline only
// cares whether a call succeeds.
func NewPipeline(bannedTerms []string, classifier contract.Classifier,
	timeout time.Duration, log *slog.Logger) (*Pipeline, error) {
	patterns := make([][]rune, len(bannedTerms))
	for i, term := range bannedTerms {
		patterns[i] = []rune(strings.ToLower(term))
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Pipeline{matcher: m, classifier: classifier, timeout: timeout, log: log}, nil
}

// Evaluate returns the verdict for one message. The local stage
// short-circuits the external one; the external stage is bounded by the
// configured timeout and treated as approving on any failure.
func (p *Pipeline) Evaluate(ctx context.Context, body, displayName string) domain.Verdict {
	if p.containsBannedTerm(body) {
		p.logBlocked(body, displayName, ReasonBannedTerm)
		return domain.Verdict{Appropriate: false, Reason: ReasonBannedTerm}
	}

	classifyCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	verdict, err := p.classifier.Classify(classifyCtx, body, displayName)
	if err != nil {
		// Fail open: the message flows, the fault goes in the log.
		p.log.Warn("External moderation unavailable, allowing message", "err", err)
		return domain.Verdict{Appropriate: true}
	}

	if !verdict.Appropriate {
		if verdict.Reason == "" {
			verdict.Reason = ReasonClassifier
		}
		p.logBlocked(body, displayName, verdict.Reason)
	}
	return verdict
}

// containsBannedTerm scans the lower-cased body for any banned substring.
func (p *Pipeline) containsBannedTerm(body string) bool {
	runes := []rune(strings.ToLower(body))
	if len(runes) == 0 {
		return false
	}
	return len(p.matcher.MultiPatternSearch(runes, true)) > 0
}

func (p *Pipeline) logBlocked(body, displayName, reason string) {
	info := whatlanggo.Detect(body)
	p.log.Info("Message blocked",
		"author", displayName,
		"reason", reason,
		"lang", info.Lang.Iso6391())
}
