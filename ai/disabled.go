package ai

import (
	"context"

	"stream-chat/domain"
	"stream-chat/errors"
)

// Disabled is the unavailable variant of both providers, wired at startup
// when no API key is configured. Callers only ever see the error and
// degrade: moderation fails open, the assistant stays silent.
type Disabled struct{}

func (Disabled) Classify(context.Context, string, string) (domain.Verdict, error) {
	return domain.Verdict{}, errors.ErrProviderUnavailable
}

func (Disabled) Reply(context.Context, string, string) (string, error) {
	return "", errors.ErrProviderUnavailable
}
