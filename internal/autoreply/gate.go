package autoreply

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Gate applies the auto-reply policy: global toggle, self-message guard, sender whitelist.
// Checks run cheapest first and the first failure wins.
type Gate struct {
	settings  SettingsStore
	whitelist WhitelistStore
}

// NewGate creates a new Gate
func NewGate(settings SettingsStore, whitelist WhitelistStore) *Gate {
	return &Gate{settings: settings, whitelist: whitelist}
}

// Evaluate returns the reason the reply must be skipped, or "" when every check passes.
// An error means a store could not be read and nothing was decided.
func (g *Gate) Evaluate(ctx context.Context, userID uuid.UUID, activeAddress, sender string) (SkipReason, error) {
	enabled, err := g.settings.AutoReplyEnabled(ctx)
	if err != nil {
		return "", fmt.Errorf("read auto-reply toggle: %w", err)
	}
	if !enabled {
		return ReasonAutoReplyDisabled, nil
	}

	if strings.EqualFold(strings.TrimSpace(sender), strings.TrimSpace(activeAddress)) {
		return ReasonSelfMessage, nil
	}

	ok, err := g.whitelist.IsWhitelisted(ctx, userID, sender)
	if err != nil {
		return "", fmt.Errorf("check whitelist: %w", err)
	}
	if !ok {
		return ReasonSenderNotWhitelisted, nil
	}

	return "", nil
}
