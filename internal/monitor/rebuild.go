package monitor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/momentum-mod/livestreams/internal/domain"
)

const rebuildDeleteConcurrency = 8

// Rebuild reconstructs the announcement store from the channel's history. When
// the live broadcast fetch fails nothing is mutated and the store stays
// marked for rebuild.
func (e *Engine) Rebuild(ctx context.Context) error {
	release, err := e.enter(ctx)
	if err != nil {
		return err
	}
	defer release()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "monitor.Rebuild")
	defer span.End()

	own, err := e.ownMessages(ctx)
	if err != nil {
		e.trusted = false
		return fmt.Errorf("failed to list channel messages: %w", err)
	}

	if len(own) == 0 {
		_ = e.store.Replace(nil)
		e.trusted = true
		return nil
	}

	broadcasts, err := e.provider.FetchLiveBroadcasts(ctx, e.opts.GameID)
	if err != nil {
		e.trusted = false
		return fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}

	return e.rebuildFrom(ctx, e.logger, own, dedupe(broadcasts))
}

// rebuild is the in-pass variant; it reuses the pass's broadcast snapshot.
func (e *Engine) rebuild(ctx context.Context, logger *zap.Logger, broadcasts []domain.Broadcast) error {
	own, err := e.ownMessages(ctx)
	if err != nil {
		e.trusted = false
		return err
	}
	return e.rebuildFrom(ctx, logger, own, broadcasts)
}

// rebuildFrom claims each own message for the live broadcast named in its embed
// author. Messages are claimed in listing order: the first message seen for a
// broadcast wins and later ones are deleted as duplicates. Messages with no
// live, unbanned match or without a single embed are deleted as stale. When a
// stale delete fails the store stays untrusted so the next pass retries it.
func (e *Engine) rebuildFrom(ctx context.Context, logger *zap.Logger, own []domain.Message, broadcasts []domain.Broadcast) error {
	byName := make(map[string]*domain.Broadcast, len(broadcasts))
	for i := range broadcasts {
		b := &broadcasts[i]
		if _, ok := byName[b.UserName]; !ok {
			byName[b.UserName] = b
		}
	}

	claimed := map[string]string{}
	stale := []domain.Message{}

	for _, m := range own {
		embed, ok := m.SingleEmbed()
		if !ok {
			logger.Debug("deleting malformed announcement", zap.String("message#id", m.ID), zap.Int("message#embeds", len(m.Embeds)))
			stale = append(stale, m)
			continue
		}

		b, ok := byName[embed.AuthorName()]
		if !ok || !e.policy.Allowed(b) {
			logger.Debug("deleting stale announcement", zap.String("message#id", m.ID), zap.String("owner#name", embed.AuthorName()))
			stale = append(stale, m)
			continue
		}

		if _, dup := claimed[b.ID]; dup {
			logger.Warn("duplicate announcement for broadcast, deleting",
				zap.String("broadcast#id", b.ID),
				zap.String("owner#name", b.UserName),
				zap.String("message#id", m.ID),
				zap.String("message#kept", claimed[b.ID]),
			)
			stale = append(stale, m)
			continue
		}

		claimed[b.ID] = m.ID
	}

	deleteErr := e.deleteAll(ctx, logger, stale)

	if err := e.store.Replace(claimed); err != nil {
		e.trusted = false
		return err
	}
	e.trusted = deleteErr == nil
	if deleteErr != nil {
		logger.Warn("stale announcements left in channel, rebuilding next pass", zap.Error(deleteErr))
	}

	logger.Info("rebuilt announcement store",
		zap.Int("tracked", len(claimed)),
		zap.Int("deleted", len(stale)),
	)
	return nil
}

// deleteAll deletes msgs concurrently. Every delete runs to completion
// regardless of the others; the first failure is returned.
func (e *Engine) deleteAll(ctx context.Context, logger *zap.Logger, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	var g errgroup.Group
	g.SetLimit(rebuildDeleteConcurrency)

	for _, m := range msgs {
		m := m
		g.Go(func() error {
			err := e.chat.DeleteMessage(ctx, e.opts.ChannelID, m.ID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				logger.Error("failed to delete stale announcement", zap.Error(err), zap.String("message#id", m.ID))
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
