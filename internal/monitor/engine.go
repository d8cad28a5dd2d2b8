// Package monitor keeps an announcement channel in sync with the set of live
// broadcasts for a game: one message per live, unbanned broadcast, refreshed
// every pass and removed when the broadcast ends.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/gofrs/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/momentum-mod/livestreams/internal/domain"
	"github.com/momentum-mod/livestreams/internal/telemetry"
)

const tracerName = "github.com/momentum-mod/livestreams/internal/monitor"

const defaultHistoryLimit = 200

// PassLock extends the pass gate across processes. The returned func releases
// the lock.
type PassLock interface {
	Acquire(ctx context.Context) (func() error, error)
}

type Options struct {
	ChannelID      string
	GameID         string
	MentionRoleID  string
	MinimumViewers int
	HistoryLimit   int
	HardBans       []string

	// Optional; nil means this process is the only writer.
	Lock PassLock
}

// Outcome summarises one reconciliation pass.
type Outcome struct {
	PassID     string        `json:"pass_id"`
	Live       int           `json:"live"`
	Posted     int           `json:"posted"`
	Updated    int           `json:"updated"`
	Deleted    int           `json:"deleted"`
	SoftBanned int           `json:"soft_banned"`
	Released   int           `json:"released"`
	Skipped    int           `json:"skipped"`
	Rebuilt    bool          `json:"rebuilt"`
	Aborted    bool          `json:"aborted"`
	Duration   time.Duration `json:"duration"`

	// Item-level failures; the pass carried on past each of them.
	Errors []error `json:"-"`
}

func (o *Outcome) fail(err error) {
	o.Errors = append(o.Errors, err)
}

func (o *Outcome) result() string {
	switch {
	case o.Aborted:
		return telemetry.ResultAborted
	case len(o.Errors) > 0:
		return telemetry.ResultPartial
	default:
		return telemetry.ResultOK
	}
}

// Engine owns the announcement store and is the only thing that mutates it.
// Every pass runs behind a single-slot gate.
type Engine struct {
	logger   *zap.Logger
	statsd   statsd.ClientInterface
	metrics  *telemetry.Metrics
	provider domain.LiveStatusProvider
	chat     domain.ChatPlatform
	opts     Options

	store    *Store
	softBans *SoftBans
	policy   *Policy
	composer *Composer

	gate *semaphore.Weighted

	// Guarded by gate.
	self    domain.User
	trusted bool
}

func NewEngine(logger *zap.Logger, sd statsd.ClientInterface, metrics *telemetry.Metrics, provider domain.LiveStatusProvider, chat domain.ChatPlatform, opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	if sd == nil {
		sd = &statsd.NoOpClient{}
	}

	softBans := NewSoftBans()

	return &Engine{
		logger:   logger,
		statsd:   sd,
		metrics:  metrics,
		provider: provider,
		chat:     chat,
		opts:     opts,

		store:    NewStore(),
		softBans: softBans,
		policy:   NewPolicy(opts.HardBans, softBans),
		composer: NewComposer(opts.MentionRoleID),

		gate: semaphore.NewWeighted(1),
	}
}

func (e *Engine) Policy() *Policy { return e.policy }

// Snapshot is a point-in-time copy of the engine's state.
type Snapshot struct {
	Records  []Record `json:"records"`
	SoftBans []string `json:"soft_bans"`
	HardBans []string `json:"hard_bans"`
}

func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Records:  e.store.Records(),
		SoftBans: e.softBans.List(),
		HardBans: e.policy.HardBans(),
	}
}

// Connect resolves the bot identity and the announcement channel, and marks the
// store for rebuild. It is called on start and on every reconnect.
func (e *Engine) Connect(ctx context.Context) error {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.gate.Release(1)

	self, err := e.chat.CurrentUser(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve bot user: %w", err)
	}

	ch, err := e.chat.GetChannel(ctx, e.opts.ChannelID)
	if err != nil {
		return fmt.Errorf("failed to resolve channel %s: %w", e.opts.ChannelID, err)
	}

	e.self = self
	e.trusted = false

	e.logger.Info("connected to announcement channel",
		zap.String("channel#id", ch.ID),
		zap.String("channel#name", ch.Name),
		zap.String("self#id", self.ID),
	)
	return nil
}

// Reconcile runs one pass. The returned error is non-nil only when the pass was
// aborted before announcing anything; item-level failures are in Outcome.Errors.
func (e *Engine) Reconcile(ctx context.Context) (Outcome, error) {
	release, err := e.enter(ctx)
	if err != nil {
		return Outcome{Aborted: true}, err
	}
	defer release()

	return e.reconcile(ctx)
}

// enter takes the pass gate and, when configured, the cross-process lock.
func (e *Engine) enter(ctx context.Context) (func(), error) {
	if err := e.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if e.opts.Lock == nil {
		return func() { e.gate.Release(1) }, nil
	}

	unlock, err := e.opts.Lock.Acquire(ctx)
	if err != nil {
		e.gate.Release(1)
		return nil, fmt.Errorf("failed to acquire pass lock: %w", err)
	}

	return func() {
		if err := unlock(); err != nil {
			e.logger.Warn("failed to release pass lock", zap.Error(err))
		}
		e.gate.Release(1)
	}, nil
}

func (e *Engine) reconcile(ctx context.Context) (out Outcome, err error) {
	start := time.Now()
	out.PassID = uuid.Must(uuid.NewV4()).String()
	logger := e.logger.With(zap.String("pass#id", out.PassID))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "monitor.Reconcile", trace.WithSpanKind(trace.SpanKindInternal))
	defer func() {
		out.Duration = time.Since(start)
		e.finish(logger, &out, err)

		span.SetAttributes(
			attribute.String("pass.id", out.PassID),
			attribute.Int("pass.live", out.Live),
			attribute.Int("pass.posted", out.Posted),
			attribute.Int("pass.deleted", out.Deleted),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger.Debug("starting reconciliation pass")

	broadcasts, err := e.provider.FetchLiveBroadcasts(ctx, e.opts.GameID)
	if err != nil {
		out.Aborted = true
		return out, fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
	}
	broadcasts = dedupe(broadcasts)
	out.Live = len(broadcasts)

	live := make(map[string]struct{}, len(broadcasts))
	for _, b := range broadcasts {
		live[b.ID] = struct{}{}
	}

	e.deleteHardBanned(ctx, logger, broadcasts, &out)
	e.releaseEnded(ctx, logger, live, &out)
	e.registerSoftBans(ctx, logger, &out)

	e.provider.SetPreviousBroadcasts(broadcasts)

	if !e.trusted {
		out.Rebuilt = true
		if err := e.rebuild(ctx, logger, broadcasts); err != nil {
			out.Aborted = true
			return out, fmt.Errorf("failed to rebuild announcement store: %w", err)
		}
	}

	filtered := make([]domain.Broadcast, 0, len(broadcasts))
	for _, b := range broadcasts {
		if e.policy.Allowed(&b) {
			filtered = append(filtered, b)
		}
	}

	if len(filtered) == 0 {
		logger.Debug("no announceable broadcasts")
		return out, nil
	}

	for i := range filtered {
		e.announce(ctx, logger, &filtered[i], &out)
	}

	return out, nil
}

func (e *Engine) finish(logger *zap.Logger, out *Outcome, err error) {
	tags := []string{"result:" + out.result()}
	_ = e.statsd.Histogram("reconcile.runtime", float64(out.Duration.Milliseconds()), tags, 1)
	_ = e.statsd.Gauge("announcements.tracked", float64(e.store.Len()), []string{}, 1)
	_ = e.statsd.Gauge("softbans", float64(e.softBans.Len()), []string{}, 1)

	e.metrics.ObservePass(out.result(), out.Duration)
	e.metrics.AddAnnouncements(telemetry.ActionPosted, out.Posted)
	e.metrics.AddAnnouncements(telemetry.ActionUpdated, out.Updated)
	e.metrics.AddAnnouncements(telemetry.ActionDeleted, out.Deleted)
	e.metrics.SetState(e.store.Len(), e.softBans.Len())

	if err != nil {
		logger.Error("reconciliation pass aborted", zap.Error(err), zap.Duration("duration", out.Duration))
		return
	}

	fields := []zap.Field{
		zap.Int("live", out.Live),
		zap.Int("posted", out.Posted),
		zap.Int("updated", out.Updated),
		zap.Int("deleted", out.Deleted),
		zap.Int("soft_banned", out.SoftBanned),
		zap.Int("released", out.Released),
		zap.Int("errors", len(out.Errors)),
		zap.Duration("duration", out.Duration),
	}
	if len(out.Errors) > 0 {
		logger.Warn("reconciliation pass finished with errors", append(fields, zap.Errors("errs", out.Errors))...)
		return
	}
	logger.Debug("reconciliation pass finished", fields...)
}

// deleteHardBanned takes down announcements whose owner has since been banned.
func (e *Engine) deleteHardBanned(ctx context.Context, logger *zap.Logger, broadcasts []domain.Broadcast, out *Outcome) {
	for i := range broadcasts {
		b := &broadcasts[i]
		if !e.policy.IsHardBanned(b) {
			continue
		}

		mid, ok := e.store.Get(b.ID)
		if !ok {
			continue
		}

		if err := e.deleteMessage(ctx, mid); err != nil {
			logger.Error("failed to delete banned announcement",
				zap.Error(err),
				zap.String("broadcast#id", b.ID),
				zap.String("owner#id", b.UserID),
				zap.String("message#id", mid),
			)
			out.fail(err)
			continue
		}

		e.store.Remove(b.ID)
		out.Deleted++
		logger.Info("deleted announcement of banned owner",
			zap.String("broadcast#id", b.ID),
			zap.String("owner#id", b.UserID),
			zap.String("message#id", mid),
		)
	}
}

// releaseEnded removes announcements and soft bans for broadcasts that are no
// longer live.
func (e *Engine) releaseEnded(ctx context.Context, logger *zap.Logger, live map[string]struct{}, out *Outcome) {
	for _, id := range e.softBans.List() {
		if _, ok := live[id]; ok {
			continue
		}
		if e.softBans.Remove(id) {
			out.Released++
			logger.Info("released soft ban of ended broadcast", zap.String("broadcast#id", id))
		}
	}

	for _, r := range e.store.Records() {
		if _, ok := live[r.BroadcastID]; ok {
			continue
		}

		if err := e.deleteMessage(ctx, r.MessageID); err != nil {
			// Keep the record so the delete is retried next pass.
			logger.Error("failed to delete ended announcement",
				zap.Error(err),
				zap.String("broadcast#id", r.BroadcastID),
				zap.String("message#id", r.MessageID),
			)
			out.fail(err)
			continue
		}

		e.store.Remove(r.BroadcastID)
		out.Deleted++
		logger.Info("deleted announcement of ended broadcast",
			zap.String("broadcast#id", r.BroadcastID),
			zap.String("message#id", r.MessageID),
		)
	}
}

// registerSoftBans soft-bans every tracked broadcast whose message is missing
// from the channel and drops its record. A failed listing leaves both the store
// and the soft-ban set untouched.
func (e *Engine) registerSoftBans(ctx context.Context, logger *zap.Logger, out *Outcome) {
	if e.store.Len() == 0 {
		return
	}

	own, err := e.ownMessages(ctx)
	if err != nil {
		logger.Warn("failed to list channel messages, skipping soft-ban detection", zap.Error(err))
		return
	}

	present := make(map[string]struct{}, len(own))
	for _, m := range own {
		present[m.ID] = struct{}{}
	}

	for _, r := range e.store.Records() {
		if _, ok := present[r.MessageID]; ok {
			continue
		}
		e.store.Remove(r.BroadcastID)
		if e.softBans.Add(r.BroadcastID) {
			out.SoftBanned++
			logger.Info("announcement removed by a moderator, soft-banning broadcast",
				zap.String("broadcast#id", r.BroadcastID),
				zap.String("message#id", r.MessageID),
			)
		}
	}
}

// announce posts a new message for b or refreshes the existing one.
func (e *Engine) announce(ctx context.Context, logger *zap.Logger, b *domain.Broadcast, out *Outcome) {
	fields := []zap.Field{
		zap.String("broadcast#id", b.ID),
		zap.String("owner#id", b.UserID),
		zap.String("owner#name", b.UserName),
		zap.Int("broadcast#viewers", b.ViewerCount),
	}

	mid, tracked := e.store.Get(b.ID)

	// The viewer threshold only gates creation; tracked broadcasts stay up.
	if !tracked && b.ViewerCount < e.opts.MinimumViewers {
		out.Skipped++
		logger.Debug("broadcast below viewer threshold, not announcing", fields...)
		return
	}

	icon, err := e.provider.GetOwnerIconURL(ctx, b.UserID)
	if err != nil {
		logger.Debug("failed to fetch owner icon", append(fields, zap.Error(err))...)
	}
	text, embed := e.composer.Compose(b, icon)

	if !tracked {
		msg, err := e.chat.PostMessage(ctx, e.opts.ChannelID, text, embed)
		if err != nil {
			// The message may have been created even though the response was
			// lost; the next pass rebuilds and adopts it.
			logger.Error("failed to post announcement", append(fields, zap.Error(err))...)
			out.fail(fmt.Errorf("post %s: %w", b.ID, err))
			e.trusted = false
			return
		}

		if err := e.store.Put(b.ID, msg.ID); err != nil {
			logger.Error("failed to track announcement", append(fields, zap.Error(err), zap.String("message#id", msg.ID))...)
			out.fail(err)
			e.trusted = false
			return
		}

		out.Posted++
		logger.Info("posted announcement", append(fields, zap.String("message#id", msg.ID))...)
		return
	}

	fields = append(fields, zap.String("message#id", mid))

	err = e.chat.EditMessage(ctx, e.opts.ChannelID, mid, text, embed)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// Picked up by soft-ban detection next pass, then dropped by the rebuild.
		logger.Warn("tracked announcement no longer exists, skipping update", fields...)
		e.trusted = false
	case err != nil:
		logger.Error("failed to update announcement", append(fields, zap.Error(err))...)
		out.fail(fmt.Errorf("update %s: %w", b.ID, err))
	default:
		out.Updated++
		logger.Debug("updated announcement", fields...)
	}
}

// deleteMessage treats an already-deleted message as success.
func (e *Engine) deleteMessage(ctx context.Context, messageID string) error {
	err := e.chat.DeleteMessage(ctx, e.opts.ChannelID, messageID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func (e *Engine) ownMessages(ctx context.Context) ([]domain.Message, error) {
	if e.self.ID == "" {
		self, err := e.chat.CurrentUser(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve bot user: %w", err)
		}
		e.self = self
	}

	msgs, err := e.chat.ListMessages(ctx, e.opts.ChannelID, e.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	return domain.FromSelf(msgs, e.self), nil
}

func dedupe(bs []domain.Broadcast) []domain.Broadcast {
	seen := make(map[string]struct{}, len(bs))
	out := make([]domain.Broadcast, 0, len(bs))
	for _, b := range bs {
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	return out
}
