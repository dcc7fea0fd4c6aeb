package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gatslabs/tradeflow/internal/book"
	"github.com/gatslabs/tradeflow/internal/cache/redis"
	"github.com/gatslabs/tradeflow/internal/domain"
	"github.com/gatslabs/tradeflow/internal/notify"
	"github.com/gatslabs/tradeflow/internal/server/ws"
)

// publishTimeout bounds the Redis writes done on each aggregation tick.
const publishTimeout = 2 * time.Second

// Publisher fans aggregator output out to the WebSocket hub, the optional
// Redis cache and bus, and the notifier. It runs on the aggregation tick via
// OnState.
type Publisher struct {
	deps       *Dependencies
	hub        *ws.Hub
	bigWallUSD float64
	logger     *slog.Logger

	prevColor  domain.SignalColor
	prevStates map[string]domain.ConnectionState
}

// NewPublisher creates a Publisher. hub may be nil when the server is
// disabled.
func NewPublisher(deps *Dependencies, hub *ws.Hub, bigWallUSD float64, logger *slog.Logger) *Publisher {
	return &Publisher{
		deps:       deps,
		hub:        hub,
		bigWallUSD: bigWallUSD,
		logger:     logger.With(slog.String("component", "publisher")),
		prevStates: make(map[string]domain.ConnectionState),
	}
}

// OnState is invoked by the aggregator after every tick. The aggregator
// serializes calls, so Publisher state needs no locking.
func (p *Publisher) OnState(state domain.AggregateState, sig domain.Signal) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	views := p.buildViews()

	if p.hub != nil {
		for _, v := range views {
			p.hub.BroadcastJSON(ws.ChannelBookPrefix+v.ID, v)
		}
		p.hub.BroadcastJSON(ws.ChannelSignal, sig)
		p.hub.BroadcastJSON(ws.ChannelAggregate, state)
	}

	if p.deps.BookCache != nil {
		for _, v := range views {
			if err := p.deps.BookCache.SetView(ctx, v); err != nil {
				p.logger.Debug("cache view write failed", slog.String("error", err.Error()))
			}
		}
		if err := p.deps.BookCache.SetAggregate(ctx, state, sig); err != nil {
			p.logger.Debug("cache aggregate write failed", slog.String("error", err.Error()))
		}
	}

	if p.deps.SignalBus != nil {
		for _, v := range views {
			if data, err := json.Marshal(v); err == nil {
				if err := p.deps.SignalBus.Publish(ctx, redis.ChannelBookPrefix+v.ID, data); err != nil {
					p.logger.Debug("bus book publish failed", slog.String("error", err.Error()))
				}
			}
		}
		if data, err := json.Marshal(state); err == nil {
			if err := p.deps.SignalBus.Publish(ctx, redis.ChannelAggregate, data); err != nil {
				p.logger.Debug("bus aggregate publish failed", slog.String("error", err.Error()))
			}
		}
	}

	p.publishSignal(ctx, state, sig)
	p.watchFeeds(ctx)
}

// publishSignal pushes the signal to the bus and alerts on color flips. The
// first tick only sets the baseline.
func (p *Publisher) publishSignal(ctx context.Context, state domain.AggregateState, sig domain.Signal) {
	if p.deps.SignalBus != nil {
		if data, err := json.Marshal(map[string]any{"state": state, "signal": sig}); err == nil {
			if err := p.deps.SignalBus.Publish(ctx, redis.ChannelSignal, data); err != nil {
				p.logger.Debug("bus publish failed", slog.String("error", err.Error()))
			}
		}
	}

	prev := p.prevColor
	p.prevColor = sig.Color
	if prev == "" || prev == sig.Color {
		return
	}

	title, message := notify.SignalFlipMessage(domain.Signal{Color: prev}, sig, state)
	if err := p.deps.Notifier.Notify(ctx, notify.EventSignalFlip, title, message); err != nil {
		p.logger.Warn("signal flip notification failed", slog.String("error", err.Error()))
	}

	if p.deps.SignalBus != nil {
		if data, err := json.Marshal(map[string]any{
			"from":   prev,
			"signal": sig,
			"ts":     state.Timestamp,
		}); err == nil {
			if err := p.deps.SignalBus.StreamAppend(ctx, redis.StreamSignals, data); err != nil {
				p.logger.Debug("bus stream append failed", slog.String("error", err.Error()))
			}
		}
	}
}

// watchFeeds alerts when a book's connection state changes, e.g. a live feed
// degrading to the simulator.
func (p *Publisher) watchFeeds(ctx context.Context) {
	states := p.deps.Manager.States()

	for id, cur := range states {
		prev, seen := p.prevStates[id]
		p.prevStates[id] = cur
		if !seen || prev == cur {
			continue
		}

		cfg, err := p.deps.Store.Config(id)
		if err != nil {
			continue
		}
		event := notify.EventFeedLive
		if cur == domain.StateSimulated {
			event = notify.EventFeedDegraded
		}
		title, message := notify.FeedStateMessage(cfg, cur)
		if err := p.deps.Notifier.Notify(ctx, event, title, message); err != nil {
			p.logger.Warn("feed state notification failed", slog.String("error", err.Error()))
		}
	}

	for id := range p.prevStates {
		if _, ok := states[id]; !ok {
			delete(p.prevStates, id)
			if p.deps.BookCache != nil {
				if err := p.deps.BookCache.DeleteView(ctx, id); err != nil {
					p.logger.Debug("cache view delete failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

// buildViews projects every tracked book through the filter pipeline.
func (p *Publisher) buildViews() []domain.BookView {
	configs := p.deps.Store.Configs()
	views := make([]domain.BookView, 0, len(configs))
	for _, cfg := range configs {
		v, err := p.deps.Store.View(cfg.ID, domain.SortByUSD, book.ViewOptions{
			Rate:       1,
			BigWallUSD: p.bigWallUSD,
		})
		if err != nil {
			continue
		}
		state, _ := p.deps.Manager.State(cfg.ID)
		out := domain.BookView{
			ID:          cfg.ID,
			Exchange:    cfg.Exchange,
			Symbol:      cfg.Symbol,
			State:       state.String(),
			Bids:        v.Bids,
			Asks:        v.Asks,
			BestBid:     v.BestBid,
			BestAsk:     v.BestAsk,
			SpreadBps:   v.SpreadBps,
			TotalBidUSD: v.TotalBidUSD,
			TotalAskUSD: v.TotalAskUSD,
			LastTrade:   v.LastTrade,
		}
		if snap, err := p.deps.Store.Snapshot(cfg.ID); err == nil {
			out.Timestamp = snap.Timestamp
		}
		views = append(views, out)
	}
	return views
}
