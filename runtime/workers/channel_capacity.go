package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"
)

type NamedChannel struct {
	Name    string
	Channel any
}

// QueueRecorder receives the sampled fill level of each channel.
type QueueRecorder interface {
	SetQueue(name string, length, capacity int)
}

// ChannelCapacityWorker periodically reports the current channel capacity and length.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with the goroutines using the channels.
type ChannelCapacityWorker struct {
	log             *slog.Logger
	channels        []NamedChannel
	recorder        QueueRecorder
	metricInterval  time.Duration
	warnFillPercent int
}

func NewChannelCapacityWorker(log *slog.Logger,
	channels []NamedChannel, recorder QueueRecorder,
	metricInterval time.Duration, warnFillPercent int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log: log, channels: channels,
		recorder:        recorder,
		metricInterval:  metricInterval,
		warnFillPercent: warnFillPercent,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

func (w ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.recorder.SetQueue(nc.Name, length, capacity)

		if capacity > 0 && w.warnFillPercent > 0 && length*100 >= capacity*w.warnFillPercent {
			w.log.Warn("Channel nearly full", "name", nc.Name, "length", length, "capacity", capacity)
		}
	}
}
