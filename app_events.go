package main

import (
	"context"

	"layerlens/internal/capture"
	"layerlens/internal/display"
	"layerlens/internal/engine"
	"layerlens/internal/wsserver"
)

// emitUpdates is the engine sink. It runs on the engine worker with
// engine.emitMu held, once per transition.
func (a *App) emitUpdates(updates []engine.Update) {
	for _, u := range updates {
		a.debouncer.Apply(u)
	}
	a.hub.Send(wsserver.UpdatesMessage(updates))
	if a.recorder != nil {
		a.recorder.Observe(updates)
	}
}

// publishState is the debouncer's Publish callback. It runs with the
// debouncer lock held, from the engine worker or a release timer.
func (a *App) publishState(s display.State) {
	a.lastState.Store(&s)
	a.hub.Send(wsserver.StateMessage(s))
}

// bootstrapMessages is what a newly connected overlay needs to draw from
// scratch. It runs with the hub write lock held and reads only atomics.
func (a *App) bootstrapMessages() []wsserver.Message {
	var msgs []wsserver.Message
	if l := a.activeLayout.Load(); l != nil {
		msgs = append(msgs, wsserver.LayoutMessage(l))
	}
	if s := a.lastState.Load(); s != nil {
		msgs = append(msgs, wsserver.StateMessage(*s))
	}
	for _, e := range a.opts.logs.ring.Recent() {
		msgs = append(msgs, wsserver.LogMessage(e))
	}
	return msgs
}

// forwardLogs sends queued Warn+ records to the overlay. Sending from the
// logging goroutine itself could re-enter the hub write lock.
func (a *App) forwardLogs(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-a.opts.logs.ch:
			a.hub.Send(wsserver.LogMessage(e))
		}
	}
}

// runCapture feeds the event queue from the platform source.
func (a *App) runCapture(ctx context.Context) error {
	src := a.opts.newSource(capture.Options{Devices: a.getConfigSnapshot().Devices})
	return src.Run(ctx, func(ev engine.KeyEvent) {
		select {
		case a.events <- ev:
		case <-ctx.Done():
		}
	})
}

func (a *App) runEngine(ctx context.Context) error {
	return a.engine.Run(ctx, a.events, engine.SinkFunc(a.emitUpdates))
}
