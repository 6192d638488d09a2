// Package dispatch is the request boundary used by UI and page processes. It
// forwards a logical request to the background process and transparently
// recovers, once, from a lost connection.
package dispatch

import (
	"context"
	"time"

	"github.com/drippler/drippler"
	"github.com/rs/zerolog"
)

const (
	DefaultRecoveryPause = time.Second
	DefaultChannelPause  = 500 * time.Millisecond
	DefaultStatusTimeout = 3 * time.Second
)

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = log.With().Str("component", "dispatch").Logger()
	}
}

// WithRecoveryPause sets the wait between reinitializing and re-issuing.
func WithRecoveryPause(p time.Duration) Option {
	return func(d *Dispatcher) {
		d.recoveryPause = p
	}
}

// WithChannelPause sets the wait before waking an unavailable background process.
func WithChannelPause(p time.Duration) Option {
	return func(d *Dispatcher) {
		d.channelPause = p
	}
}

// WithStatusTimeout bounds Status.
func WithStatusTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		d.statusTimeout = t
	}
}

// WithSleep replaces the pause implementation.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) {
		d.sleep = sleep
	}
}

// Dispatcher issues requests over a Channel.
type Dispatcher struct {
	ch            Channel
	log           zerolog.Logger
	sleep         func(ctx context.Context, d time.Duration) error
	recoveryPause time.Duration
	channelPause  time.Duration
	statusTimeout time.Duration
}

// New creates a Dispatcher sending over ch.
func New(ch Channel, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ch:            ch,
		log:           zerolog.Nop(),
		sleep:         sleepContext,
		recoveryPause: DefaultRecoveryPause,
		channelPause:  DefaultChannelPause,
		statusTimeout: DefaultStatusTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Call issues action with payload. A failure because the remote service is
// not connected, or because the background process is unreachable, triggers
// one reinitialization and one re-issue; every other failure is returned as is.
func (d *Dispatcher) Call(ctx context.Context, action string, payload any) drippler.Response {
	req, err := drippler.NewRequest(action, payload)
	if err != nil {
		return drippler.Fail(drippler.Wrap(drippler.KindValidation, action, err))
	}
	return d.Send(ctx, req)
}

// Send is Call for an already encoded request.
func (d *Dispatcher) Send(ctx context.Context, req drippler.Request) drippler.Response {
	resp, err := d.ch.Send(ctx, req)
	if err != nil {
		if drippler.KindOf(err) != drippler.KindChannelUnavailable {
			return drippler.Fail(err)
		}
		d.log.Warn().Err(err).Str("action", req.Action).Msg("background process unreachable, attempting recovery")
		return d.recoverChannel(ctx, req)
	}

	if !resp.Success && resp.ErrorKind == drippler.KindNotConnected {
		d.log.Info().Str("action", req.Action).Msg("supabase not connected, attempting to reconnect")
		return d.recoverConnection(ctx, req, resp)
	}
	return resp
}

func (d *Dispatcher) recoverConnection(ctx context.Context, req drippler.Request, failed drippler.Response) drippler.Response {
	initResp, err := d.ch.Send(ctx, drippler.Request{Action: drippler.ActionInitSupabase})
	if err != nil || !initResp.Success {
		d.log.Warn().Err(err).Str("init_error", initResp.Error).Msg("reconnect failed")
		return failed
	}
	if err := d.sleep(ctx, d.recoveryPause); err != nil {
		return drippler.Fail(err)
	}

	resp, err := d.ch.Send(ctx, req)
	if err != nil {
		return drippler.Fail(err)
	}
	return resp
}

func (d *Dispatcher) recoverChannel(ctx context.Context, req drippler.Request) drippler.Response {
	if err := d.sleep(ctx, d.channelPause); err != nil {
		return drippler.Fail(err)
	}
	if _, err := d.ch.Send(ctx, drippler.Request{Action: drippler.ActionInitSupabase}); err != nil {
		d.log.Error().Err(err).Msg("failed to recover from background process disconnection")
		return drippler.Fail(drippler.ErrConnectionLost)
	}
	if err := d.sleep(ctx, d.recoveryPause); err != nil {
		return drippler.Fail(err)
	}

	resp, err := d.ch.Send(ctx, req)
	if err != nil {
		d.log.Error().Err(err).Msg("failed to recover from background process disconnection")
		return drippler.Fail(drippler.ErrConnectionLost)
	}
	return resp
}

// Status asks for the connection state. A check that does not answer within
// the status timeout is reported as a failure; its late answer is discarded.
func (d *Dispatcher) Status(ctx context.Context) drippler.Response {
	result := make(chan drippler.Response, 1)
	checkCtx := context.WithoutCancel(ctx)
	go func() {
		resp, err := d.ch.Send(checkCtx, drippler.Request{Action: drippler.ActionCheckSupabaseStatus})
		if err != nil {
			resp = drippler.Fail(err)
		}
		result <- resp
	}()

	timer := time.NewTimer(d.statusTimeout)
	defer timer.Stop()
	select {
	case resp := <-result:
		return resp
	case <-timer.C:
		return drippler.Fail(drippler.Errorf(drippler.KindConnectivity, "Status check timeout"), drippler.Fields{"connected": false})
	case <-ctx.Done():
		return drippler.Fail(drippler.Wrap(drippler.KindConnectivity, drippler.ActionCheckSupabaseStatus, ctx.Err()),
			drippler.Fields{"connected": false})
	}
}

// AuthCheck is the outcome of Authenticate.
type AuthCheck struct {
	Authenticated bool
	User          any
	Error         string
}

// Authenticate looks up the current user and, when there is none, tries one
// session refresh before giving up.
func (d *Dispatcher) Authenticate(ctx context.Context) AuthCheck {
	resp := d.Call(ctx, drippler.ActionGetCurrentUser, nil)
	if !resp.Success || resp.Get("user") == nil {
		d.log.Debug().Msg("initial auth check failed, trying session refresh")
		if refreshed := d.Call(ctx, drippler.ActionRefreshUserSession, nil); refreshed.Success && refreshed.Get("user") != nil {
			resp = refreshed
		}
	}

	if resp.Success && resp.Get("user") != nil {
		return AuthCheck{Authenticated: true, User: resp.Get("user")}
	}
	msg := resp.Error
	if msg == "" {
		msg = drippler.ErrAuthRequired.Error()
	}
	return AuthCheck{Error: msg}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
