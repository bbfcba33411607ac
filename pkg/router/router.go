package router

import (
	"context"
	"fmt"
	"time"

	"oneclick/pkg/channel"
)

// DefaultStepDelay is the pause after each deploy step message.
const DefaultStepDelay = 400 * time.Millisecond

// WaitFunc suspends the calling session for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Router turns one inbound line into the replies for its intent. It keeps no
// per-session state, so a single Router serves every session concurrently.
type Router struct {
	catalog   Catalog
	stepDelay time.Duration
	wait      WaitFunc
}

type Option func(*Router)

// WithCatalog selects the reply catalog.
func WithCatalog(catalog Catalog) Option {
	return func(r *Router) {
		r.catalog = catalog
	}
}

// WithStepDelay sets the pause after each deploy step. Zero disables pacing.
func WithStepDelay(delay time.Duration) Option {
	return func(r *Router) {
		if delay >= 0 {
			r.stepDelay = delay
		}
	}
}

// WithWaitFunc replaces the timer-based wait, mainly for tests.
func WithWaitFunc(wait WaitFunc) Option {
	return func(r *Router) {
		if wait != nil {
			r.wait = wait
		}
	}
}

func New(opts ...Option) *Router {
	r := &Router{
		catalog:   DefaultCatalog(),
		stepDelay: DefaultStepDelay,
		wait:      waitContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Greeting is the handshake line sent when a session opens.
func (r *Router) Greeting() string {
	return r.catalog.Greeting
}

// Route classifies line and sends its replies through sender.
func (r *Router) Route(ctx context.Context, line string, sender channel.Sender) error {
	_, err := r.Dispatch(ctx, Classify(line), sender)
	return err
}

// outbound is one planned reply; paced replies are followed by the step delay.
type outbound struct {
	text  string
	paced bool
}

// Plan returns the ordered replies for intent without sending them.
func (r *Router) Plan(intent Intent) []string {
	planned := r.plan(intent)
	if len(planned) == 0 {
		return nil
	}

	lines := make([]string, 0, len(planned))
	for _, item := range planned {
		lines = append(lines, item.text)
	}
	return lines
}

func (r *Router) plan(intent Intent) []outbound {
	switch intent.Kind {
	case KindEmpty:
		return nil
	case KindDeploy:
		planned := make([]outbound, 0, len(r.catalog.Steps)+2)
		planned = append(planned, outbound{text: r.catalog.intro(intent.Target)})
		for _, label := range r.catalog.Steps {
			planned = append(planned, outbound{text: stepLine(label), paced: true})
		}
		return append(planned, outbound{text: r.catalog.done(intent.Target)})
	case KindDeployPrompt:
		return []outbound{{text: r.catalog.DeployPrompt}}
	case KindCameraHint:
		return []outbound{{text: r.catalog.CameraHint}}
	case KindEcho:
		return []outbound{{text: r.catalog.echo(intent.Text)}}
	default:
		panic(fmt.Sprintf("router: unhandled intent kind %d", intent.Kind))
	}
}

// Dispatch sends the replies for intent strictly in order and returns how
// many were sent. The first failed send or interrupted wait aborts the rest.
func (r *Router) Dispatch(ctx context.Context, intent Intent, sender channel.Sender) (int, error) {
	sent := 0
	for _, item := range r.plan(intent) {
		if err := sender.Send(ctx, item.text); err != nil {
			return sent, fmt.Errorf("send %s reply: %w", intent.Kind, err)
		}
		sent++

		if !item.paced || r.stepDelay <= 0 {
			continue
		}
		if err := r.wait(ctx, r.stepDelay); err != nil {
			return sent, fmt.Errorf("pace %s reply: %w", intent.Kind, err)
		}
	}

	return sent, nil
}

func waitContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return channel.NewError(channel.ErrorPeerDisconnected, ctx.Err())
	case <-timer.C:
		return nil
	}
}
