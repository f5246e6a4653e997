package invite

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog/log"
)

// EmailPayload carries everything needed to render and send one invitation
// email. GameTime is already formatted as a display string by the caller.
type EmailPayload struct {
	ToEmail  string
	ToName   string
	FromName string
	GameName string
	GameTime string
	Message  string
}

// inviteTemplate is the fixed HTML body of an invitation email. The
// additional-message block is omitted entirely, not rendered empty, when the
// payload has no message.
var inviteTemplate = template.Must(template.New("invite").Parse(`
<div style="max-width: 600px; margin: 0 auto; padding: 20px; font-family: Arial, sans-serif;">
	<h2 style="color: #4F46E5;">游戏邀请</h2>
	<p>亲爱的 {{.ToName}}：</p>
	<p>{{.FromName}} 邀请您一起玩 {{.GameName}}！</p>
	<div style="background-color: #f5f5f5; padding: 15px; border-radius: 5px; margin: 20px 0;">
		<p style="margin: 5px 0;"><strong>游戏：</strong>{{.GameName}}</p>
		<p style="margin: 5px 0;"><strong>时间：</strong>{{.GameTime}}</p>
		{{if .Message}}<p style="margin: 5px 0;"><strong>附加消息：</strong>{{.Message}}</p>{{end}}
	</div>
	<p>祝您玩得开心！</p>
	<hr style="border: 1px solid #eee; margin: 20px 0;">
	<p style="color: #666; font-size: 12px;">此邮件由游戏邀请系统自动发送，请勿直接回复。</p>
</div>`))

// Transport delivers one rendered email. Implementations must respect ctx
// and return within a bounded time so the dispatcher's retry loop stays
// finite in wall-clock time.
type Transport interface {
	Send(ctx context.Context, toEmail, toName, subject, htmlBody string) error
}

// Dispatcher formats and sends a single invitation email with bounded
// retry-with-backoff. Validation precedes rate limiting, which precedes any
// transport work; only transport failures are retried.
type Dispatcher struct {
	transport   Transport
	limiter     *RateLimiter
	maxAttempts int
	baseDelay   time.Duration

	// sleep is swappable so tests can observe the backoff schedule without
	// waiting for it.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher wires a dispatcher to its transport and rate limiter.
// maxAttempts and baseDelay below 1 fall back to the defaults (3, 1s).
func NewDispatcher(transport Transport, limiter *RateLimiter, maxAttempts int, baseDelay time.Duration) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Dispatcher{
		transport:   transport,
		limiter:     limiter,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		sleep:       sleepContext,
	}
}

// Send delivers one invitation email. Error taxonomy:
//   - *ValidationError: a required field is empty; no rate-limiter mutation,
//     no transport attempt.
//   - *RateLimitedError: the recipient's window is full; no transport attempt.
//   - *DeliveryError: every transport attempt failed; wraps the last error.
//
// The rate-limit slot is consumed at the check, before the first transport
// attempt, and stays consumed even if delivery ultimately fails. This bounds
// worst-case throughput per recipient.
func (d *Dispatcher) Send(ctx context.Context, p EmailPayload) error {
	if err := validatePayload(p); err != nil {
		return err
	}

	if allowed, retryAfter := d.limiter.CheckAndRecord(p.ToEmail); !allowed {
		log.Warn().Str("recipient", p.ToEmail).Dur("retryAfter", retryAfter).Msg("email rate limit exceeded")
		return &RateLimitedError{Key: p.ToEmail, RetryAfter: retryAfter}
	}

	subject := fmt.Sprintf("来自 %s 的游戏邀请", p.FromName)

	var body bytes.Buffer
	if err := inviteTemplate.Execute(&body, p); err != nil {
		// A render failure is a programming error, not a transport fault;
		// retrying it would fail identically.
		return &DeliveryError{Attempts: 0, Last: err}
	}

	delay := d.baseDelay
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := d.sleep(ctx, delay); err != nil {
				return &DeliveryError{Attempts: attempt - 1, Last: err}
			}
			delay *= 2
		}

		lastErr = d.transport.Send(ctx, p.ToEmail, p.ToName, subject, body.String())
		if lastErr == nil {
			return nil
		}
		log.Warn().
			Err(lastErr).
			Str("recipient", p.ToEmail).
			Int("attempt", attempt).
			Int("maxAttempts", d.maxAttempts).
			Msg("email send attempt failed")
	}

	return &DeliveryError{Attempts: d.maxAttempts, Last: lastErr}
}

// validatePayload checks the required fields in a fixed order so the first
// missing one is reported.
func validatePayload(p EmailPayload) error {
	required := []struct {
		field string
		value string
	}{
		{"to_email", p.ToEmail},
		{"to_name", p.ToName},
		{"from_name", p.FromName},
		{"game_name", p.GameName},
		{"game_time", p.GameTime},
	}
	for _, r := range required {
		if r.value == "" {
			return &ValidationError{Field: r.field}
		}
	}
	return nil
}

// sleepContext is a non-blocking (goroutine-level) sleep that aborts when
// the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
