package invite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records sent mail and fails the first failures calls.
type fakeTransport struct {
	failures int
	err      error

	calls    int
	subjects []string
	bodies   []string
	toEmails []string
}

func (f *fakeTransport) Send(_ context.Context, toEmail, _, subject, htmlBody string) error {
	f.calls++
	f.toEmails = append(f.toEmails, toEmail)
	f.subjects = append(f.subjects, subject)
	f.bodies = append(f.bodies, htmlBody)
	if f.calls <= f.failures {
		if f.err != nil {
			return f.err
		}
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

func validEmailPayload() EmailPayload {
	return EmailPayload{
		ToEmail:  "friend@example.com",
		ToName:   "小明",
		FromName: "小红",
		GameName: "PUBG",
		GameTime: "2025-01-01 20:00",
		Message:  "带上耳机",
	}
}

// newTestDispatcher wires a dispatcher whose sleeps are recorded instead of
// actually waited out.
func newTestDispatcher(transport Transport, limiter *RateLimiter) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(transport, limiter, 3, time.Second)
	slept := &[]time.Duration{}
	d.sleep = func(_ context.Context, dur time.Duration) error {
		*slept = append(*slept, dur)
		return nil
	}
	return d, slept
}

func TestDispatcherSendSucceedsFirstAttempt(t *testing.T) {
	transport := &fakeTransport{}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d, slept := newTestDispatcher(transport, limiter)

	err := d.Send(context.Background(), validEmailPayload())
	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, *slept, "no backoff on a clean first attempt")
	assert.Equal(t, "来自 小红 的游戏邀请", transport.subjects[0])
}

func TestDispatcherRetriesWithDoublingBackoff(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d, slept := newTestDispatcher(transport, limiter)

	err := d.Send(context.Background(), validEmailPayload())
	require.NoError(t, err, "third attempt succeeds within the budget")
	assert.Equal(t, 3, transport.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestDispatcherExhaustsRetryBudget(t *testing.T) {
	transport := &fakeTransport{failures: 3, err: errors.New("smtp: 454 temporary failure")}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d, slept := newTestDispatcher(transport, limiter)

	err := d.Send(context.Background(), validEmailPayload())

	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, 3, delivery.Attempts)
	assert.ErrorContains(t, delivery.Last, "454")
	assert.Equal(t, 3, transport.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
}

func TestDispatcherValidationRunsFirst(t *testing.T) {
	transport := &fakeTransport{}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d, _ := newTestDispatcher(transport, limiter)

	p := validEmailPayload()
	p.ToName = ""
	err := d.Send(context.Background(), p)

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "to_name", validation.Field)
	assert.Zero(t, transport.calls, "invalid payload must not reach the transport")

	// The failed validation must not have consumed a rate-limit slot either.
	allowed, _ := limiter.CheckAndRecord(p.ToEmail)
	assert.True(t, allowed)
}

func TestDispatcherReportsFirstMissingField(t *testing.T) {
	cases := []struct {
		name  string
		strip func(*EmailPayload)
		field string
	}{
		{"to_email", func(p *EmailPayload) { p.ToEmail = "" }, "to_email"},
		{"from_name", func(p *EmailPayload) { p.FromName = "" }, "from_name"},
		{"game_name", func(p *EmailPayload) { p.GameName = "" }, "game_name"},
		{"game_time", func(p *EmailPayload) { p.GameTime = "" }, "game_time"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validEmailPayload()
			tc.strip(&p)

			var validation *ValidationError
			require.ErrorAs(t, validatePayload(p), &validation)
			assert.Equal(t, tc.field, validation.Field)
		})
	}
}

func TestDispatcherOptionalMessageOmittedFromBody(t *testing.T) {
	transport := &fakeTransport{}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d, _ := newTestDispatcher(transport, limiter)

	p := validEmailPayload()
	p.Message = ""
	require.NoError(t, d.Send(context.Background(), p))

	body := transport.bodies[0]
	assert.NotContains(t, body, "附加消息", "empty message must omit the whole block")
	assert.Contains(t, body, "PUBG")
	assert.Contains(t, body, p.GameTime)
}

func TestDispatcherRateLimitRejection(t *testing.T) {
	transport := &fakeTransport{}
	limiter, _ := newTestLimiter(time.Hour, 1)
	d, _ := newTestDispatcher(transport, limiter)

	require.NoError(t, d.Send(context.Background(), validEmailPayload()))

	err := d.Send(context.Background(), validEmailPayload())
	var limited *RateLimitedError
	require.ErrorAs(t, err, &limited)
	assert.Equal(t, "friend@example.com", limited.Key)
	assert.Equal(t, 1, transport.calls, "rejected send must not touch the transport")
}

func TestDispatcherSlotKeptAfterDeliveryFailure(t *testing.T) {
	transport := &fakeTransport{failures: 10}
	limiter, _ := newTestLimiter(time.Hour, 1)
	d, _ := newTestDispatcher(transport, limiter)

	err := d.Send(context.Background(), validEmailPayload())
	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)

	// The failed delivery consumed the recipient's only slot.
	err = d.Send(context.Background(), validEmailPayload())
	var limited *RateLimitedError
	assert.ErrorAs(t, err, &limited)
}

func TestDispatcherSleepAbortsOnCancelledContext(t *testing.T) {
	transport := &fakeTransport{failures: 10}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d := NewDispatcher(transport, limiter, 3, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Send(ctx, validEmailPayload())
	var delivery *DeliveryError
	require.ErrorAs(t, err, &delivery)
	assert.Equal(t, 1, delivery.Attempts, "cancellation lands before the second attempt")
	assert.ErrorIs(t, delivery.Last, context.Canceled)
	assert.Equal(t, 1, transport.calls)
}

func TestInviteTemplateRendersChineseBody(t *testing.T) {
	transport := &fakeTransport{}
	limiter, _ := newTestLimiter(time.Hour, 10)
	d, _ := newTestDispatcher(transport, limiter)

	require.NoError(t, d.Send(context.Background(), validEmailPayload()))

	body := transport.bodies[0]
	for _, want := range []string{"游戏邀请", "小明", "小红", "带上耳机", "附加消息"} {
		assert.True(t, strings.Contains(body, want), "body should contain %q", want)
	}
}
