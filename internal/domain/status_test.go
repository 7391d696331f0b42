package domain

import "testing"

func TestStatusTerminalSet(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusDelivered, StatusPermanentFailure, StatusTechnicalFailure, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}

	open := []Status{StatusCreated, StatusSending, StatusSent, StatusTemporaryFailure}
	for _, s := range open {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestCanTransitionTerminalMonotonicity(t *testing.T) {
	t.Parallel()

	all := []Status{
		StatusCreated, StatusSending, StatusSent, StatusDelivered,
		StatusTemporaryFailure, StatusPermanentFailure, StatusTechnicalFailure, StatusCancelled,
	}

	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			if CanTransition(from, to) {
				t.Errorf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusCreated, StatusSending, true},
		{StatusSending, StatusSent, true},
		{StatusSending, StatusDelivered, true},
		{StatusSent, StatusDelivered, true},
		{StatusSent, StatusTemporaryFailure, true},
		{StatusTemporaryFailure, StatusDelivered, true},
		{StatusTemporaryFailure, StatusPermanentFailure, true},
		{StatusSent, StatusSending, false},
		{StatusDelivered, StatusPermanentFailure, false},
		{StatusPermanentFailure, StatusDelivered, false},
		{StatusCancelled, StatusSending, false},
	}

	for _, tc := range testCases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	status, err := ParseStatusFromString("  Delivered ")
	if err != nil {
		t.Fatalf("ParseStatusFromString() error = %v", err)
	}
	if status != StatusDelivered {
		t.Fatalf("status = %s, want delivered", status)
	}

	if _, err := ParseStatusFromString("unknown"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestBounceOutcomeTaxonomy(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		kind       EventKind
		subtype    string
		wantStatus Status
		wantReason StatusReason
	}{
		{"general is undeliverable", EventHardBounce, "general", StatusPermanentFailure, ReasonUndeliverable},
		{"no-email is undeliverable", EventHardBounce, "no-email", StatusPermanentFailure, ReasonUndeliverable},
		{"suppressed is undeliverable", EventHardBounce, "Suppressed", StatusPermanentFailure, ReasonUndeliverable},
		{"mailbox-full is retryable", EventSoftBounce, "mailbox-full", StatusTemporaryFailure, ReasonRetryable},
		{"message-too-large is retryable", EventSoftBounce, "MESSAGE-TOO-LARGE", StatusTemporaryFailure, ReasonRetryable},
		{"unknown hard subtype", EventHardBounce, "on-account-suppression-list", StatusPermanentFailure, ReasonUnknownBounceSubtype},
		{"unknown soft subtype", EventSoftBounce, "content-rejected", StatusTemporaryFailure, ReasonUnknownBounceSubtype},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			event := ProviderEvent{Kind: tc.kind, BounceSubtype: tc.subtype}
			status, reason := event.BounceOutcome()
			if status != tc.wantStatus {
				t.Errorf("status = %s, want %s", status, tc.wantStatus)
			}
			if reason != tc.wantReason {
				t.Errorf("reason = %s, want %s", reason, tc.wantReason)
			}
		})
	}
}

func TestCallbackConfigStatusFilter(t *testing.T) {
	t.Parallel()

	cfg := ServiceCallbackConfig{
		ServiceID: "svc-1",
		Purpose:   PurposeDeliveryStatus,
		Channel:   ChannelWebhook,
		URL:       "https://example.com/callback",
	}

	if got := len(cfg.StatusFilter()); got != len(CompletedStatuses()) {
		t.Fatalf("default filter size = %d, want %d", got, len(CompletedStatuses()))
	}
	if !cfg.WantsStatus(StatusDelivered) {
		t.Fatal("default filter should include delivered")
	}
	if cfg.WantsStatus(StatusSending) {
		t.Fatal("default filter should not include sending")
	}

	cfg.Statuses = []Status{StatusPermanentFailure}
	if cfg.WantsStatus(StatusDelivered) {
		t.Fatal("explicit filter should exclude delivered")
	}
	if !cfg.WantsStatus(StatusPermanentFailure) {
		t.Fatal("explicit filter should include permanent-failure")
	}
}

func TestCallbackConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := ServiceCallbackConfig{
		ServiceID: "svc-1",
		Purpose:   PurposeDeliveryStatus,
		Channel:   ChannelWebhook,
		URL:       "http://example.com/callback",
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("http url should be rejected")
	}

	cfg.URL = "https://example.com/callback"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	queueCfg := ServiceCallbackConfig{
		ServiceID: "svc-1",
		Purpose:   PurposeComplaint,
		Channel:   ChannelQueue,
	}
	if err := queueCfg.Validate(); err == nil {
		t.Fatal("queue channel without queue name should be rejected")
	}
}

func TestValidateBearerToken(t *testing.T) {
	t.Parallel()

	if err := ValidateBearerToken("short"); err == nil {
		t.Fatal("short token should be rejected")
	}
	if err := ValidateBearerToken("long-enough-token"); err != nil {
		t.Fatalf("ValidateBearerToken() error = %v", err)
	}
}
