package bantai

import "testing"

func TestAllowDenySkip_Kind(t *testing.T) {
	t.Parallel()

	if got := Allow(ResultOpts{}).Kind; got != KindAllow {
		t.Errorf("Allow().Kind = %v, want KindAllow", got)
	}
	if got := Deny(ResultOpts{}).Kind; got != KindDeny {
		t.Errorf("Deny().Kind = %v, want KindDeny", got)
	}
	if got := Skip(ResultOpts{}).Kind; got != KindSkip {
		t.Errorf("Skip().Kind = %v, want KindSkip", got)
	}
}

func TestResult_Predicates(t *testing.T) {
	t.Parallel()

	if !Allow(ResultOpts{}).Allowed() {
		t.Error("Allow().Allowed() = false, want true")
	}
	if !Deny(ResultOpts{}).Denied() {
		t.Error("Deny().Denied() = false, want true")
	}
	if !Skip(ResultOpts{}).Skipped() {
		t.Error("Skip().Skipped() = false, want true")
	}
	if Deny(ResultOpts{}).Allowed() {
		t.Error("Deny().Allowed() = true, want false")
	}
}

func TestResult_ReasonAndMeta(t *testing.T) {
	t.Parallel()

	r := Deny(ResultOpts{Reason: "too many requests", Meta: map[string]any{"limit": 5}})
	if r.Reason != "too many requests" {
		t.Errorf("Reason = %q, want %q", r.Reason, "too many requests")
	}
	if r.Meta["limit"] != 5 {
		t.Errorf("Meta[limit] = %v, want 5", r.Meta["limit"])
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	cases := map[Kind]string{KindAllow: "allow", KindDeny: "deny", KindSkip: "skip"}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
