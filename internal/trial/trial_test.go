package trial

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestStart(t *testing.T) {
	w := Start(epoch, 0)
	if !w.Active() {
		t.Fatal("Start() should produce an active window")
	}
	if got := w.ExpiresAt.Sub(*w.StartedAt); got != DefaultDuration {
		t.Errorf("duration = %v; want %v", got, DefaultDuration)
	}
}

func TestWindow_Valid(t *testing.T) {
	w := Start(epoch, DefaultDuration)

	if !w.Valid(epoch) {
		t.Error("Valid() at start = false; want true")
	}
	if !w.Valid(epoch.Add(DefaultDuration - time.Second)) {
		t.Error("Valid() just before expiry = false; want true")
	}
	if w.Valid(epoch.Add(DefaultDuration)) {
		t.Error("Valid() at expiry = true; want false")
	}
	if (Window{}).Valid(epoch) {
		t.Error("zero window should not be valid")
	}
}

func TestWindow_DaysRemaining(t *testing.T) {
	w := Start(epoch, DefaultDuration)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"start", epoch, 30},
		{"one hour in", epoch.Add(time.Hour), 30},
		{"23 days in", epoch.Add(23 * 24 * time.Hour), 7},
		{"last hour", epoch.Add(DefaultDuration - time.Hour), 1},
		{"expired", epoch.Add(DefaultDuration + time.Hour), 0},
		{"long expired", epoch.Add(90 * 24 * time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.DaysRemaining(tt.now); got != tt.want {
				t.Errorf("DaysRemaining() = %d; want %d", got, tt.want)
			}
		})
	}

	if got := (Window{}).DaysRemaining(epoch); got != 0 {
		t.Errorf("zero window DaysRemaining() = %d; want 0", got)
	}
}

func TestShouldRemind(t *testing.T) {
	for days := -1; days <= 30; days++ {
		want := days == 7 || days == 3 || days == 1 || days == 0
		if got := ShouldRemind(days); got != want {
			t.Errorf("ShouldRemind(%d) = %v; want %v", days, got, want)
		}
	}
}

func TestReminderMessage(t *testing.T) {
	for _, days := range []int{0, 1, 2, 3, 5, 7} {
		if ReminderMessage(days) == "" {
			t.Errorf("ReminderMessage(%d) is empty", days)
		}
	}
	if msg := ReminderMessage(8); msg != "" {
		t.Errorf("ReminderMessage(8) = %q; want empty", msg)
	}
	if ReminderMessage(3) == ReminderMessage(7) {
		t.Error("3 and 7 days should use different wording")
	}
}

func TestWindow_Describe(t *testing.T) {
	w := Start(epoch, DefaultDuration)
	st := w.Describe(epoch.Add(23 * 24 * time.Hour))
	if !st.Trial || !st.Valid || st.DaysRemaining != 7 || !st.Remind || st.Message == "" {
		t.Errorf("Describe() = %+v", st)
	}

	if st := (Window{}).Describe(epoch); st.Trial {
		t.Errorf("zero window Describe() = %+v; want non-trial", st)
	}
}
