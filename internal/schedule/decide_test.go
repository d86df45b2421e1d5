package schedule

import (
	"testing"
	"time"
)

func TestDecideScenarioQuietHours(t *testing.T) {
	t.Parallel()
	s := Settings{PromptIntervalMinutes: 90, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	dec := Decide(s, at(23, 0), false, State{})
	if dec.Action != ActionWait || dec.Reason != ReasonQuietHours {
		t.Fatalf("decision = %+v, want wait for quiet hours", dec)
	}
	if dec.Delay != 8*time.Hour {
		t.Fatalf("delay = %v, want 8h", dec.Delay)
	}
}

func TestDecideScenarioWindowOpen(t *testing.T) {
	t.Parallel()
	s := Settings{PromptIntervalMinutes: 60, QuietHoursStart: "08:00", QuietHoursEnd: "08:00"}
	dec := Decide(s, at(12, 0), true, State{})
	if dec.Action != ActionWait || dec.Reason != ReasonWindowOpen {
		t.Fatalf("decision = %+v, want wait for open window", dec)
	}
	if dec.Delay != 5*time.Minute {
		t.Fatalf("delay = %v, want 5m", dec.Delay)
	}
}

func TestDecideScenarioEndOfDayBeforeTarget(t *testing.T) {
	t.Parallel()
	dec := Decide(eodSettings("22:00", "07:00"), at(20, 55), false, State{})
	if dec.Action != ActionWait || dec.Reason != ReasonEndOfDayWait {
		t.Fatalf("decision = %+v, want end-of-day wait", dec)
	}
	if dec.Delay != 5*time.Minute {
		t.Fatalf("delay = %v, want 5m", dec.Delay)
	}
}

func TestDecideScenarioEndOfDaySettleThenFire(t *testing.T) {
	t.Parallel()
	s := eodSettings("22:00", "07:00")

	first := Decide(s, at(21, 5), false, State{})
	if first.Action != ActionWait || first.Delay != 10*time.Minute {
		t.Fatalf("first decision = %+v, want 10m wait", first)
	}
	if !first.State.SettleUntil.Equal(at(21, 15)) {
		t.Fatalf("SettleUntil = %v, want 21:15", first.State.SettleUntil)
	}

	now := at(21, 16)
	second := Decide(s, now, false, first.State)
	if second.Action != ActionOpen {
		t.Fatalf("second decision = %+v, want open", second)
	}
	if second.State.LastEndOfDayPrompt != DayKey(now) {
		t.Fatalf("LastEndOfDayPrompt = %q, want %q", second.State.LastEndOfDayPrompt, DayKey(now))
	}
	if !second.State.SettleUntil.IsZero() {
		t.Fatal("settle marker not cleared after firing")
	}
	if want := at(21, 0).AddDate(0, 0, 1).Sub(now); second.Delay != want {
		t.Fatalf("next delay = %v, want %v", second.Delay, want)
	}
}

func TestDecidePausedUsesInterval(t *testing.T) {
	t.Parallel()
	s := Settings{PromptIntervalMinutes: 45, QuietHoursStart: "22:00", QuietHoursEnd: "07:00", IsPaused: true}
	dec := Decide(s, at(12, 0), false, State{})
	if dec.Action != ActionWait || dec.Reason != ReasonPaused || dec.Delay != 45*time.Minute {
		t.Fatalf("decision = %+v, want paused 45m wait", dec)
	}
}

func TestDecidePausedEndOfDayNeverFires(t *testing.T) {
	t.Parallel()
	s := eodSettings("22:00", "07:00")
	s.IsPaused = true
	dec := Decide(s, at(21, 30), false, State{SettleUntil: at(21, 10)})
	if dec.Action != ActionWait || dec.Reason != ReasonPaused {
		t.Fatalf("decision = %+v, want paused wait", dec)
	}
	if dec.Delay <= 0 {
		t.Fatalf("delay = %v, want positive", dec.Delay)
	}
}

func TestDecideOpensAndClampsInterval(t *testing.T) {
	t.Parallel()
	s := Settings{PromptIntervalMinutes: 0, QuietHoursStart: "22:00", QuietHoursEnd: "07:00"}
	dec := Decide(s, at(12, 0), false, State{})
	if dec.Action != ActionOpen || dec.Reason != ReasonPrompt {
		t.Fatalf("decision = %+v, want open", dec)
	}
	if dec.Delay != time.Minute {
		t.Fatalf("delay = %v, want 1m", dec.Delay)
	}
}

func TestDecideEndOfDayDedupe(t *testing.T) {
	t.Parallel()
	s := eodSettings("22:00", "07:00")
	st := State{}
	opened := map[string]int{}
	now := at(0, 0)
	end := now.AddDate(0, 0, 3)
	for now.Before(end) {
		dec := Decide(s, now, false, st)
		st = dec.State
		if dec.Action == ActionOpen {
			opened[DayKey(now)]++
		}
		// Tick far more often than the scheduler would.
		now = now.Add(7 * time.Minute)
	}
	if len(opened) != 3 {
		t.Fatalf("prompted on %d days, want 3: %v", len(opened), opened)
	}
	for day, n := range opened {
		if n != 1 {
			t.Fatalf("%s prompted %d times, want 1", day, n)
		}
	}
}

func TestIntervalDelayClamp(t *testing.T) {
	t.Parallel()
	for _, m := range []int{-5, 0, 1} {
		if got := IntervalDelay(m); got != time.Minute {
			t.Fatalf("IntervalDelay(%d) = %v, want 1m", m, got)
		}
	}
	if got := IntervalDelay(90); got != 90*time.Minute {
		t.Fatalf("IntervalDelay(90) = %v", got)
	}
}
