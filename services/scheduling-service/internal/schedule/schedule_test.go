package schedule

import "testing"

func TestDayNormalize(t *testing.T) {
	d := Day{
		IsWorking: true,
		Windows: []Window{
			{StartMinute: 780, EndMinute: 1020},
			{StartMinute: 600, EndMinute: 540}, // inverted, dropped
			{StartMinute: 540, EndMinute: 720},
			{StartMinute: -10, EndMinute: 60}, // out of range, dropped
		},
	}
	got := d.Normalize()
	if !got.IsWorking || len(got.Windows) != 2 {
		t.Fatalf("Normalize = %+v", got)
	}
	if got.Windows[0].StartMinute != 540 || got.Windows[1].StartMinute != 780 {
		t.Fatalf("windows not sorted: %+v", got.Windows)
	}
}

func TestDayNormalize_DegradesToNotWorking(t *testing.T) {
	d := Day{IsWorking: true, Windows: []Window{{StartMinute: 600, EndMinute: 600}}}
	if got := d.Normalize(); got.IsWorking {
		t.Fatalf("day with no valid windows should not be working: %+v", got)
	}
	if got := (Day{IsWorking: false, Windows: []Window{{StartMinute: 540, EndMinute: 1020}}}).Normalize(); got.IsWorking || got.Windows != nil {
		t.Fatal("not-working day must normalize to the empty shape")
	}
}

func TestIntersect(t *testing.T) {
	open := []Window{{StartMinute: 540, EndMinute: 720}, {StartMinute: 780, EndMinute: 1020}}
	staff := []Window{{StartMinute: 600, EndMinute: 900}}

	got := Intersect(open, staff)
	want := []Window{{StartMinute: 600, EndMinute: 720}, {StartMinute: 780, EndMinute: 900}}
	if len(got) != len(want) {
		t.Fatalf("Intersect = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Intersect[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestIntersect_Disjoint(t *testing.T) {
	if got := Intersect([]Window{{StartMinute: 540, EndMinute: 600}}, []Window{{StartMinute: 600, EndMinute: 660}}); len(got) != 0 {
		t.Fatalf("touching windows must not intersect: %+v", got)
	}
}
