package tracking

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"fakebroker/api/models"
	"fakebroker/api/store"
)

func float64p(v float64) *float64 { return &v }
func int64p(v int64) *int64       { return &v }

func newTestTracker(opts ...Option) (*Tracker, *store.MemoryStore) {
	mem := store.NewMemoryStore()
	clock := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	opts = append([]Option{
		WithClock(func() time.Time { return clock }),
		WithLocation(time.UTC),
	}, opts...)
	return New(mem, mem, opts...), mem
}

func TestRecordEvent_Validation(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()

	tests := []struct {
		name  string
		user  string
		req   models.EventRequest
		field string
	}{
		{"no user", "", models.EventRequest{SessionID: "s", Type: "click", Target: "buy"}, "user_id"},
		{"no session", "u1", models.EventRequest{Type: "click", Target: "buy"}, "session_id"},
		{"no type", "u1", models.EventRequest{SessionID: "s", Target: "buy"}, "type"},
		{"no target", "u1", models.EventRequest{SessionID: "s", Type: "click"}, "target"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tr.RecordEvent(ctx, tc.user, tc.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Field = %q, want %q", verr.Field, tc.field)
			}
		})
	}

	events, _ := mem.FindEvents(ctx, "u1", "")
	if len(events) != 0 {
		t.Errorf("validation failures persisted %d events", len(events))
	}
}

func TestRecordEvent_UnknownSessionStillStored(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()

	if _, err := tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s-ghost", Type: "click", Target: "buy"}); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	events, _ := mem.FindEvents(ctx, "u1", "")
	if len(events) != 1 {
		t.Errorf("got %d events, want 1", len(events))
	}
	summaries, _ := mem.ListSummaries(ctx, "u1")
	if len(summaries) != 0 {
		t.Errorf("got %d summaries, want 0", len(summaries))
	}
}

func TestRecordEvent_SummaryCounters(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()

	if _, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	reqs := []models.EventRequest{
		{SessionID: "s1", Type: "click", Target: "buy"},
		{SessionID: "s1", Type: "click", Target: "sell"},
		{SessionID: "s1", Type: "click", Target: "chart"},
		{SessionID: "s1", Type: "hover", Target: "buy", HoverMs: float64p(120)},
		{SessionID: "s1", Type: "hover", Target: "sell", HoverMs: float64p(0)},
		{SessionID: "s1", Type: "hover", Target: "sell", HoverMs: float64p(-5)},
		{SessionID: "s1", Type: "hover", Target: "sell"},
		{SessionID: "s1", Type: "hover", Target: "chart", HoverMs: float64p(300)},
	}
	for _, r := range reqs {
		if _, err := tr.RecordEvent(ctx, "u1", r); err != nil {
			t.Fatalf("RecordEvent(%+v): %v", r, err)
		}
	}

	summaries, _ := mem.ListSummaries(ctx, "u1")
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want 1", len(summaries))
	}
	s := summaries[0]
	if s.EventsCount != int64(len(reqs)) {
		t.Errorf("EventsCount = %d, want %d", s.EventsCount, len(reqs))
	}
	if s.ClicksBuy != 1 || s.ClicksSell != 1 {
		t.Errorf("clicks = %d/%d, want 1/1", s.ClicksBuy, s.ClicksSell)
	}
	if !reflect.DeepEqual(s.HoversBuy, []float64{120}) {
		t.Errorf("HoversBuy = %v, want [120]", s.HoversBuy)
	}
	if len(s.HoversSell) != 0 {
		t.Errorf("HoversSell = %v, want empty (non-positive hovers are not summarized)", s.HoversSell)
	}

	events, _ := mem.FindEvents(ctx, "u1", "s1")
	if len(events) != len(reqs) {
		t.Errorf("stored %d events, want %d", len(events), len(reqs))
	}
}

func TestRecordEvent_UnknownSessionSentinel(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: models.UnknownSessionID})
	_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: models.UnknownSessionID, Type: "click", Target: "buy"})

	summaries, _ := mem.ListSummaries(ctx, "u1")
	if len(summaries) != 1 || summaries[0].ClicksBuy != 0 {
		t.Errorf("sentinel session summary was updated: %+v", summaries)
	}
}

func TestRecordEvent_ConcurrentClicksNotLost(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"})

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "click", Target: "buy"}); err != nil {
				t.Errorf("RecordEvent: %v", err)
			}
		}()
	}
	wg.Wait()

	summaries, _ := mem.ListSummaries(ctx, "u1")
	if summaries[0].ClicksBuy != n || summaries[0].EventsCount != n {
		t.Errorf("ClicksBuy = %d, EventsCount = %d; want %d", summaries[0].ClicksBuy, summaries[0].EventsCount, n)
	}
}

func TestRecordSessionSignal_Validation(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	for _, typ := range []string{"", "session_explode", "click"} {
		_, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: typ, SessionID: "s1"})
		var verr *ValidationError
		if !errors.As(err, &verr) || verr.Field != "type" {
			t.Errorf("type %q: err = %v, want ValidationError on type", typ, err)
		}
	}
}

func TestRecordSessionSignal_StartAssignsSessionID(t *testing.T) {
	tr, mem := newTestTracker()
	tr.newID = func() string { return "generated-1" }
	ctx := context.Background()

	rec, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart})
	if err != nil {
		t.Fatalf("RecordSessionSignal: %v", err)
	}
	if rec.SessionID != "generated-1" {
		t.Errorf("SessionID = %q, want generated-1", rec.SessionID)
	}
	summaries, _ := mem.ListSummaries(ctx, "u1")
	if len(summaries) != 1 || summaries[0].SessionID != "generated-1" {
		t.Errorf("summaries = %+v", summaries)
	}
}

func TestRecordSessionSignal_PauseResumeLoggedOnly(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"})
	_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "click", Target: "buy"})
	before, _ := mem.ListSummaries(ctx, "u1")

	for _, typ := range []string{models.SessionPause, models.SessionResume} {
		if _, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: typ, SessionID: "s1", SessionDuration: int64p(1000)}); err != nil {
			t.Fatalf("%s: %v", typ, err)
		}
	}

	after, _ := mem.ListSummaries(ctx, "u1")
	if !reflect.DeepEqual(before, after) {
		t.Errorf("pause/resume changed summary:\n%+v\n%+v", before, after)
	}
	all, _ := mem.FindSessions(ctx, "u1")
	kinds := map[string]int{}
	for _, s := range all {
		kinds[s.Type]++
	}
	if kinds[models.SessionPause] != 1 || kinds[models.SessionResume] != 1 {
		t.Errorf("lifecycle log kinds = %v", kinds)
	}
}

func TestRecordSessionSignal_ServerTimeWins(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	server := time.Date(2024, 6, 1, 14, 0, 0, 0, time.UTC)
	clientTS := time.Date(2024, 6, 1, 3, 15, 0, 0, time.UTC)

	rec, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1", Timestamp: &clientTS})
	if err != nil {
		t.Fatalf("RecordSessionSignal: %v", err)
	}
	if !rec.Timestamp.Equal(server) {
		t.Errorf("log Timestamp = %v, want server time %v", rec.Timestamp, server)
	}
	if rec.ClientTimestamp == nil || !rec.ClientTimestamp.Equal(clientTS) {
		t.Errorf("ClientTimestamp = %v, want %v", rec.ClientTimestamp, clientTS)
	}

	summaries, _ := mem.ListSummaries(ctx, "u1")
	if summaries[0].StartTime == nil || !summaries[0].StartTime.Equal(server) {
		t.Errorf("StartTime = %v, want %v", summaries[0].StartTime, server)
	}
	fv, err := tr.ComputeFeatures(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ComputeFeatures: %v", err)
	}
	if fv.PeakActivityHour == nil || *fv.PeakActivityHour != 14 {
		t.Errorf("PeakActivityHour = %v, want 14 from server time", fv.PeakActivityHour)
	}
}

func TestSessionRestart_ResetsCounters(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()

	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"})
	_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "click", Target: "buy"})
	_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "hover", Target: "sell", HoverMs: float64p(80)})
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"})

	summaries, _ := mem.ListSummaries(ctx, "u1")
	if len(summaries) != 1 {
		t.Fatalf("got %d summaries, want exactly 1", len(summaries))
	}
	s := summaries[0]
	if s.EventsCount != 0 || s.ClicksBuy != 0 || len(s.HoversSell) != 0 {
		t.Errorf("summary not zeroed after restart: %+v", s)
	}
}

func TestSessionEnd_LateEventsStillCount(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"})
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionEnd, SessionID: "s1", TotalSessionDuration: int64p(3000)})
	_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "click", Target: "sell"})

	s, _ := mem.ListSummaries(ctx, "u1")
	if !s[0].Completed || s[0].DurationMs == nil || *s[0].DurationMs != 3000 || s[0].EndTime == nil {
		t.Errorf("summary not finalized: %+v", s[0])
	}
	if s[0].ClicksSell != 1 {
		t.Errorf("ClicksSell = %d, want 1 after completion", s[0].ClicksSell)
	}
}

func TestSessionEnd_UnknownSessionNoop(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	if _, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionEnd, SessionID: "ghost", TotalSessionDuration: int64p(1)}); err != nil {
		t.Fatalf("RecordSessionSignal: %v", err)
	}
	summaries, _ := mem.ListSummaries(ctx, "u1")
	if len(summaries) != 0 {
		t.Errorf("got %d summaries, want 0", len(summaries))
	}
	all, _ := mem.FindSessions(ctx, "u1")
	if len(all) != 1 || all[0].Type != models.SessionEnd {
		t.Errorf("lifecycle log = %+v, want one session_end", all)
	}
}

func TestEndToEnd_Features(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()

	steps := []func() error{
		func() error {
			_, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1"})
			return err
		},
		func() error {
			_, err := tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "click", Target: "buy"})
			return err
		},
		func() error {
			_, err := tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "hover", Target: "sell", HoverMs: float64p(250)})
			return err
		},
		func() error {
			_, err := tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionEnd, SessionID: "s1", TotalSessionDuration: int64p(5000)})
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	fv, err := tr.ComputeFeatures(ctx, "u1", "all")
	if err != nil {
		t.Fatalf("ComputeFeatures: %v", err)
	}
	if fv.NumberOfClicksBuy != 1 || fv.NumberOfClicksSell != 0 {
		t.Errorf("clicks = %d/%d, want 1/0", fv.NumberOfClicksBuy, fv.NumberOfClicksSell)
	}
	if fv.AverageHoverSellDuration != 250 {
		t.Errorf("AverageHoverSellDuration = %d, want 250", fv.AverageHoverSellDuration)
	}
	if fv.AverageSessionDurationMs != 5000 {
		t.Errorf("AverageSessionDurationMs = %d, want 5000", fv.AverageSessionDurationMs)
	}
	if fv.TotalSessions != 1 {
		t.Errorf("TotalSessions = %d, want 1", fv.TotalSessions)
	}
	if fv.PeakActivityHour == nil || *fv.PeakActivityHour != 14 {
		t.Errorf("PeakActivityHour = %v, want 14", fv.PeakActivityHour)
	}

	again, _ := tr.ComputeFeatures(ctx, "u1", "all")
	if !reflect.DeepEqual(fv, again) {
		t.Errorf("ComputeFeatures not idempotent:\n%+v\n%+v", fv, again)
	}
}

func TestUserData_SessionFilter(t *testing.T) {
	tr, _ := newTestTracker()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: id})
		_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: id, Type: "click", Target: "buy"})
	}

	data, err := tr.UserData(ctx, "u1", "a")
	if err != nil {
		t.Fatalf("UserData: %v", err)
	}
	if data.Filter != "a" || len(data.Events) != 1 {
		t.Errorf("Filter = %q, events = %d", data.Filter, len(data.Events))
	}
	if data.Features.NumberOfClicksBuy != 1 || data.Features.TotalSessions != 1 {
		t.Errorf("filtered features = %+v", data.Features)
	}
	if data.TotalEvents != 2 || data.TotalSessions != 2 {
		t.Errorf("totals = %d events, %d sessions; want 2, 2", data.TotalEvents, data.TotalSessions)
	}

	all, _ := tr.UserData(ctx, "u1", "")
	if all.Filter != "all" || all.Features.NumberOfClicksBuy != 2 {
		t.Errorf("unfiltered = %+v", all.Features)
	}
}

func TestResetUserData(t *testing.T) {
	tr, mem := newTestTracker()
	ctx := context.Background()
	_, _ = tr.RecordSessionSignal(ctx, "u1", models.SessionSignal{Type: models.SessionStart, SessionID: "s1", UserAgent: &models.UserAgent{Device: "desktop"}})
	_, _ = tr.RecordEvent(ctx, "u1", models.EventRequest{SessionID: "s1", Type: "click", Target: "buy"})
	_, _ = tr.RecordSessionSignal(ctx, "u2", models.SessionSignal{Type: models.SessionStart, SessionID: "s9"})

	if err := tr.ResetUserData(ctx, "u1"); err != nil {
		t.Fatalf("ResetUserData: %v", err)
	}

	fv, _ := tr.ComputeFeatures(ctx, "u1", "all")
	if fv.NumberOfClicksBuy != 0 || fv.TotalSessions != 0 || fv.TotalEvents != 0 || fv.PrimaryDevice != nil || len(fv.DeviceDistribution) != 0 {
		t.Errorf("features after reset = %+v", fv)
	}
	if ev, _ := mem.FindEvents(ctx, "u1", ""); len(ev) != 0 {
		t.Errorf("%d events remain", len(ev))
	}
	if ss, _ := mem.FindSessions(ctx, "u1"); len(ss) != 0 {
		t.Errorf("%d sessions remain", len(ss))
	}
	if ss, _ := mem.FindSessions(ctx, "u2"); len(ss) != 2 {
		t.Errorf("other user's sessions = %d, want 2", len(ss))
	}
}

type failingEvents struct{ store.MemoryStore }

func (f *failingEvents) InsertEvent(context.Context, *models.Event) error {
	return errors.New("connection refused")
}

func TestRecordEvent_StorageError(t *testing.T) {
	mem := store.NewMemoryStore()
	tr := New(&failingEvents{}, mem)
	_, err := tr.RecordEvent(context.Background(), "u1", models.EventRequest{SessionID: "s", Type: "click", Target: "buy"})
	var serr *StorageError
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want StorageError", err)
	}
	if serr.Op != "insert event" {
		t.Errorf("Op = %q", serr.Op)
	}
}

type recordingArchive struct {
	got chan models.Event
}

func (a *recordingArchive) InsertInteractionEvents(_ context.Context, events []models.Event) error {
	for _, e := range events {
		a.got <- e
	}
	return nil
}

func TestRecordEvent_MirrorsToArchive(t *testing.T) {
	archive := &recordingArchive{got: make(chan models.Event, 1)}
	tr, _ := newTestTracker(WithArchive(archive))

	_, err := tr.RecordEvent(context.Background(), "u1", models.EventRequest{SessionID: "s1", Type: "hover", Target: "buy", HoverMs: float64p(42)})
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	select {
	case e := <-archive.got:
		if e.UserID != "u1" || e.HoverMs != 42 {
			t.Errorf("archived event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not archived")
	}
}
