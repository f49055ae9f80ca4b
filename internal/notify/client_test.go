package notify

import (
	"context"
	"errors"
	"net/http"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/session"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type fakeBackend struct {
	mu         gosync.Mutex
	list       []model.Notification
	listErr    error
	block      chan struct{}
	markErr    error
	markAllErr error
	decideErr  error

	listCalls    int
	markCalls    []int64
	markAllCalls int
	decisions    []api.BookingDecision
}

func (f *fakeBackend) ListNotifications(ctx context.Context, _ string) ([]model.Notification, error) {
	f.mu.Lock()
	f.listCalls++
	block := f.block
	list := make([]model.Notification, len(f.list))
	copy(list, f.list)
	err := f.listErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return list, err
}

func (f *fakeBackend) MarkNotificationRead(_ context.Context, _ string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls = append(f.markCalls, id)
	return f.markErr
}

func (f *fakeBackend) MarkAllNotificationsRead(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAllCalls++
	return f.markAllErr
}

func (f *fakeBackend) DecideBooking(_ context.Context, _ string, _ int64, d api.BookingDecision) (*api.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	return &api.MessageResponse{Message: "ok"}, nil
}

func ptr[T any](v T) *T { return &v }

func sampleList() []model.Notification {
	return []model.Notification{
		{ID: 1, BookingID: ptr(int64(42)), Message: "Your booking was approved!", Role: model.PerspectiveTenant},
		{ID: 2, BookingID: ptr(int64(7)), Message: "New booking request", Role: model.PerspectiveOwner},
		{ID: 3, Message: "Welcome", Role: model.PerspectiveTenant, IsRead: true},
	}
}

func loadedClient(t *testing.T, b *fakeBackend) *Client {
	t.Helper()
	b.list = sampleList()
	c := NewClient(b, staticToken("tok"), Options{})
	t.Cleanup(c.Close)
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	return c
}

func item(t *testing.T, c *Client, id int64) model.Notification {
	t.Helper()
	for _, n := range c.Snapshot().Items {
		if n.ID == id {
			return n
		}
	}
	t.Fatalf("notification %d not loaded", id)
	return model.Notification{}
}

func TestFetchWithoutTokenMakesNoRequest(t *testing.T) {
	b := &fakeBackend{}
	c := NewClient(b, staticToken(""), Options{})
	defer c.Close()

	if err := c.Fetch(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("err = %v", err)
	}
	snap := c.Snapshot()
	if snap.State != StateError || !errors.Is(snap.Err, ErrUnauthenticated) {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.ErrorText() != "No authentication token found" {
		t.Errorf("ErrorText = %q", snap.ErrorText())
	}
	if b.listCalls != 0 {
		t.Errorf("listCalls = %d", b.listCalls)
	}
}

func TestFetchSuccess(t *testing.T) {
	c := loadedClient(t, &fakeBackend{})
	snap := c.Snapshot()
	if snap.State != StateReady || len(snap.Items) != 3 || snap.Unread != 2 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestFetchFailureKeepsPreviousList(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	b.listErr = &api.Error{Status: http.StatusInternalServerError, Detail: "database down"}
	if err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	snap := c.Snapshot()
	if snap.State != StateError {
		t.Errorf("state = %v", snap.State)
	}
	if len(snap.Items) != 3 || snap.Unread != 2 {
		t.Errorf("previous list lost: %+v", snap)
	}
	if snap.ErrorText() != "database down" {
		t.Errorf("ErrorText = %q", snap.ErrorText())
	}
}

func TestHungFetchTimesOut(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{})}
	c := NewClient(b, staticToken("tok"), Options{FetchTimeout: 20 * time.Millisecond})
	defer c.Close()

	err := c.Fetch(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if st := c.Snapshot().State; st != StateError {
		t.Errorf("state = %v, want error", st)
	}
}

func TestSupersededFetchIsDiscarded(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{block: gate, list: []model.Notification{{ID: 9}}}
	c := NewClient(b, staticToken("tok"), Options{})
	defer c.Close()

	first := make(chan error, 1)
	go func() { first <- c.Fetch(context.Background()) }()
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.listCalls == 1
	})

	b.mu.Lock()
	b.block = nil
	b.list = sampleList()
	b.mu.Unlock()
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	// Release the first fetch; its older list must not land.
	close(gate)
	if err := <-first; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first fetch err = %v", err)
	}
	if n := len(c.Snapshot().Items); n != 3 {
		t.Errorf("items = %d, want 3", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMarkOneReadDecrementsByOne(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	if err := c.MarkOneRead(context.Background(), 1); err != nil {
		t.Fatalf("MarkOneRead: %v", err)
	}
	if c.Unread() != 1 || !item(t, c, 1).IsRead {
		t.Errorf("unread = %d", c.Unread())
	}

	// Already read: no further decrement.
	if err := c.MarkOneRead(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkOneRead(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
	if c.Unread() != 1 {
		t.Errorf("unread = %d, want 1", c.Unread())
	}

	if err := c.MarkOneRead(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if c.Unread() != 0 {
		t.Errorf("unread = %d, want 0", c.Unread())
	}
}

func TestMarkOneReadRollsBackOnFailure(t *testing.T) {
	b := &fakeBackend{markErr: &api.Error{Status: http.StatusInternalServerError}}
	c := loadedClient(t, b)

	var seen []int
	c.Subscribe(func() { seen = append(seen, c.Unread()) })

	if err := c.MarkOneRead(context.Background(), 1); err == nil {
		t.Fatal("expected error")
	}
	if c.Unread() != 2 || item(t, c, 1).IsRead {
		t.Errorf("not rolled back: unread = %d", c.Unread())
	}
	// Listeners saw the optimistic value, then the restored one.
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("observed unread = %v, want [1 2]", seen)
	}
}

func TestConcurrentMarkOneReadNeverNegative(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	var wg gosync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = c.MarkOneRead(context.Background(), id)
		}(int64(i%3 + 1))
	}
	wg.Wait()

	if c.Unread() != 0 {
		t.Errorf("unread = %d, want 0", c.Unread())
	}
}

func TestMarkOneReadUnknownID(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)
	if err := c.MarkOneRead(context.Background(), 99); !errors.Is(err, ErrUnknown) {
		t.Errorf("err = %v", err)
	}
	if len(b.markCalls) != 0 {
		t.Errorf("request sent for unknown id")
	}
}

func TestMarkAllReadSuccess(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	if err := c.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	snap := c.Snapshot()
	if snap.Unread != 0 {
		t.Errorf("unread = %d", snap.Unread)
	}
	for _, n := range snap.Items {
		if !n.IsRead {
			t.Errorf("notification %d still unread", n.ID)
		}
	}
}

func TestMarkAllReadFailureChangesNothing(t *testing.T) {
	b := &fakeBackend{markAllErr: &api.Error{Status: http.StatusInternalServerError}}
	c := loadedClient(t, b)
	before := c.Snapshot()

	if err := c.MarkAllRead(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	after := c.Snapshot()
	if after.Unread != before.Unread {
		t.Errorf("unread = %d, want %d", after.Unread, before.Unread)
	}
	for i := range before.Items {
		if before.Items[i].IsRead != after.Items[i].IsRead {
			t.Errorf("notification %d flag changed", before.Items[i].ID)
		}
	}
}

func TestClickTenantApprovalGoesToPayment(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	nav, err := c.Click(context.Background(), item(t, c, 1))
	if err != nil {
		t.Fatalf("Click: %v", err)
	}
	if nav.Destination != NavPayment || nav.BookingID != 42 {
		t.Errorf("nav = %+v", nav)
	}
	if nav.Path() != "/payment/42" {
		t.Errorf("Path = %q", nav.Path())
	}
	if len(b.markCalls) != 1 || b.markCalls[0] != 1 {
		t.Errorf("markCalls = %v, want [1]", b.markCalls)
	}
}

func TestClickOwnerGoesToBookingDetail(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	n := item(t, c, 2)
	n.IsRead = true
	for _, msg := range []string{"New booking request", "approve me", ""} {
		n.Message = msg
		nav, err := c.Click(context.Background(), n)
		if err != nil {
			t.Fatal(err)
		}
		if nav.Destination != NavBookingDetail || nav.BookingID != 7 {
			t.Errorf("message %q: nav = %+v", msg, nav)
		}
	}
	if len(b.markCalls) != 0 {
		t.Errorf("read notification marked again: %v", b.markCalls)
	}
}

func TestClickNavigatesEvenWhenMarkFails(t *testing.T) {
	b := &fakeBackend{markErr: errors.New("offline")}
	c := loadedClient(t, b)

	nav, err := c.Click(context.Background(), item(t, c, 1))
	if err == nil {
		t.Error("expected mark-read error")
	}
	if nav.Destination != NavPayment {
		t.Errorf("nav = %+v", nav)
	}
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name string
		n    model.Notification
		want Destination
	}{
		{"tenant approved", model.Notification{Role: "user", BookingID: ptr(int64(1)), Message: "APPROVED"}, NavPayment},
		{"tenant rejected", model.Notification{Role: "user", BookingID: ptr(int64(1)), Message: "Your booking was rejected."}, NavNone},
		{"tenant no booking", model.Notification{Role: "user", Message: "approved"}, NavNone},
		{"owner no booking", model.Notification{Role: "owner"}, NavNone},
		{"unknown role", model.Notification{Role: "admin", BookingID: ptr(int64(1))}, NavNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Route(tt.n).Destination; got != tt.want {
				t.Errorf("Route = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecideUpdatesStatusAfterSuccess(t *testing.T) {
	b := &fakeBackend{}
	c := loadedClient(t, b)

	if err := c.Decide(context.Background(), item(t, c, 2), true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	n := item(t, c, 2)
	if n.BookingStatus == nil || *n.BookingStatus != model.BookingApproved {
		t.Errorf("status = %v", n.BookingStatus)
	}
	if Project(n).ActionRequired {
		t.Error("decided booking still requires action")
	}
	if len(b.decisions) != 1 || b.decisions[0] != api.DecisionAccept {
		t.Errorf("decisions = %v", b.decisions)
	}
}

func TestDecideFailureLeavesStatus(t *testing.T) {
	b := &fakeBackend{decideErr: errors.New("forbidden")}
	c := loadedClient(t, b)

	if err := c.Decide(context.Background(), item(t, c, 2), false); err == nil {
		t.Fatal("expected error")
	}
	if item(t, c, 2).BookingStatus != nil {
		t.Error("status changed after failed decision")
	}
	if err := c.Decide(context.Background(), item(t, c, 3), false); err == nil {
		t.Error("decision without booking accepted")
	}
}

func TestCloseDiscardsInFlightFetch(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{}), list: sampleList()}
	c := NewClient(b, staticToken("tok"), Options{})

	var calls int
	c.Subscribe(func() { calls++ })

	done := make(chan error, 1)
	go func() { done <- c.Fetch(context.Background()) }()
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.listCalls == 1
	})

	before := calls
	c.Close()
	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v", err)
	}
	if calls != before {
		t.Errorf("listener ran after Close")
	}
	if snap := c.Snapshot(); snap.State != StateClosed || len(snap.Items) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if err := c.Fetch(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Fetch after Close = %v", err)
	}
}

func TestScopeCloseSilencesView(t *testing.T) {
	b := &fakeBackend{block: make(chan struct{}), list: sampleList()}
	c := NewClient(b, staticToken("tok"), Options{})
	defer c.Close()

	scope := c.Scope()
	var viewCalls int
	scope.Subscribe(func() { viewCalls++ })

	done := make(chan error, 1)
	go func() { done <- scope.Fetch() }()
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.listCalls == 1
	})

	before := viewCalls
	scope.Close()
	if err := <-done; !errors.Is(err, ErrScopeClosed) {
		t.Errorf("err = %v", err)
	}
	if viewCalls != before {
		t.Errorf("view listener ran after scope closed")
	}

	// The client itself is still usable and fell back to idle.
	if st := c.Snapshot().State; st != StateIdle {
		t.Errorf("state = %v, want idle", st)
	}
	b.mu.Lock()
	b.block = nil
	b.mu.Unlock()
	if err := c.Fetch(context.Background()); err != nil {
		t.Errorf("Fetch after scope close: %v", err)
	}
}

func memorySession() *session.Context {
	return session.NewContext(session.NewStore(session.NewMemoryBackend()), session.NewSignal(nil))
}

func TestNewSessionStartsEmpty(t *testing.T) {
	sess := memorySession()
	if err := sess.SignIn("alice-token", model.User{Username: "alice"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	b := &fakeBackend{list: sampleList()}
	c := NewClient(b, sess, Options{})
	defer c.Close()
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if err := sess.SignOut(); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if snap := c.Snapshot(); snap.State != StateIdle || len(snap.Items) != 0 || snap.Unread != 0 {
		t.Errorf("after sign-out: %+v", snap)
	}

	if err := sess.SignIn("bob-token", model.User{Username: "bob"}); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	b.mu.Lock()
	b.listErr = &api.Error{Status: http.StatusInternalServerError, Detail: "database down"}
	b.mu.Unlock()
	if err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	snap := c.Snapshot()
	if snap.State != StateError || len(snap.Items) != 0 || c.Unread() != 0 {
		t.Errorf("bob sees %d item(s), unread %d", len(snap.Items), c.Unread())
	}
	if err := c.MarkOneRead(context.Background(), 1); !errors.Is(err, ErrUnknown) {
		t.Errorf("MarkOneRead err = %v", err)
	}
}

func TestProfileUpdateKeepsList(t *testing.T) {
	sess := memorySession()
	user := model.User{Username: "alice"}
	if err := sess.SignIn("alice-token", user); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	c := NewClient(&fakeBackend{list: sampleList()}, sess, Options{})
	defer c.Close()
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	user.FirstName = "Alice"
	if err := sess.UpdateUser(user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if snap := c.Snapshot(); snap.State != StateReady || len(snap.Items) != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestResetDiscardsInFlightFetch(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{block: gate, list: sampleList()}
	c := NewClient(b, staticToken("tok"), Options{})
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Fetch(context.Background()) }()
	waitFor(t, func() bool {
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.listCalls == 1
	})

	c.Reset()
	close(gate)
	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Errorf("err = %v", err)
	}
	if snap := c.Snapshot(); snap.State != StateIdle || len(snap.Items) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCloseStopsWatchingSession(t *testing.T) {
	sig := session.NewSignal(nil)
	sess := session.NewContext(session.NewStore(session.NewMemoryBackend()), sig)
	c := NewClient(&fakeBackend{}, sess, Options{})
	if sig.Len() != 1 {
		t.Fatalf("listeners = %d", sig.Len())
	}
	c.Close()
	if sig.Len() != 0 {
		t.Errorf("listeners after Close = %d", sig.Len())
	}
}
