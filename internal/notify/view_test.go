package notify

import (
	"testing"
	"time"

	"github.com/nhle/bhconnect/internal/model"
)

func TestFormatRelativeDate(t *testing.T) {
	now := time.Date(2026, 5, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		ts   time.Time
		want string
	}{
		{"just now", now, "Today"},
		{"23h ago", now.Add(-23 * time.Hour), "Today"},
		{"exactly 24h", now.Add(-24 * time.Hour), "Yesterday"},
		{"47h ago", now.Add(-47 * time.Hour), "Yesterday"},
		{"two days", now.Add(-48 * time.Hour), "2 days ago"},
		{"six days", now.Add(-6 * 24 * time.Hour), "6 days ago"},
		{"just under a week", now.Add(-7*24*time.Hour + time.Second), "6 days ago"},
		{"exactly a week", now.Add(-7 * 24 * time.Hour), "May 3, 03:30 PM"},
		{"long ago", time.Date(2025, 12, 25, 9, 5, 0, 0, time.UTC), "Dec 25, 09:05 AM"},
		{"future", now.Add(2 * time.Hour), "May 10, 05:30 PM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatRelativeDate(tt.ts, now)
			if got != tt.want {
				t.Errorf("FormatRelativeDate = %q, want %q", got, tt.want)
			}
			if again := FormatRelativeDate(tt.ts, now); again != got {
				t.Errorf("second call = %q, first = %q", again, got)
			}
		})
	}
}

func TestProject(t *testing.T) {
	pending := model.BookingPending

	tenant := Project(model.Notification{Role: model.PerspectiveTenant, BookingID: ptr(int64(42))})
	if tenant.SenderName != "Tenant" || tenant.Team != "Tenant" || tenant.Context != "Booking #42" {
		t.Errorf("tenant view = %+v", tenant)
	}
	if tenant.ActionRequired {
		t.Error("tenant view requires action")
	}

	owner := Project(model.Notification{Role: model.PerspectiveOwner})
	if owner.SenderName != "Host" || owner.Team != "Host Team" || owner.Context != "" {
		t.Errorf("owner view = %+v", owner)
	}
	if !owner.ActionRequired {
		t.Error("undecided owner view does not require action")
	}

	decided := Project(model.Notification{Role: model.PerspectiveOwner, BookingStatus: &pending})
	if decided.ActionRequired {
		t.Error("owner view with a status requires action")
	}
}

func TestTabs(t *testing.T) {
	if got := Tabs(model.RoleTenant); len(got) != 1 || got[0] != TabInbox {
		t.Errorf("tenant tabs = %v", got)
	}
	if got := Tabs(model.RoleOwner); len(got) != 3 {
		t.Errorf("owner tabs = %v", got)
	}
}

func TestFilter(t *testing.T) {
	approved, rejected, pending := model.BookingApproved, model.BookingRejected, model.BookingPending
	items := []model.Notification{
		{ID: 1},
		{ID: 2, BookingStatus: &pending},
		{ID: 3, BookingStatus: &approved},
		{ID: 4, BookingStatus: &rejected},
	}

	ids := func(list []model.Notification) []int64 {
		out := make([]int64, len(list))
		for i, n := range list {
			out[i] = n.ID
		}
		return out
	}

	tests := []struct {
		tab  Tab
		want []int64
	}{
		{TabInbox, []int64{1, 2}},
		{TabApproved, []int64{3}},
		{TabRejected, []int64{4}},
	}
	for _, tt := range tests {
		got := ids(Filter(items, tt.tab))
		if len(got) != len(tt.want) {
			t.Errorf("%v: got %v, want %v", tt.tab, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%v: got %v, want %v", tt.tab, got, tt.want)
			}
		}
	}
}
