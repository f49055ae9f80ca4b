package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func waitMsg(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting on bridge")
		return nil
	}
}

func TestBridgeDeliversInOrderAndCoalesces(t *testing.T) {
	b := NewBridge()
	b.Send(SessionChangedMsg{})
	b.Send(NotificationsChangedMsg{})
	b.Send(SessionChangedMsg{})

	if got := waitMsg(t, b.Wait()); got != (SessionChangedMsg{}) {
		t.Fatalf("first = %#v", got)
	}
	if got := waitMsg(t, b.Wait()); got != (NotificationsChangedMsg{}) {
		t.Fatalf("second = %#v", got)
	}

	b.Close()
	if got := waitMsg(t, b.Wait()); got != nil {
		t.Errorf("after close = %#v", got)
	}
}

func TestBridgeNotifierFromAnotherGoroutine(t *testing.T) {
	b := NewBridge()
	defer b.Close()

	notify := b.Notifier(NotificationsChangedMsg{})
	go notify()

	if got := waitMsg(t, b.Wait()); got != (NotificationsChangedMsg{}) {
		t.Errorf("got %#v", got)
	}
}
