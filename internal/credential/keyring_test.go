package credential

import (
	"errors"
	"testing"

	"github.com/99designs/keyring"
)

func TestRingRoundTrip(t *testing.T) {
	r := New(keyring.NewArrayKeyring(nil))

	if _, ok, err := r.Get("auth_token"); err != nil || ok {
		t.Fatalf("Get on empty ring = ok %v, err %v", ok, err)
	}

	if err := r.SetMany(map[string]string{"auth_token": "tok", "user": "{}"}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	got, ok, err := r.Get("auth_token")
	if err != nil || !ok || got != "tok" {
		t.Fatalf("Get = %q, %v, %v", got, ok, err)
	}

	if err := r.DeleteMany("auth_token", "user", "missing"); err != nil {
		t.Fatalf("DeleteMany: %v", err)
	}
	if _, ok, _ := r.Get("user"); ok {
		t.Error("user survived DeleteMany")
	}
}

// failingRing refuses to store one key.
type failingRing struct {
	keyring.Keyring
	refuse string
}

func (f failingRing) Set(item keyring.Item) error {
	if item.Key == f.refuse {
		return errors.New("keyring locked")
	}
	return f.Keyring.Set(item)
}

func TestSetManyRemovesPartialWrite(t *testing.T) {
	inner := keyring.NewArrayKeyring(nil)
	r := New(inner)
	if err := r.SetMany(map[string]string{"auth_token": "old", "user": `{"username":"alice"}`}); err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	r = New(failingRing{Keyring: inner, refuse: "user"})
	err := r.SetMany(map[string]string{"auth_token": "new", "user": `{"username":"bob"}`})
	if err == nil {
		t.Fatal("expected an error")
	}

	if _, ok, _ := r.Get("auth_token"); ok {
		t.Error("new token left next to the old user")
	}
	if got, _, _ := r.Get("user"); got != `{"username":"alice"}` {
		t.Errorf("user = %q", got)
	}
}
