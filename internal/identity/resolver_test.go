package identity

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ohmynofan/mapp-task-bot/internal/storage/localstore"
)

type fakePlatform struct {
	id   int64
	name string
	ok   bool
}

func (p fakePlatform) PlatformUser() (int64, string, bool) { return p.id, p.name, p.ok }

type brokenStore struct{}

func (brokenStore) DeviceID() (string, bool, error) { return "", false, errors.New("disk gone") }
func (brokenStore) SaveDeviceID(string) error       { return errors.New("disk gone") }

func TestResolveGeneratesAndPersistsDeviceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapp.db")
	store, err := localstore.NewStore(path)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer store.Close()

	first := NewResolver(store, nil).Resolve()
	if !strings.HasPrefix(first.DeviceID, "dev_") {
		t.Fatalf("unexpected device id %q", first.DeviceID)
	}
	persisted, ok, err := store.DeviceID()
	if err != nil || !ok || persisted != first.DeviceID {
		t.Fatalf("device id not persisted: %q ok=%v err=%v", persisted, ok, err)
	}

	second := NewResolver(store, nil).Resolve()
	if second.DeviceID != first.DeviceID {
		t.Fatalf("expected stable device id, got %q then %q", first.DeviceID, second.DeviceID)
	}
}

func TestResolvePlaceholderOutsidePlatform(t *testing.T) {
	id := NewResolver(nil, fakePlatform{}).Resolve()
	if id.PlatformUserID != PlaceholderUserID || id.DisplayName != PlaceholderName {
		t.Fatalf("expected placeholder identity, got %+v", id)
	}
}

func TestResolvePlatformUser(t *testing.T) {
	id := NewResolver(nil, fakePlatform{id: 777, name: "abel", ok: true}).Resolve()
	if id.PlatformUserID != 777 || id.DisplayName != "abel" {
		t.Fatalf("unexpected identity %+v", id)
	}
	unnamed := NewResolver(nil, fakePlatform{id: 778, ok: true}).Resolve()
	if unnamed.DisplayName != "user778" {
		t.Fatalf("unexpected fallback name %q", unnamed.DisplayName)
	}
}

func TestResolveSurvivesBrokenStore(t *testing.T) {
	r := NewResolver(brokenStore{}, nil)
	first := r.Resolve()
	if first.DeviceID == "" {
		t.Fatal("expected ephemeral device id")
	}
	if again := r.Resolve(); again.DeviceID != first.DeviceID {
		t.Fatal("resolver should be idempotent within a session")
	}
}

func TestNewDeviceIDIsUnique(t *testing.T) {
	at := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewDeviceID(at)
		if seen[id] {
			t.Fatalf("duplicate device id %q", id)
		}
		if len(id) < 8 || len(id) > 128 {
			t.Fatalf("device id length out of range: %q", id)
		}
		seen[id] = true
	}
}
