package identity

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ohmynofan/mapp-task-bot/internal/domain/model"
	"github.com/ohmynofan/mapp-task-bot/internal/platform/logger"
)

const (
	PlaceholderUserID = 1
	PlaceholderName   = "Guest"
)

type DeviceStore interface {
	DeviceID() (string, bool, error)
	SaveDeviceID(id string) error
}

// Platform exposes the host platform user, ok is false when not embedded.
type Platform interface {
	PlatformUser() (id int64, name string, ok bool)
}

type Resolver struct {
	store    DeviceStore
	platform Platform
	now      func() time.Time
	log      *logger.ClassLogger

	mu       sync.Mutex
	resolved *model.Identity
}

func NewResolver(store DeviceStore, platform Platform) *Resolver {
	r := &Resolver{store: store, platform: platform, now: time.Now}
	r.log = logger.NewLogger(r)
	return r
}

// Resolve never fails: storage problems degrade to an unpersisted device id
// for the lifetime of this resolver.
func (r *Resolver) Resolve() model.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != nil {
		return *r.resolved
	}

	identity := model.Identity{
		PlatformUserID: PlaceholderUserID,
		DisplayName:    PlaceholderName,
		DeviceID:       r.deviceID(),
	}
	if r.platform != nil {
		if id, name, ok := r.platform.PlatformUser(); ok && id > 0 {
			identity.PlatformUserID = id
			if strings.TrimSpace(name) != "" {
				identity.DisplayName = strings.TrimSpace(name)
			} else {
				identity.DisplayName = fmt.Sprintf("user%d", id)
			}
		}
	}

	r.resolved = &identity
	return identity
}

func (r *Resolver) deviceID() string {
	if r.store != nil {
		id, ok, err := r.store.DeviceID()
		if err != nil {
			r.log.JustLog(fmt.Sprintf("Warning: failed to read device id: %v", err))
		} else if ok {
			return id
		}
	}

	id := NewDeviceID(r.now())
	if r.store != nil {
		if err := r.store.SaveDeviceID(id); err != nil {
			r.log.JustLog(fmt.Sprintf("Warning: failed to persist device id: %v", err))
		}
	}
	return id
}

// NewDeviceID combines a random component with a base-36 timestamp. It is
// unique enough for abuse heuristics, not a secret.
func NewDeviceID(at time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return "dev_" + random + "_" + strconv.FormatInt(at.UnixMilli(), 36)
}
