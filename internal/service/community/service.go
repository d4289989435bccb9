// Package community serves the member feed and live status updates.
package community

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/zhouzirui/mindsync/backend/internal/logging"
	"github.com/zhouzirui/mindsync/backend/internal/model/user"
	"github.com/zhouzirui/mindsync/backend/internal/validation"
)

// EventStatusUpdate is broadcast to every other connected client.
const EventStatusUpdate = "friend-status-update"

const defaultStatusTTL = 15 * time.Minute

// Member is one entry of the community feed.
type Member struct {
	UserID    string     `json:"userId,omitempty"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Activity  string     `json:"activity"`
	Avatar    string     `json:"avatar"`
	Live      bool       `json:"live"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Status is a live status reported by a signed-in user.
type Status struct {
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Activity  string    `json:"activity"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type StatusInput struct {
	Status   string `json:"status" validate:"required,max=50"`
	Activity string `json:"activity" validate:"max=50"`
}

// Broadcaster fans an event out to every connection except the sender's.
type Broadcaster interface {
	BroadcastExcept(userID, eventType string, data any)
}

// 演示用的社区成员
var demoMembers = []Member{
	{Name: "Jane Smith", Status: "Feeling Calm", Activity: "Meditating", Avatar: "JS"},
	{Name: "Mike Davis", Status: "Focused", Activity: "Working", Avatar: "MD"},
	{Name: "Sarah Park", Status: "Meditating", Activity: "Online", Avatar: "SP"},
	{Name: "Alex Rivera", Status: "Need Support", Activity: "Available", Avatar: "AR"},
}

// Service keeps live statuses for a short time and merges them into the demo feed.
type Service struct {
	statuses    *ttlcache.Cache[string, Status]
	broadcaster Broadcaster
	now         func() time.Time
}

// NewService starts the status cache. A zero ttl uses the default.
func NewService(ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	cache := ttlcache.New[string, Status](
		ttlcache.WithTTL[string, Status](ttl),
		ttlcache.WithDisableTouchOnHit[string, Status](),
	)
	go cache.Start()
	return &Service{statuses: cache, now: time.Now}
}

// SetBroadcaster wires the real-time hub after construction.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func (s *Service) Close() {
	s.statuses.Stop()
}

// Feed returns live statuses of other users, newest first, followed by the demo members.
func (s *Service) Feed(_ context.Context, viewerID string) []Member {
	live := make([]Status, 0)
	for id, item := range s.statuses.Items() {
		if id == viewerID || item.IsExpired() {
			continue
		}
		live = append(live, item.Value())
	}
	sort.Slice(live, func(i, j int) bool {
		if !live[i].UpdatedAt.Equal(live[j].UpdatedAt) {
			return live[i].UpdatedAt.After(live[j].UpdatedAt)
		}
		return live[i].UserID < live[j].UserID
	})

	feed := make([]Member, 0, len(live)+len(demoMembers))
	for _, st := range live {
		updated := st.UpdatedAt
		feed = append(feed, Member{
			UserID:    st.UserID,
			Name:      st.Name,
			Status:    st.Status,
			Activity:  st.Activity,
			Avatar:    initials(st.Name),
			Live:      true,
			UpdatedAt: &updated,
		})
	}
	return append(feed, demoMembers...)
}

// UpdateStatus records u's status and broadcasts it to everyone else.
func (s *Service) UpdateStatus(ctx context.Context, u user.User, in StatusInput) (Status, error) {
	in.Status = strings.TrimSpace(in.Status)
	in.Activity = strings.TrimSpace(in.Activity)
	if err := validation.Struct(in); err != nil {
		return Status{}, err
	}

	st := Status{
		UserID:    u.ID,
		Name:      u.Name,
		Status:    in.Status,
		Activity:  in.Activity,
		UpdatedAt: s.now().UTC(),
	}
	s.statuses.Set(u.ID, st, ttlcache.DefaultTTL)

	if s.broadcaster != nil {
		s.broadcaster.BroadcastExcept(u.ID, EventStatusUpdate, st)
	}
	logging.Ctx(ctx).Debug().Str("user_id", u.ID).Str("status", st.Status).Msg("[community] status updated")
	return st, nil
}

// ClearStatus drops a user's live status, typically on disconnect.
func (s *Service) ClearStatus(userID string) {
	s.statuses.Delete(userID)
}

func initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			out = append(out, r)
			break
		}
		if len(out) == 2 {
			break
		}
	}
	return strings.ToUpper(string(out))
}
