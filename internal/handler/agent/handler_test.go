package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/JustFluffie/fluffie/backend/internal/config"
	agentmodel "github.com/JustFluffie/fluffie/backend/internal/model/agent"
	chatmodel "github.com/JustFluffie/fluffie/backend/internal/model/chat"
	momentsmodel "github.com/JustFluffie/fluffie/backend/internal/model/moments"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
)

func newTestRouter() (http.Handler, *agentmodel.Store, *chatservice.Service, *momentsservice.Service) {
	cfg := config.SchedulerConfig{
		DefaultIntervalMinutes:      60,
		DefaultCooldownMinutes:      30,
		DefaultDailyLimit:           10,
		DefaultIdleThresholdMinutes: 120,
		DefaultPostIntervalMinutes:  240,
		DefaultPostDailyLimit:       3,
	}

	agents := agentmodel.NewStore([]agentmodel.Agent{{ID: "a1", Name: "林晚晴", IsOnlineMode: true}})
	chats := chatservice.NewService(nil)
	momentsSvc := momentsservice.NewService(nil)

	h := New(agents, chats, momentsSvc, cfg)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, agents, chats, momentsSvc
}

func TestCreateAgentAppliesScheduleDefaults(t *testing.T) {
	router, agents, _, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader(`{"name":"徐延"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created agentmodel.Agent
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.Schedule.IntervalMinutes != 60 || created.Schedule.DailyLimit != 10 {
		t.Fatalf("expected schedule defaults, got %+v", created.Schedule)
	}
	if created.Moments.DailyLimit != 3 {
		t.Fatalf("expected moments defaults, got %+v", created.Moments)
	}
	if _, ok := agents.FindByID(created.ID); !ok {
		t.Fatalf("agent not stored")
	}
}

func TestCreateAgentRequiresName(t *testing.T) {
	router, _, _, _ := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/agents", strings.NewReader(`{"tone":"无名氏"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestUpdateAgentKeepsRuntimeCounters(t *testing.T) {
	router, agents, _, _ := newTestRouter()
	agents.Update("a1", func(a *agentmodel.Agent) {
		a.Schedule.TodayProactiveCount = 4
	})

	body := `{"name":"林晚晴","isOnlineMode":true,"schedule":{"overrideMode":"on","intervalMinutes":15}}`
	req := httptest.NewRequest(http.MethodPut, "/agents/a1", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	updated, _ := agents.FindByID("a1")
	if updated.Schedule.OverrideMode != agentmodel.OverrideOn || updated.Schedule.IntervalMinutes != 15 {
		t.Fatalf("expected schedule updated, got %+v", updated.Schedule)
	}
	if updated.Schedule.TodayProactiveCount != 4 {
		t.Fatalf("runtime counter should survive update, got %d", updated.Schedule.TodayProactiveCount)
	}
}

func TestListIncludesUnreadCount(t *testing.T) {
	router, _, chats, _ := newTestRouter()
	chats.IncrementUnread("a1")
	chats.IncrementUnread("a1")

	req := httptest.NewRequest(http.MethodGet, "/agents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var items []struct {
		ID          string `json:"id"`
		UnreadCount int    `json:"unreadCount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(items) != 1 || items[0].UnreadCount != 2 {
		t.Fatalf("expected unread count 2, got %+v", items)
	}
}

func TestDeleteAgentCascades(t *testing.T) {
	router, agents, chats, momentsSvc := newTestRouter()
	chats.Append(context.Background(), chatmodel.Message{AgentID: "a1", Sender: chatmodel.SenderAgent, Type: chatmodel.TypeText, Content: "再见"})
	momentsSvc.CreatePost(momentsmodel.Post{AuthorID: "a1", Body: "最后的帖子"})

	req := httptest.NewRequest(http.MethodDelete, "/agents/a1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := agents.FindByID("a1"); ok {
		t.Fatalf("agent should be gone")
	}
	if got := len(chats.History("a1", 0)); got != 0 {
		t.Fatalf("conversation should be cleared, got %d messages", got)
	}
	if got := len(momentsSvc.List()); got != 0 {
		t.Fatalf("agent posts should be cleaned up, got %d", got)
	}
}
