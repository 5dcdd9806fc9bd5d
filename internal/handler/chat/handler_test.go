package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	agentmodel "github.com/JustFluffie/fluffie/backend/internal/model/agent"
	chatmodel "github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/delivery"
	"github.com/JustFluffie/fluffie/backend/internal/service/dispatch"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/pipeline"
	todoservice "github.com/JustFluffie/fluffie/backend/internal/service/todo"
)

type fakeCompleter struct {
	response string
}

func (f *fakeCompleter) Complete(_ context.Context, _ []ai.Turn) (string, error) {
	return f.response, nil
}

func newTestRouter(response string) (http.Handler, *chatservice.Service) {
	agents := agentmodel.NewStore([]agentmodel.Agent{{ID: "a1", Name: "林晚晴", IsOnlineMode: true}})
	chats := chatservice.NewService(nil)
	momentsSvc := momentsservice.NewService(nil)
	todos := todoservice.NewService(nil)

	dispatcher := dispatch.New(agents, chats, momentsSvc, todos)
	deliveryEngine := delivery.New(chats, nil, nil, nil)
	deliveryEngine.Pace = func() time.Duration { return 0 }
	runner := pipeline.NewRunner(&fakeCompleter{response: response}, dispatcher, deliveryEngine)

	h := New(agents, chats, runner, nil)
	h.Spawn = func(fn func()) { fn() }

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, chats
}

func TestSendMessageTriggersReply(t *testing.T) {
	router, chats := newTestRouter("好呀|||[图片：一只猫]")

	req := httptest.NewRequest(http.MethodPost, "/agents/a1/messages", strings.NewReader(`{"content":"在吗"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	history := chats.History("a1", 0)
	if len(history) != 3 {
		t.Fatalf("expected user message + 2 replies, got %d", len(history))
	}
	if history[0].Sender != chatmodel.SenderUser {
		t.Fatalf("expected user message first, got %s", history[0].Sender)
	}
	if history[2].Type != chatmodel.TypeImage {
		t.Fatalf("expected image reply, got %s", history[2].Type)
	}
}

func TestSendMessageUnknownAgent(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodPost, "/agents/nope/messages", strings.NewReader(`{"content":"在吗"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSendMessageRejectsUnknownType(t *testing.T) {
	router, _ := newTestRouter("")

	req := httptest.NewRequest(http.MethodPost, "/agents/a1/messages", strings.NewReader(`{"type":"hologram","content":"?"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSendTransferStartsPending(t *testing.T) {
	router, chats := newTestRouter("")

	req := httptest.NewRequest(http.MethodPost, "/agents/a1/messages", strings.NewReader(`{"type":"transfer","content":"66 请吃饭"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := len(chats.PendingUserTransfers("a1")); got != 1 {
		t.Fatalf("expected 1 pending transfer, got %d", got)
	}
}

func TestReadResetsUnread(t *testing.T) {
	router, chats := newTestRouter("")
	chats.IncrementUnread("a1")

	req := httptest.NewRequest(http.MethodPost, "/agents/a1/read", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if chats.Unread("a1") != 0 {
		t.Fatalf("expected unread reset")
	}
}

func TestEditMessage(t *testing.T) {
	router, chats := newTestRouter("")
	saved, _ := chats.Append(context.Background(), chatmodel.Message{
		AgentID: "a1", Sender: chatmodel.SenderUser, Type: chatmodel.TypeText, Content: "打错字",
	})

	req := httptest.NewRequest(http.MethodPatch, "/agents/a1/messages/"+saved.ID, strings.NewReader(`{"content":"改好了"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if chats.History("a1", 0)[0].Content != "改好了" {
		t.Fatalf("expected content updated")
	}
}

func TestDeleteConversation(t *testing.T) {
	router, chats := newTestRouter("")
	chats.Append(context.Background(), chatmodel.Message{
		AgentID: "a1", Sender: chatmodel.SenderUser, Type: chatmodel.TypeText, Content: "要删掉的",
	})

	req := httptest.NewRequest(http.MethodDelete, "/agents/a1/conversation", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := len(chats.History("a1", 0)); got != 0 {
		t.Fatalf("expected empty history, got %d", got)
	}
}
