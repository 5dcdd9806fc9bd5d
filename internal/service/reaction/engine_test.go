package reaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JustFluffie/fluffie/backend/internal/config"
	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/delivery"
	"github.com/JustFluffie/fluffie/backend/internal/service/dispatch"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/pipeline"
	todoservice "github.com/JustFluffie/fluffie/backend/internal/service/todo"
)

type fakeCompleter struct {
	mu       sync.Mutex
	response string
	calls    int
}

func (f *fakeCompleter) Complete(_ context.Context, _ []ai.Turn) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.response, nil
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type harness struct {
	engine    *Engine
	agents    *agent.Store
	chats     *chatservice.Service
	moments   *momentsservice.Service
	completer *fakeCompleter
}

func newHarness(agents []agent.Agent, response string) *harness {
	cfg := config.SchedulerConfig{
		ReactPublic:      0.6,
		ReactRestricted:  0.8,
		SweepReactChance: 0.3,
	}

	store := agent.NewStore(agents)
	chats := chatservice.NewService(nil)
	momentsSvc := momentsservice.NewService(nil)
	todos := todoservice.NewService(nil)

	dispatcher := dispatch.New(store, chats, momentsSvc, todos)
	deliveryEngine := delivery.New(chats, nil, nil, nil)
	deliveryEngine.Pace = func() time.Duration { return 0 }

	completer := &fakeCompleter{response: response}
	runner := pipeline.NewRunner(completer, dispatcher, deliveryEngine)

	engine := New(cfg, store, momentsSvc, completer, runner)
	engine.Roll = func(float64) bool { return false }
	engine.Spawn = func(fn func()) { fn() }
	engine.MentionDelay = func() time.Duration { return 0 }

	return &harness{engine: engine, agents: store, chats: chats, moments: momentsSvc, completer: completer}
}

func reactor(id string) agent.Agent {
	return agent.Agent{ID: id, Name: "角色" + id, IsOnlineMode: true}
}

func TestMentionedAgentAlwaysReacts(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1"), reactor("a2")}, `{"action":"like"}`)

	post, _ := h.moments.CreatePost(moments.Post{
		AuthorID: chat.UserID,
		Body:     "@a1 快看",
		Mentions: []string{"a1"},
	})
	h.engine.OnPostPublished(context.Background(), post)

	updated, _ := h.moments.FindByID(post.ID)
	if !updated.LikedBy("a1") {
		t.Fatalf("mentioned agent should react despite failed rolls")
	}
	if updated.LikedBy("a2") {
		t.Fatalf("unmentioned agent lost the roll, should not react")
	}
}

func TestRestrictedPostInvisibleOffList(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1"), reactor("a2")}, `{"action":"like"}`)
	h.engine.Roll = func(float64) bool { return true }

	post, _ := h.moments.CreatePost(moments.Post{
		AuthorID:   chat.UserID,
		Body:       "只给一部分人看",
		Visibility: moments.VisibilityRestricted,
		VisibleTo:  []string{"a1"},
	})
	h.engine.OnPostPublished(context.Background(), post)

	updated, _ := h.moments.FindByID(post.ID)
	if !updated.LikedBy("a1") {
		t.Fatalf("listed agent should have a chance to react")
	}
	if updated.LikedBy("a2") {
		t.Fatalf("off-list agent must never see a restricted post")
	}
}

func TestMalformedDecisionFallsBackToLike(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, "我就随便说说不输出JSON")
	h.engine.Roll = func(float64) bool { return true }

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: chat.UserID, Body: "日常"})
	h.engine.OnPostPublished(context.Background(), post)

	updated, _ := h.moments.FindByID(post.ID)
	if !updated.LikedBy("a1") {
		t.Fatalf("malformed decision should degrade to a plain like")
	}
	if len(updated.Comments) != 0 {
		t.Fatalf("fallback should not comment")
	}
}

func TestReplyDecisionRoutesToPrivateChat(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, `{"action":"reply","response":"看到你朋友圈了，聊聊？"}`)
	h.engine.Roll = func(float64) bool { return true }

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: chat.UserID, Body: "有点难过"})
	h.engine.OnPostPublished(context.Background(), post)

	history := h.chats.History("a1", 0)
	if len(history) != 1 || history[0].Sender != chat.SenderAgent {
		t.Fatalf("expected one private message, got %+v", history)
	}

	updated, _ := h.moments.FindByID(post.ID)
	if updated.LikedBy("a1") || len(updated.Comments) != 0 {
		t.Fatalf("reply decision should not touch the post itself")
	}
}

func TestLikeCommentDecision(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, `{"action":"like_comment","response":"拍得真好"}`)
	h.engine.Roll = func(float64) bool { return true }

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: chat.UserID, Body: "随手拍"})
	h.moments.MarkSeen()
	h.engine.OnPostPublished(context.Background(), post)

	updated, _ := h.moments.FindByID(post.ID)
	if !updated.LikedBy("a1") || len(updated.Comments) != 1 {
		t.Fatalf("expected like and comment, got %+v", updated)
	}
	if !h.moments.HasUnseen() {
		t.Fatalf("reaction on user post should mark feed unseen")
	}
	ag, _ := h.agents.FindByID("a1")
	if ag.LastActiveAt.IsZero() {
		t.Fatalf("expected LastActiveAt stamped after reaction")
	}
}

func TestSweepCounterReplyOnlyOneRound(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, "谢谢呀")

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: "a1", Body: "我的新帖"})
	h.moments.AddComment(post.ID, moments.Comment{AuthorID: chat.UserID, Body: "好厉害", ReplyToID: "a1"})

	ag, _ := h.agents.FindByID("a1")
	if !h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("expected sweep to counter-reply the user")
	}

	updated, _ := h.moments.FindByID(post.ID)
	if len(updated.Comments) != 2 {
		t.Fatalf("expected counter-reply appended, got %d comments", len(updated.Comments))
	}
	reply := updated.Comments[1]
	if reply.AuthorID != "a1" || reply.ReplyToID != chat.UserID {
		t.Fatalf("unexpected counter-reply: %+v", reply)
	}

	// 同一条评论只回一轮。
	if h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("expected no second counter-reply")
	}
}

func TestSweepIgnoresAgentDirectedReplies(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1"), reactor("a2")}, "不该出现")

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: "a1", Body: "我的新帖"})
	h.moments.AddComment(post.ID, moments.Comment{AuthorID: "a2", Body: "回你一句", ReplyToID: "a1"})

	ag, _ := h.agents.FindByID("a1")
	if h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("agent-to-agent directed replies must not chain")
	}
	if h.completer.callCount() != 0 {
		t.Fatalf("expected no generation call")
	}
}

func TestSweepRepliesTopLevelComment(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1"), reactor("a2")}, "谢谢捧场")

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: "a1", Body: "我的新帖"})
	h.moments.AddComment(post.ID, moments.Comment{AuthorID: "a2", Body: "不错嘛"})

	ag, _ := h.agents.FindByID("a1")
	if !h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("expected reply to fresh top-level comment")
	}

	updated, _ := h.moments.FindByID(post.ID)
	if len(updated.Comments) != 2 || updated.Comments[1].ReplyToID != "a2" {
		t.Fatalf("expected reply targeting commenter, got %+v", updated.Comments)
	}
}

func TestSweepSkipsStaleAgentPosts(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, `{"action":"like"}`)
	h.engine.Roll = func(float64) bool { return true }

	h.moments.Restore([]moments.Post{{
		ID:         "old",
		AuthorID:   "a2",
		Body:       "四天前的帖子",
		Visibility: moments.VisibilityPublic,
		CreatedAt:  time.Now().UTC().Add(-96 * time.Hour),
	}})

	ag, _ := h.agents.FindByID("a1")
	if h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("stale post by another agent should be skipped")
	}
}

func TestSweepStillReactsToOldUserPosts(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, `{"action":"like"}`)
	h.engine.Roll = func(float64) bool { return true }

	h.moments.Restore([]moments.Post{{
		ID:         "old-user",
		AuthorID:   chat.UserID,
		Body:       "很久以前的帖子",
		Visibility: moments.VisibilityPublic,
		CreatedAt:  time.Now().UTC().Add(-96 * time.Hour),
	}})

	ag, _ := h.agents.FindByID("a1")
	if !h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("user posts never go stale for sweep")
	}

	updated, _ := h.moments.FindByID("old-user")
	if !updated.LikedBy("a1") {
		t.Fatalf("expected like on old user post")
	}
}

func TestSweepSkipsAlreadyReactedPosts(t *testing.T) {
	h := newHarness([]agent.Agent{reactor("a1")}, `{"action":"like"}`)
	h.engine.Roll = func(float64) bool { return true }

	post, _ := h.moments.CreatePost(moments.Post{AuthorID: chat.UserID, Body: "已经赞过"})
	h.moments.Like(post.ID, "a1")

	ag, _ := h.agents.FindByID("a1")
	if h.engine.SweepAgent(context.Background(), ag) {
		t.Fatalf("already reacted post should be skipped")
	}
	if h.completer.callCount() != 0 {
		t.Fatalf("expected no generation call")
	}
}
