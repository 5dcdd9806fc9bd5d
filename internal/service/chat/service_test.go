package chat

import (
	"context"
	"testing"

	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
)

func appendMessage(t *testing.T, svc *Service, m chat.Message) chat.Message {
	t.Helper()
	saved, err := svc.Append(context.Background(), m)
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	return saved
}

func TestAppendAssignsSequentialSeq(t *testing.T) {
	svc := NewService(nil)

	first := appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderUser, Type: chat.TypeText, Content: "你好"})
	second := appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderAgent, Type: chat.TypeText, Content: "嗯？"})

	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("expected seq 1 and 2, got %d and %d", first.Seq, second.Seq)
	}
	if first.ID == "" || first.ID == second.ID {
		t.Fatalf("expected distinct non-empty ids")
	}
}

func TestAppendRequiresAgent(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Append(context.Background(), chat.Message{Content: "无主消息"}); err != ErrAgentRequired {
		t.Fatalf("expected ErrAgentRequired, got %v", err)
	}
}

func TestAcceptPendingTransfersIsIdempotent(t *testing.T) {
	svc := NewService(nil)
	appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderUser, Type: chat.TypeTransfer, Content: "66", TransferStatus: chat.TransferPending})
	appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderUser, Type: chat.TypeTransfer, Content: "88", TransferStatus: chat.TransferPending})

	if got := len(svc.PendingUserTransfers("a1")); got != 2 {
		t.Fatalf("expected 2 pending transfers, got %d", got)
	}
	if accepted := svc.AcceptPendingTransfers("a1"); accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", accepted)
	}
	// 第二次流转不应产生任何变化。
	if accepted := svc.AcceptPendingTransfers("a1"); accepted != 0 {
		t.Fatalf("expected 0 on second accept, got %d", accepted)
	}
	if got := len(svc.PendingUserTransfers("a1")); got != 0 {
		t.Fatalf("expected no pending transfers left, got %d", got)
	}
}

func TestAgentTransfersAreNotAccepted(t *testing.T) {
	svc := NewService(nil)
	appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderAgent, Type: chat.TypeTransfer, Content: "请收下", TransferStatus: chat.TransferPending})

	if accepted := svc.AcceptPendingTransfers("a1"); accepted != 0 {
		t.Fatalf("agent-sent transfer should stay pending, accepted %d", accepted)
	}
}

func TestRecallLatestAgentMessage(t *testing.T) {
	svc := NewService(nil)
	appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderAgent, Type: chat.TypeText, Content: "说错话了"})
	appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderUser, Type: chat.TypeText, Content: "？"})

	recalled, ok := svc.RecallLatestAgentMessage("a1")
	if !ok {
		t.Fatalf("expected a recallable message")
	}
	if recalled.Content != "说错话了" {
		t.Fatalf("recalled wrong message: %q", recalled.Content)
	}

	// 已全部撤回后不应再找到目标。
	if _, ok := svc.RecallLatestAgentMessage("a1"); ok {
		t.Fatalf("expected no recallable message left")
	}

	history := svc.History("a1", 0)
	if !history[0].Revoked {
		t.Fatalf("expected first message marked revoked")
	}
}

func TestUnreadCounting(t *testing.T) {
	svc := NewService(nil)
	svc.IncrementUnread("a1")
	svc.IncrementUnread("a1")
	if got := svc.Unread("a1"); got != 2 {
		t.Fatalf("expected 2 unread, got %d", got)
	}
	svc.ResetUnread("a1")
	if got := svc.Unread("a1"); got != 0 {
		t.Fatalf("expected 0 unread after reset, got %d", got)
	}
}

func TestHistoryLimit(t *testing.T) {
	svc := NewService(nil)
	for i := 0; i < 5; i++ {
		appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderUser, Type: chat.TypeText, Content: "m"})
	}

	if got := len(svc.History("a1", 3)); got != 3 {
		t.Fatalf("expected 3 messages, got %d", got)
	}
	if got := len(svc.History("a1", 0)); got != 5 {
		t.Fatalf("expected full history, got %d", got)
	}
}

func TestRestoreKeepsSeqCounter(t *testing.T) {
	svc := NewService(nil)
	svc.Restore([]chat.Message{
		{ID: "m1", AgentID: "a1", Seq: 7, Sender: chat.SenderUser, Type: chat.TypeText, Content: "旧消息"},
	})

	next := appendMessage(t, svc, chat.Message{AgentID: "a1", Sender: chat.SenderUser, Type: chat.TypeText, Content: "新消息"})
	if next.Seq != 8 {
		t.Fatalf("expected seq to continue at 8, got %d", next.Seq)
	}
}
