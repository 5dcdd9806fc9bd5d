package chat

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
)

var (
	ErrAgentRequired   = errors.New("agent id is required")
	ErrMessageNotFound = errors.New("message not found")
)

// Checkpoint 是持久化边界：每次变更后写入检查点。实现可为空。
type Checkpoint interface {
	SaveMessage(m chat.Message) error
	DeleteConversation(agentID string) error
}

// Service 管理每个角色会话的消息、未读数与转账状态。
type Service struct {
	mu         sync.RWMutex
	messages   map[string][]chat.Message
	unread     map[string]int
	seq        map[string]int64
	checkpoint Checkpoint
}

// NewService 创建会话服务。checkpoint 可为 nil（仅内存）。
func NewService(checkpoint Checkpoint) *Service {
	return &Service{
		messages:   make(map[string][]chat.Message),
		unread:     make(map[string]int),
		seq:        make(map[string]int64),
		checkpoint: checkpoint,
	}
}

// Append 追加一条消息，分配标识、序号与时间戳，返回落库后的副本。
func (s *Service) Append(_ context.Context, m chat.Message) (chat.Message, error) {
	if m.AgentID == "" {
		return chat.Message{}, ErrAgentRequired
	}

	s.mu.Lock()
	m.ID = uuid.NewString()
	s.seq[m.AgentID]++
	m.Seq = s.seq[m.AgentID]
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.messages[m.AgentID] = append(s.messages[m.AgentID], m)
	s.mu.Unlock()

	s.save(m)
	return m, nil
}

// Restore 启动时回放持久化的消息，不经过检查点。
func (s *Service) Restore(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range messages {
		s.messages[m.AgentID] = append(s.messages[m.AgentID], m)
		if m.Seq > s.seq[m.AgentID] {
			s.seq[m.AgentID] = m.Seq
		}
	}
}

// History 返回会话消息的副本，limit <= 0 时返回全部。
func (s *Service) History(agentID string, limit int) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[agentID]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}
	copied := make([]chat.Message, len(msgs)-start)
	copy(copied, msgs[start:])
	return copied
}

// LastMessageAt 返回会话中最后一条消息的时间，空会话返回零值。
func (s *Service) LastMessageAt(agentID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[agentID]
	if len(msgs) == 0 {
		return time.Time{}
	}
	return msgs[len(msgs)-1].CreatedAt
}

// PendingUserTransfers 返回用户发出且仍处于待收状态的转账消息。
func (s *Service) PendingUserTransfers(agentID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []chat.Message
	for _, m := range s.messages[agentID] {
		if m.Sender == chat.SenderUser && m.Type == chat.TypeTransfer && m.TransferStatus == chat.TransferPending {
			pending = append(pending, m)
		}
	}
	return pending
}

// AcceptPendingTransfers 把用户发出的待收转账置为已收，返回实际流转的条数。
// 已接受的转账不会二次流转。
func (s *Service) AcceptPendingTransfers(agentID string) int {
	s.mu.Lock()

	accepted := 0
	var changed []chat.Message
	msgs := s.messages[agentID]
	for i := range msgs {
		m := &msgs[i]
		if m.Sender == chat.SenderUser && m.Type == chat.TypeTransfer && m.TransferStatus == chat.TransferPending {
			m.TransferStatus = chat.TransferAccepted
			accepted++
			changed = append(changed, *m)
		}
	}
	s.mu.Unlock()

	for _, m := range changed {
		s.save(m)
	}
	return accepted
}

// RecallLatestAgentMessage 撤回角色最近一条未撤回消息。
func (s *Service) RecallLatestAgentMessage(agentID string) (chat.Message, bool) {
	s.mu.Lock()

	msgs := s.messages[agentID]
	var recalled chat.Message
	found := false
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == chat.SenderAgent && !msgs[i].Revoked {
			msgs[i].Revoked = true
			recalled = msgs[i]
			found = true
			break
		}
	}
	s.mu.Unlock()

	if found {
		s.save(recalled)
	}
	return recalled, found
}

// EditMessage 修改消息正文。
func (s *Service) EditMessage(agentID, messageID, content string) (chat.Message, error) {
	s.mu.Lock()

	msgs := s.messages[agentID]
	var edited chat.Message
	found := false
	for i := range msgs {
		if msgs[i].ID == messageID {
			msgs[i].Content = content
			msgs[i].EditedAt = time.Now().UTC()
			edited = msgs[i]
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return chat.Message{}, ErrMessageNotFound
	}
	s.save(edited)
	return edited, nil
}

// IncrementUnread 将会话未读数加一。
func (s *Service) IncrementUnread(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[agentID]++
}

// ResetUnread 清空会话未读数。
func (s *Service) ResetUnread(agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unread[agentID] = 0
}

// Unread 返回会话未读数。
func (s *Service) Unread(agentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[agentID]
}

// DeleteConversation 删除角色的全部消息（角色删除时级联调用）。
func (s *Service) DeleteConversation(agentID string) {
	s.mu.Lock()
	delete(s.messages, agentID)
	delete(s.unread, agentID)
	delete(s.seq, agentID)
	s.mu.Unlock()

	if s.checkpoint != nil {
		if err := s.checkpoint.DeleteConversation(agentID); err != nil {
			log.Printf("[chat] checkpoint delete failed: %v", err)
		}
	}
}

func (s *Service) save(m chat.Message) {
	if s.checkpoint == nil {
		return
	}
	if err := s.checkpoint.SaveMessage(m); err != nil {
		log.Printf("[chat] checkpoint write failed: %v", err)
	}
}
