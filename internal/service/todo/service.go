package todo

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JustFluffie/fluffie/backend/internal/model/todo"
)

// Checkpoint 是持久化边界。实现可为空。
type Checkpoint interface {
	SaveTodo(item todo.Item) error
}

// Service 是日程协作方：接收 {title, date, time, done=false} 形式的待办。
type Service struct {
	mu         sync.RWMutex
	items      []todo.Item
	checkpoint Checkpoint
}

// NewService 创建待办服务。checkpoint 可为 nil（仅内存）。
func NewService(checkpoint Checkpoint) *Service {
	return &Service{checkpoint: checkpoint}
}

// Add 登记一条待办并返回落库后的副本。
func (s *Service) Add(item todo.Item) todo.Item {
	item.ID = uuid.NewString()
	item.Done = false
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	if s.checkpoint != nil {
		if err := s.checkpoint.SaveTodo(item); err != nil {
			log.Printf("[todo] checkpoint write failed: %v", err)
		}
	}
	return item
}

// Restore 启动时回放持久化的待办，不经过检查点。
func (s *Service) Restore(items []todo.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]todo.Item(nil), items...)
}

// List 返回全部待办的副本。
func (s *Service) List() []todo.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]todo.Item, len(s.items))
	copy(copied, s.items)
	return copied
}
