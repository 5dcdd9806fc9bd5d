package agent

import (
	"sync"
	"time"
)

// Store 维护角色注册表，并负责进行中的生成调用占位锁。
type Store struct {
	mu     sync.RWMutex
	order  []string
	items  map[string]*Agent
	inTurn map[string]bool

	// OnChange 与 OnDelete 在注册表变更后回调（用于持久化），可为空。
	OnChange func(a Agent)
	OnDelete func(id string)
}

// NewStore 返回预载入指定角色的注册表。
func NewStore(items []Agent) *Store {
	s := &Store{
		items:  make(map[string]*Agent, len(items)),
		inTurn: make(map[string]bool),
	}
	for i := range items {
		a := items[i]
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		s.items[a.ID] = &a
		s.order = append(s.order, a.ID)
	}
	return s
}

// List 按创建顺序返回所有角色的副本。
func (s *Store) List() []Agent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Agent, 0, len(s.order))
	for _, id := range s.order {
		if a, ok := s.items[id]; ok {
			out = append(out, *a)
		}
	}
	return out
}

// FindByID 按标识查找角色。
func (s *Store) FindByID(id string) (Agent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// Create 注册一个新角色。
func (s *Store) Create(a Agent) {
	s.mu.Lock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.items[a.ID]; !exists {
		s.order = append(s.order, a.ID)
	}
	s.items[a.ID] = &a
	copied := a
	s.mu.Unlock()

	if s.OnChange != nil {
		s.OnChange(copied)
	}
}

// Update 在锁内对角色应用变更函数，保证计数读写的原子性。
func (s *Store) Update(id string, fn func(*Agent)) bool {
	s.mu.Lock()
	a, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	fn(a)
	copied := *a
	s.mu.Unlock()

	if s.OnChange != nil {
		s.OnChange(copied)
	}
	return true
}

// Delete 注销角色并释放其占位锁。
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.items, id)
	delete(s.inTurn, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if s.OnDelete != nil {
		s.OnDelete(id)
	}
	return true
}

// TryBeginTurn 尝试为角色占用一次生成调用。
// 已有进行中的调用时返回 false，调度器据此跳过该角色，避免重复触发。
func (s *Store) TryBeginTurn(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	if s.inTurn[id] {
		return false
	}
	s.inTurn[id] = true
	return true
}

// EndTurn 释放角色的生成调用占位。
func (s *Store) EndTurn(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inTurn, id)
}

// InTurn 返回角色是否有进行中的生成调用。
func (s *Store) InTurn(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inTurn[id]
}
