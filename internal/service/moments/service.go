package moments

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
)

var ErrPostNotFound = errors.New("post not found")

// Checkpoint 是持久化边界：每次变更后写入检查点。实现可为空。
type Checkpoint interface {
	SavePost(p moments.Post) error
	DeletePost(id string) error
}

// Service 管理朋友圈帖子、点赞、评论与未读动态标记。
type Service struct {
	mu         sync.RWMutex
	posts      []moments.Post // 新帖在前
	unseen     bool
	checkpoint Checkpoint

	// OnUnseen 在朋友圈首次出现未读动态时回调（用于推送），可为空。
	OnUnseen func()
}

// NewService 创建朋友圈服务。checkpoint 可为 nil（仅内存）。
func NewService(checkpoint Checkpoint) *Service {
	return &Service{checkpoint: checkpoint}
}

// CreatePost 发布一条帖子。
func (s *Service) CreatePost(p moments.Post) (moments.Post, error) {
	p.ID = uuid.NewString()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Visibility == "" {
		p.Visibility = moments.VisibilityPublic
	}

	s.mu.Lock()
	s.posts = append([]moments.Post{p}, s.posts...)
	s.mu.Unlock()

	if p.AuthorID != chat.UserID {
		// 角色发帖对用户构成未读动态。
		s.MarkUnseen()
	}
	s.save(p)
	return p, nil
}

// Restore 启动时回放持久化的帖子（按创建时间倒序存放）。
func (s *Service) Restore(posts []moments.Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts = append([]moments.Post(nil), posts...)
}

// List 返回全部帖子的副本，新帖在前。
func (s *Service) List() []moments.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	copied := make([]moments.Post, len(s.posts))
	copy(copied, s.posts)
	return copied
}

// FindByID 按标识查找帖子。
func (s *Service) FindByID(id string) (moments.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.ID == id {
			return p, true
		}
	}
	return moments.Post{}, false
}

// LatestPostBy 返回指定作者最近的一条帖子。
func (s *Service) LatestPostBy(authorID string) (moments.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			return p, true
		}
	}
	return moments.Post{}, false
}

// ToggleLike 切换点赞状态，返回更新后的帖子。
func (s *Service) ToggleLike(postID, actorID string) (moments.Post, error) {
	return s.mutate(postID, func(p *moments.Post) {
		for i, id := range p.Likes {
			if id == actorID {
				p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
				return
			}
		}
		p.Likes = append(p.Likes, actorID)
	})
}

// Like 确保指定参与者已点赞（幂等，不会取消已有的赞）。
func (s *Service) Like(postID, actorID string) (moments.Post, error) {
	return s.mutate(postID, func(p *moments.Post) {
		if !p.LikedBy(actorID) {
			p.Likes = append(p.Likes, actorID)
		}
	})
}

// AddComment 追加一条评论并返回更新后的帖子。
func (s *Service) AddComment(postID string, c moments.Comment) (moments.Post, error) {
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	return s.mutate(postID, func(p *moments.Post) {
		p.Comments = append(p.Comments, c)
	})
}

// UpdateBody 编辑帖子正文。
func (s *Service) UpdateBody(postID, body string) (moments.Post, error) {
	return s.mutate(postID, func(p *moments.Post) {
		p.Body = body
	})
}

// DeletePost 删除帖子。
func (s *Service) DeletePost(id string) error {
	s.mu.Lock()
	found := false
	for i, p := range s.posts {
		if p.ID == id {
			s.posts = append(s.posts[:i], s.posts[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrPostNotFound
	}
	if s.checkpoint != nil {
		if err := s.checkpoint.DeletePost(id); err != nil {
			log.Printf("[moments] checkpoint delete failed: %v", err)
		}
	}
	return nil
}

// DeletePostsBy 删除指定作者的全部帖子（角色删除时级联调用）。
func (s *Service) DeletePostsBy(authorID string) {
	s.mu.Lock()
	var kept []moments.Post
	var removed []string
	for _, p := range s.posts {
		if p.AuthorID == authorID {
			removed = append(removed, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	s.posts = kept
	s.mu.Unlock()

	if s.checkpoint != nil {
		for _, id := range removed {
			if err := s.checkpoint.DeletePost(id); err != nil {
				log.Printf("[moments] checkpoint delete failed: %v", err)
			}
		}
	}
}

// MarkUnseen 标记朋友圈出现了用户尚未查看的新动态。
func (s *Service) MarkUnseen() {
	s.mu.Lock()
	changed := !s.unseen
	s.unseen = true
	s.mu.Unlock()

	if changed && s.OnUnseen != nil {
		s.OnUnseen()
	}
}

// MarkSeen 用户查看朋友圈后清除未读标记。
func (s *Service) MarkSeen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unseen = false
}

// HasUnseen 返回朋友圈是否有未读动态。
func (s *Service) HasUnseen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unseen
}

func (s *Service) mutate(postID string, fn func(*moments.Post)) (moments.Post, error) {
	s.mu.Lock()

	var updated moments.Post
	found := false
	for i := range s.posts {
		if s.posts[i].ID == postID {
			fn(&s.posts[i])
			updated = s.posts[i]
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return moments.Post{}, ErrPostNotFound
	}
	s.save(updated)
	return updated, nil
}

func (s *Service) save(p moments.Post) {
	if s.checkpoint == nil {
		return
	}
	if err := s.checkpoint.SavePost(p); err != nil {
		log.Printf("[moments] checkpoint write failed: %v", err)
	}
}
