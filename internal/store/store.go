package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	_ "modernc.org/sqlite"

	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
	"github.com/JustFluffie/fluffie/backend/internal/model/todo"
)

// 所有表都以 JSON 快照存整行，检查点只关心"最后一次写入赢"。
const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	id       TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	seq      INTEGER NOT NULL,
	data     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_agent ON messages(agent_id, seq);
CREATE TABLE IF NOT EXISTS posts (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS todos (
	id   TEXT PRIMARY KEY,
	data TEXT NOT NULL
);
`

// Store 是基于 sqlite 的检查点存储，供各服务在变更后落盘、启动时回放。
type Store struct {
	db *sql.DB
}

// Open 打开（必要时创建）数据库文件并执行建表。
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// modernc 驱动是纯 Go 实现，写并发有限，单连接足够检查点用途。
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭数据库。
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) upsert(table, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data", table)
	_, err = s.db.Exec(query, id, string(data))
	return err
}

// SaveAgent 写入角色快照（含调度计数）。
func (s *Store) SaveAgent(a agent.Agent) error {
	return s.upsert("agents", a.ID, a)
}

// DeleteAgent 删除角色快照。
func (s *Store) DeleteAgent(id string) error {
	_, err := s.db.Exec("DELETE FROM agents WHERE id = ?", id)
	return err
}

// SaveMessage 写入消息快照。
func (s *Store) SaveMessage(m chat.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO messages (id, agent_id, seq, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		m.ID, m.AgentID, m.Seq, string(data))
	return err
}

// DeleteConversation 删除一个会话的全部消息。
func (s *Store) DeleteConversation(agentID string) error {
	_, err := s.db.Exec("DELETE FROM messages WHERE agent_id = ?", agentID)
	return err
}

// SavePost 写入帖子快照。
func (s *Store) SavePost(p moments.Post) error {
	return s.upsert("posts", p.ID, p)
}

// DeletePost 删除帖子快照。
func (s *Store) DeletePost(id string) error {
	_, err := s.db.Exec("DELETE FROM posts WHERE id = ?", id)
	return err
}

// SaveTodo 写入待办快照。
func (s *Store) SaveTodo(item todo.Item) error {
	return s.upsert("todos", item.ID, item)
}

// LoadAgents 回放全部角色快照，按创建时间排序。
func (s *Store) LoadAgents() ([]agent.Agent, error) {
	var agents []agent.Agent
	if err := s.loadAll("agents", func(data []byte) error {
		var a agent.Agent
		if err := json.Unmarshal(data, &a); err != nil {
			return err
		}
		agents = append(agents, a)
		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
	return agents, nil
}

// LoadMessages 回放全部消息快照，按会话内序号排序。
func (s *Store) LoadMessages() ([]chat.Message, error) {
	rows, err := s.db.Query("SELECT data FROM messages ORDER BY agent_id, seq")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []chat.Message
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m chat.Message
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// LoadPosts 回放全部帖子快照，按创建时间倒序（新帖在前）。
func (s *Store) LoadPosts() ([]moments.Post, error) {
	var posts []moments.Post
	if err := s.loadAll("posts", func(data []byte) error {
		var p moments.Post
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		posts = append(posts, p)
		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	return posts, nil
}

// LoadTodos 回放全部待办快照，按创建时间排序。
func (s *Store) LoadTodos() ([]todo.Item, error) {
	var items []todo.Item
	if err := s.loadAll("todos", func(data []byte) error {
		var item todo.Item
		if err := json.Unmarshal(data, &item); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) loadAll(table string, fn func(data []byte) error) error {
	rows, err := s.db.Query(fmt.Sprintf("SELECT data FROM %s", table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return err
		}
		if err := fn([]byte(data)); err != nil {
			return err
		}
	}
	return rows.Err()
}
