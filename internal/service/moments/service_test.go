package moments

import (
	"testing"

	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
)

func TestToggleLike(t *testing.T) {
	svc := NewService(nil)
	post, _ := svc.CreatePost(moments.Post{AuthorID: "user", Body: "今天加班"})

	liked, err := svc.ToggleLike(post.ID, "a1")
	if err != nil {
		t.Fatalf("toggle like failed: %v", err)
	}
	if !liked.LikedBy("a1") {
		t.Fatalf("expected a1 in likes")
	}

	unliked, _ := svc.ToggleLike(post.ID, "a1")
	if unliked.LikedBy("a1") {
		t.Fatalf("expected like removed on second toggle")
	}
}

func TestLikeIsIdempotent(t *testing.T) {
	svc := NewService(nil)
	post, _ := svc.CreatePost(moments.Post{AuthorID: "user", Body: "打卡"})

	svc.Like(post.ID, "a1")
	updated, _ := svc.Like(post.ID, "a1")
	if len(updated.Likes) != 1 {
		t.Fatalf("expected single like entry, got %d", len(updated.Likes))
	}
}

func TestAgentPostMarksUnseen(t *testing.T) {
	svc := NewService(nil)

	fired := 0
	svc.OnUnseen = func() { fired++ }

	svc.CreatePost(moments.Post{AuthorID: "user", Body: "我自己发的"})
	if svc.HasUnseen() {
		t.Fatalf("user's own post should not mark feed unseen")
	}

	svc.CreatePost(moments.Post{AuthorID: "a1", Body: "角色发的"})
	if !svc.HasUnseen() {
		t.Fatalf("agent post should mark feed unseen")
	}
	if fired != 1 {
		t.Fatalf("expected unseen hook fired once, got %d", fired)
	}

	// 已处于未读状态时不再重复触发。
	svc.MarkUnseen()
	if fired != 1 {
		t.Fatalf("expected no duplicate hook, got %d", fired)
	}

	svc.MarkSeen()
	if svc.HasUnseen() {
		t.Fatalf("expected unseen cleared")
	}
}

func TestLatestPostByAuthor(t *testing.T) {
	svc := NewService(nil)
	svc.CreatePost(moments.Post{AuthorID: "user", Body: "第一条"})
	svc.CreatePost(moments.Post{AuthorID: "a1", Body: "插队"})
	svc.CreatePost(moments.Post{AuthorID: "user", Body: "第二条"})

	latest, ok := svc.LatestPostBy("user")
	if !ok || latest.Body != "第二条" {
		t.Fatalf("expected latest user post, got %+v", latest)
	}
}

func TestAddCommentAssignsID(t *testing.T) {
	svc := NewService(nil)
	post, _ := svc.CreatePost(moments.Post{AuthorID: "user", Body: "求评论"})

	updated, err := svc.AddComment(post.ID, moments.Comment{AuthorID: "a1", Body: "来了"})
	if err != nil {
		t.Fatalf("add comment failed: %v", err)
	}
	if len(updated.Comments) != 1 || updated.Comments[0].ID == "" {
		t.Fatalf("expected comment with assigned id, got %+v", updated.Comments)
	}
}

func TestDeletePostsByAuthor(t *testing.T) {
	svc := NewService(nil)
	svc.CreatePost(moments.Post{AuthorID: "a1", Body: "一"})
	svc.CreatePost(moments.Post{AuthorID: "user", Body: "二"})
	svc.CreatePost(moments.Post{AuthorID: "a1", Body: "三"})

	svc.DeletePostsBy("a1")

	posts := svc.List()
	if len(posts) != 1 || posts[0].AuthorID != "user" {
		t.Fatalf("expected only user post left, got %+v", posts)
	}
}

func TestMutateMissingPost(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.ToggleLike("missing", "a1"); err != ErrPostNotFound {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}
}
