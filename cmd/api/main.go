package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JustFluffie/fluffie/backend/internal/config"
	"github.com/JustFluffie/fluffie/backend/internal/handler"
	agentHandler "github.com/JustFluffie/fluffie/backend/internal/handler/agent"
	chatHandler "github.com/JustFluffie/fluffie/backend/internal/handler/chat"
	momentsHandler "github.com/JustFluffie/fluffie/backend/internal/handler/moments"
	settingsHandler "github.com/JustFluffie/fluffie/backend/internal/handler/settings"
	"github.com/JustFluffie/fluffie/backend/internal/handler/ws"
	agentmodel "github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/notify"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/delivery"
	"github.com/JustFluffie/fluffie/backend/internal/service/dispatch"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/pipeline"
	"github.com/JustFluffie/fluffie/backend/internal/service/reaction"
	"github.com/JustFluffie/fluffie/backend/internal/service/scheduler"
	todoservice "github.com/JustFluffie/fluffie/backend/internal/service/todo"
	"github.com/JustFluffie/fluffie/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// 打不开数据库时降级为纯内存运行，不阻止启动。
	checkpoint, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Printf("warning: failed to open checkpoint store: %v", err)
		log.Println("continuing in memory-only mode")
		checkpoint = nil
	}

	agents := buildAgentStore(checkpoint)

	var chatCk chatservice.Checkpoint
	var momentsCk momentsservice.Checkpoint
	var todoCk todoservice.Checkpoint
	if checkpoint != nil {
		chatCk = checkpoint
		momentsCk = checkpoint
		todoCk = checkpoint
	}

	chatSvc := chatservice.NewService(chatCk)
	momentsSvc := momentsservice.NewService(momentsCk)
	todoSvc := todoservice.NewService(todoCk)

	if checkpoint != nil {
		restoreFromCheckpoint(checkpoint, chatSvc, momentsSvc, todoSvc)
	}

	hub := ws.NewHub()
	momentsSvc.OnUnseen = hub.FeedUpdated

	notifier := notify.NewDesktop(cfg.Notify.Enabled)
	dispatcher := dispatch.New(agents, chatSvc, momentsSvc, todoSvc)
	deliveryEngine := delivery.New(chatSvc, notifier, hub, hub)

	// Initialize AI service
	var aiSvc *ai.Service
	if cfg.AI.Enabled() {
		aiSvc, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
			aiSvc = nil
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	// 没有模型时只提供存取接口：不回复、不主动、不围观。
	var runner *pipeline.Runner
	var reactions *reaction.Engine
	if aiSvc != nil {
		runner = pipeline.NewRunner(aiSvc, dispatcher, deliveryEngine)
		reactions = reaction.New(cfg.Scheduler, agents, momentsSvc, aiSvc, runner)
		dispatcher.OnPostCreated = handler.PublishHook(reactions)
	}

	sched := scheduler.New(cfg.Scheduler, agents, chatSvc, momentsSvc, aiSvc, runner, reactions)
	if aiSvc != nil {
		if err := sched.Start(); err != nil {
			log.Fatalf("failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	router := handler.NewRouter(handler.Deps{
		Agents:   agentHandler.New(agents, chatSvc, momentsSvc, cfg.Scheduler),
		Chats:    chatHandler.New(agents, chatSvc, runner, hub),
		Moments:  momentsHandler.New(momentsSvc, agents, handler.PublishHook(reactions)),
		Settings: settingsHandler.New(sched, todoSvc),
		Hub:      hub,
	})

	startServer(ctx, cfg.Server, router)

	// 退出前把角色快照（含调度计数）整体落一次盘。
	if checkpoint != nil {
		for _, a := range agents.List() {
			if err := checkpoint.SaveAgent(a); err != nil {
				log.Printf("warning: final agent snapshot failed: %v", err)
			}
		}
		checkpoint.Close()
	}
}

// buildAgentStore 从检查点回放角色，首次启动时写入种子角色。
func buildAgentStore(checkpoint *store.Store) *agentmodel.Store {
	seed := agentmodel.Seed()

	if checkpoint == nil {
		return agentmodel.NewStore(seed)
	}

	loaded, err := checkpoint.LoadAgents()
	if err != nil {
		log.Printf("warning: failed to load agents: %v", err)
		loaded = nil
	}
	if len(loaded) == 0 {
		loaded = seed
		for _, a := range loaded {
			if err := checkpoint.SaveAgent(a); err != nil {
				log.Printf("warning: failed to persist seed agent %s: %v", a.ID, err)
			}
		}
	}

	agents := agentmodel.NewStore(loaded)
	agents.OnChange = func(a agentmodel.Agent) {
		if err := checkpoint.SaveAgent(a); err != nil {
			log.Printf("[store] agent checkpoint write failed: %v", err)
		}
	}
	agents.OnDelete = func(id string) {
		if err := checkpoint.DeleteAgent(id); err != nil {
			log.Printf("[store] agent checkpoint delete failed: %v", err)
		}
	}
	return agents
}

// restoreFromCheckpoint 启动时回放消息、帖子与待办。
func restoreFromCheckpoint(checkpoint *store.Store, chatSvc *chatservice.Service, momentsSvc *momentsservice.Service, todoSvc *todoservice.Service) {
	if messages, err := checkpoint.LoadMessages(); err != nil {
		log.Printf("warning: failed to load messages: %v", err)
	} else {
		chatSvc.Restore(messages)
	}

	if posts, err := checkpoint.LoadPosts(); err != nil {
		log.Printf("warning: failed to load posts: %v", err)
	} else {
		momentsSvc.Restore(posts)
	}

	if todos, err := checkpoint.LoadTodos(); err != nil {
		log.Printf("warning: failed to load todos: %v", err)
	} else {
		todoSvc.Restore(todos)
	}
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Fluffie backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
