package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"linkup-client/config"
	"linkup-client/internal/api"
	"linkup-client/internal/auth"
	"linkup-client/internal/channel"
	"linkup-client/internal/session"
	"linkup-client/internal/store"
	"linkup-client/internal/uploads"
	"linkup-client/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	if cfg.UserID <= 0 {
		log.Fatal("USER_ID must be a positive integer")
	}

	kv, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer kv.Close()

	ctx := context.Background()

	sess := auth.NewSession(cfg.AuthToken, cfg.UserID)
	apiClient := api.NewClient(cfg.APIBaseURL, sess)

	conn, err := channel.Dial(ctx, cfg.SocketURL, cfg.UserID, l)
	if err != nil {
		log.Fatalf("Failed to connect event channel: %v", err)
	}
	defer conn.Close()

	var uploader *uploads.Store
	if cfg.S3Bucket != "" {
		uploader, err = uploads.NewStore(ctx, uploads.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
		})
		if err != nil {
			log.Fatalf("Failed to configure uploads: %v", err)
		}
	}

	deps := session.Deps{
		History:       apiClient,
		Directory:     apiClient,
		Conversations: apiClient,
		Receipts:      apiClient,
		Channel:       conn,
		Session:       sess,
		Drafts:        store.NewDrafts(kv, l),
		PendingFiles:  store.NewPendingFiles(kv, l),
		Logger:        l,
	}
	if uploader != nil {
		deps.Uploader = uploader
	}
	ctrl := session.NewController(cfg.UserID, deps)
	defer ctrl.Close()

	fmt.Println("linkup chat. /open <peerId> to start, /help for commands.")
	repl(ctx, ctrl, uploader)
}

func openStore(cfg *config.Config) (store.KV, error) {
	var kv store.KV
	var err error

	switch cfg.StoreBackend {
	case "redis":
		kv = store.NewRedisKV(goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}), fmt.Sprintf("linkup:%d:", cfg.UserID))
	case "memory":
		kv = store.NewMemoryKV()
	default:
		kv, err = store.OpenPebble(cfg.StorePath)
		if err != nil {
			return nil, err
		}
	}

	if cfg.StoreKey != "" {
		return store.NewSecureKV(kv, cfg.StoreKey)
	}
	return kv, nil
}

func repl(ctx context.Context, ctrl *session.Controller, uploader *uploads.Store) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !strings.HasPrefix(line, "/") {
			send(ctx, ctrl, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line[1:], " ")
		switch cmd {
		case "open":
			open(ctx, ctrl, arg)
		case "accept":
			if err := ctrl.Confirm(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "show":
			show(ctrl)
		case "draft":
			if err := ctrl.SetDraft(ctx, arg); err != nil {
				fmt.Println("error:", err)
			}
		case "files":
			for i, f := range ctrl.PendingFiles(ctx) {
				fmt.Printf("%d: %s\n", i, f)
			}
		case "attach":
			attach(ctx, ctrl, uploader, arg)
		case "discard":
			if idx, err := strconv.Atoi(arg); err == nil {
				if err := ctrl.DiscardFile(ctx, idx); err != nil {
					fmt.Println("error:", err)
				}
			}
		case "delete":
			if id, err := strconv.Atoi(arg); err == nil {
				if err := ctrl.Delete(ctx, id); err != nil {
					fmt.Println("error:", err)
				}
			}
		case "clear":
			if err := ctrl.ClearHistory(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "close":
			ctrl.Close()
		case "quit":
			return
		case "help":
			fmt.Println("/open <peerId> /accept /show /draft <text> /attach <path> /files /discard <i> /delete <id> /clear /close /quit")
		default:
			fmt.Println("unknown command, /help for help")
		}
	}
}

func open(ctx context.Context, ctrl *session.Controller, arg string) {
	peerID, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Println("usage: /open <peerId>")
		return
	}
	ctrl.Close()
	if err := ctrl.Open(ctx, peerID); err != nil {
		fmt.Println("error:", err)
		return
	}
	<-ctrl.Ready()
	if err := ctrl.LastError(); err != nil {
		fmt.Println("history unavailable, live messages only:", err)
	}
	if draft := ctrl.Draft(ctx); draft != "" {
		fmt.Printf("restored draft: %q\n", draft)
	}
	if files := ctrl.PendingFiles(ctx); len(files) > 0 {
		fmt.Printf("restored %d pending attachment(s)\n", len(files))
	}
	if ctrl.Gated() {
		fmt.Println("this peer wants to connect with you; /accept to proceed")
	}
	show(ctrl)
}

func send(ctx context.Context, ctrl *session.Controller, text string) {
	files := ctrl.PendingFiles(ctx)
	if err := ctrl.Send(ctx, text, files); err != nil {
		fmt.Println("error:", err)
	}
}

func attach(ctx context.Context, ctrl *session.Controller, uploader *uploads.Store, path string) {
	if uploader == nil {
		fmt.Println("uploads are not configured")
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	url, err := uploader.Upload(ctx, filepath.Base(path), "", f, info.Size(), func(percent int) {
		fmt.Printf("\ruploading %d%%", percent)
	})
	fmt.Println()
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if err := ctrl.AttachFile(ctx, url); err != nil {
		fmt.Println("error:", err)
	}
}

func show(ctrl *session.Controller) {
	for _, group := range ctrl.Grouped() {
		fmt.Println("--", group.Label, "--")
		for _, msg := range group.Messages {
			who := "me"
			if msg.SenderID == ctrl.PeerID() {
				who = "them"
			}
			line := msg.Content
			if len(msg.FileURLs) > 0 {
				line = fmt.Sprintf("%s [%d attachment(s)]", line, len(msg.FileURLs))
			}
			fmt.Printf("[%d] %s: %s\n", msg.ID, who, line)
		}
	}
}
