package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillswap/realtime/internal/auth"
	"github.com/skillswap/realtime/internal/chat"
	"github.com/skillswap/realtime/internal/conversation"
	"github.com/skillswap/realtime/internal/directory"
	"github.com/skillswap/realtime/internal/feed"
	"github.com/skillswap/realtime/internal/media"
	"github.com/skillswap/realtime/internal/message"
	"github.com/skillswap/realtime/internal/messaging"
	"github.com/skillswap/realtime/internal/notify"
	"github.com/skillswap/realtime/internal/pairroom"
	"github.com/skillswap/realtime/internal/presence"
	"github.com/skillswap/realtime/internal/protocol"
	"github.com/skillswap/realtime/internal/ratelimit"
	"github.com/skillswap/realtime/internal/store"
	"github.com/skillswap/realtime/internal/typing"
	"github.com/skillswap/realtime/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	verifier := auth.NewVerifier([]byte(jwtSecret))

	// --- PostgreSQL ---
	pgConfig := store.DefaultConfig()
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		pgConfig.DSN = dsn
	}
	db, err := store.Open(context.Background(), pgConfig)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	if dir := os.Getenv("MIGRATIONS_DIR"); dir != "" {
		if err := store.Migrate(db, dir); err != nil {
			log.Fatalf("failed to migrate schema: %v", err)
		}
	}

	// --- Redis ---
	redisAddr := "localhost:6379"
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		redisAddr = v
	}
	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// --- NATS ---
	natsConfig := messaging.DefaultConfig()
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig.URL = natsURL
	}
	natsClient, err := messaging.Connect(natsConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// --- Object storage (optional) ---
	var mediaStore *media.Store
	if endpoint := os.Getenv("MINIO_ENDPOINT"); endpoint != "" {
		mediaConfig := media.DefaultConfig()
		mediaConfig.Endpoint = endpoint
		if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
			mediaConfig.AccessKey = v
		}
		if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
			mediaConfig.SecretKey = v
		}
		if v := os.Getenv("MINIO_BUCKET"); v != "" {
			mediaConfig.Bucket = v
		}
		mediaConfig.UseSSL = os.Getenv("MINIO_USE_SSL") == "true"

		mediaStore, err = media.NewStore(context.Background(), mediaConfig)
		if err != nil {
			log.Fatalf("failed to connect to object storage: %v", err)
		}
	}

	// --- Kafka notification pipeline (optional) ---
	var notifier *notify.Publisher
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		topic := os.Getenv("KAFKA_TOPIC")
		if topic == "" {
			topic = notify.DefaultTopic
		}
		notifier = notify.NewPublisher(strings.Split(brokers, ","), topic)
	}

	// --- Stores and service ---
	messageStore := message.NewStore(db)
	directoryStore := directory.NewStore(db)
	presenceStore := presence.NewStore(rdb)
	typingStore := typing.NewStore(rdb)
	limiter := ratelimit.NewLimiter(rdb)
	rooms := pairroom.NewManager(natsClient)
	changeFeed := feed.New(natsClient, directoryStore)
	aggregator := conversation.NewAggregator(db, directoryStore, presenceStore)

	serviceConfig := chat.Config{
		Messages:      messageStore,
		Conversations: aggregator,
		Directory:     directoryStore,
		Presence:      presenceStore,
		Typing:        typingStore,
		Rooms:         rooms,
		Feed:          changeFeed,
		Limiter:       limiter,
		Media:         mediaStore,
	}
	if notifier != nil {
		serviceConfig.Notifier = notifier
	}
	service := chat.NewService(serviceConfig)

	log.Printf("SkillSwap realtime server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  nats_url:        %s", natsConfig.URL)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  media:           %v", mediaStore != nil)
	log.Printf("  notifications:   %v", notifier != nil)

	// Declare server early so closures can capture it.
	var server *ws.Server

	dispatcher := ws.NewMessageDispatcher()

	// send is how every handler replies to the connection that asked.
	send := func(conn *ws.Connection, msgType string, payload interface{}) {
		data, err := protocol.NewServerMessage(msgType, payload)
		if err != nil {
			log.Printf("[handler] build %s: %v", msgType, err)
			return
		}
		if err := server.SendMessage(conn.ID, data); err != nil {
			log.Printf("[handler] send %s to conn=%s: %v", msgType, conn.ID, err)
		}
	}

	// -----------------------------------------------------------------------
	// send_message — validate, store, fan out
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		sm, ok := msg.(protocol.SendMessageMsg)
		if !ok {
			return
		}
		ctx := context.Background()

		msgType := sm.MessageType
		if msgType == "" {
			msgType = message.TypeText
		}
		// Self-sends are odd but allowed (notes-to-self); only a missing
		// receiver is rejected.
		if sm.ReceiverID == "" {
			dispatcher.SendError(conn, "invalid_receiver", "receiver is required")
			return
		}
		if err := message.ValidateContent(sm.Content, msgType); err != nil {
			dispatcher.SendError(conn, "invalid_message", err.Error())
			return
		}

		m, err := service.Send(ctx, conn.UserID, sm.ReceiverID, sm.Content, msgType, sm.ReplyTo)
		if err != nil {
			if err == chat.ErrRateLimited {
				send(conn, protocol.TypeRateLimited, protocol.RateLimitedMsg{Action: protocol.TypeSendMessage})
				return
			}
			log.Printf("[send_message] user=%s: %v", conn.UserID, err)
			dispatcher.SendError(conn, "send_failed", "message could not be stored")
			return
		}

		// Echo the canonical row back so the client can replace its
		// optimistic placeholder.
		send(conn, protocol.TypeMessageNew, protocol.MessageNewMsg{
			Message: chat.HistoryEntry{Message: *m},
			Via:     "broadcast",
		})
	})

	// -----------------------------------------------------------------------
	// fetch_messages — conversation history page
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeFetchMessages, func(conn *ws.Connection, msg interface{}) {
		fm, ok := msg.(protocol.FetchMessagesMsg)
		if !ok {
			return
		}
		entries := service.History(context.Background(), conn.UserID, fm.PeerID, fm.Limit, fm.Offset)
		send(conn, protocol.TypeMessageHistory, protocol.MessageHistoryMsg{
			PeerID:   fm.PeerID,
			Messages: entries,
			Offset:   fm.Offset,
		})
	})

	// -----------------------------------------------------------------------
	// list_conversations — merged directory + previews + presence
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeListConversations, func(conn *ws.Connection, msg interface{}) {
		previews := service.Conversations(context.Background(), conn.UserID)
		send(conn, protocol.TypeConversationList, protocol.ConversationListMsg{
			Conversations: previews,
		})
	})

	// -----------------------------------------------------------------------
	// mark_read — bulk read receipt for one peer
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeMarkRead, func(conn *ws.Connection, msg interface{}) {
		mr, ok := msg.(protocol.MarkReadMsg)
		if !ok {
			return
		}
		service.MarkRead(context.Background(), conn.UserID, mr.PeerID)
	})

	// -----------------------------------------------------------------------
	// typing — keystroke activity toward a peer
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTyping, func(conn *ws.Connection, msg interface{}) {
		tm, ok := msg.(protocol.TypingMsg)
		if !ok {
			return
		}
		if err := service.Typing(context.Background(), conn.UserID, tm.PeerID); err != nil {
			if err == chat.ErrRateLimited {
				send(conn, protocol.TypeRateLimited, protocol.RateLimitedMsg{Action: protocol.TypeTyping})
				return
			}
			log.Printf("[typing] user=%s: %v", conn.UserID, err)
		}
	})

	// -----------------------------------------------------------------------
	// open_conversation — join the pair broadcast room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeOpenConversation, func(conn *ws.Connection, msg interface{}) {
		oc, ok := msg.(protocol.OpenConversationMsg)
		if !ok {
			return
		}
		userID := conn.UserID
		connID := conn.ID

		// The subscription is owned by this connection, so a close from
		// another tab of the same user cannot silence it.
		err := service.OpenRoom(connID, userID, oc.PeerID, func(ev *pairroom.Event) {
			if ev.SenderID == userID {
				return // don't echo to sender
			}
			data, err := protocol.NewServerMessage(protocol.TypeMessageNew, protocol.MessageNewMsg{
				Message: chat.HistoryEntry{Message: ev.Message},
				Via:     "broadcast",
			})
			if err != nil {
				log.Printf("[pair] build broadcast: %v", err)
				return
			}
			if err := server.SendMessage(connID, data); err != nil {
				log.Printf("[pair] deliver to conn=%s: %v", connID, err)
			}
		})
		if err != nil {
			log.Printf("[open_conversation] user=%s peer=%s: %v", userID, oc.PeerID, err)
			dispatcher.SendError(conn, "room_failed", "could not open conversation")
		}
	})

	// -----------------------------------------------------------------------
	// close_conversation — leave the pair broadcast room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeCloseConversation, func(conn *ws.Connection, msg interface{}) {
		cc, ok := msg.(protocol.CloseConversationMsg)
		if !ok {
			return
		}
		service.CloseRoom(conn.ID, conn.UserID, cc.PeerID)
	})

	// -----------------------------------------------------------------------
	// attach_request — mint a presigned upload ticket
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeAttachRequest, func(conn *ws.Connection, msg interface{}) {
		ar, ok := msg.(protocol.AttachRequestMsg)
		if !ok {
			return
		}
		ticket, err := service.AttachmentTicket(context.Background(), conn.UserID, ar.Filename)
		if err != nil {
			log.Printf("[attach_request] user=%s: %v", conn.UserID, err)
			dispatcher.SendError(conn, "media_unavailable", "attachment upload is not available")
			return
		}
		send(conn, protocol.TypeAttachTicket, protocol.AttachTicketMsg{
			ObjectKey: ticket.ObjectKey,
			UploadURL: ticket.UploadURL,
			ExpiresAt: ticket.ExpiresAt,
		})
	})

	// -----------------------------------------------------------------------
	// set_status — update the presence status message
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSetStatus, func(conn *ws.Connection, msg interface{}) {
		ss, ok := msg.(protocol.SetStatusMsg)
		if !ok {
			return
		}
		if err := service.SetStatusMessage(context.Background(), conn.UserID, ss.StatusMessage); err != nil {
			log.Printf("[set_status] user=%s: %v", conn.UserID, err)
			dispatcher.SendError(conn, "status_failed", "status message could not be saved")
		}
	})

	// -----------------------------------------------------------------------
	// update_profile — upsert the sender's directory entry
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeUpdateProfile, func(conn *ws.Connection, msg interface{}) {
		up, ok := msg.(protocol.UpdateProfileMsg)
		if !ok {
			return
		}
		if up.Name == "" {
			dispatcher.SendError(conn, "invalid_profile", "name is required")
			return
		}
		p := &directory.Profile{
			UserID:   conn.UserID,
			Name:     up.Name,
			Avatar:   up.Avatar,
			Headline: up.Headline,
		}
		if err := service.UpdateProfile(context.Background(), p); err != nil {
			log.Printf("[update_profile] user=%s: %v", conn.UserID, err)
			dispatcher.SendError(conn, "profile_failed", "profile could not be saved")
		}
	})

	server = ws.NewServer(config, verifier, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	// openFeeds registers the connection's change-feed subscriptions. Each
	// connection is its own consumer, so multi-device users get independent
	// delivery and teardown.
	openFeeds := func(conn *ws.Connection) {
		consumer := conn.ID
		userID := conn.UserID

		deliver := func(msgType string, payload interface{}) {
			data, err := protocol.NewServerMessage(msgType, payload)
			if err != nil {
				log.Printf("[feed-sub] build %s: %v", msgType, err)
				return
			}
			if err := server.SendMessage(consumer, data); err != nil {
				log.Printf("[feed-sub] deliver %s to conn=%s: %v", msgType, consumer, err)
			}
		}

		if _, err := changeFeed.SubscribeMessageInserts(consumer, userID, func(ev *feed.MessageEvent) {
			deliver(protocol.TypeMessageNew, protocol.MessageNewMsg{
				Message:      chat.HistoryEntry{Message: ev.Message},
				SenderName:   ev.SenderName,
				SenderAvatar: ev.SenderAvatar,
				Via:          "feed",
			})
		}); err != nil {
			log.Printf("[feed-sub] inserts user=%s: %v", userID, err)
		}

		if _, err := changeFeed.SubscribeMessageUpdates(consumer, userID, func(ev *feed.MessageEvent) {
			deliver(protocol.TypeMessageUpdate, protocol.MessageUpdateMsg{
				MessageID:  ev.Message.ID,
				SenderID:   ev.Message.SenderID,
				ReceiverID: ev.Message.ReceiverID,
				Status:     ev.Message.Status,
			})
		}); err != nil {
			log.Printf("[feed-sub] updates user=%s: %v", userID, err)
		}

		if _, err := changeFeed.SubscribeTyping(consumer, userID, func(ev *feed.TypingEvent) {
			deliver(protocol.TypeTypingState, protocol.TypingStateMsg{
				UserID:   ev.UserID,
				IsTyping: ev.IsTyping,
			})
		}); err != nil {
			log.Printf("[feed-sub] typing user=%s: %v", userID, err)
		}

		if _, err := changeFeed.SubscribeStatus(consumer, func(ev *feed.StatusEvent) {
			if ev.UserID == userID {
				return // own presence changes are implicit
			}
			deliver(protocol.TypeStatusChange, protocol.StatusChangeMsg{
				UserID:        ev.UserID,
				IsOnline:      ev.IsOnline,
				LastSeen:      ev.LastSeen,
				StatusMessage: ev.StatusMessage,
			})
		}); err != nil {
			log.Printf("[feed-sub] status user=%s: %v", userID, err)
		}

		if _, err := changeFeed.SubscribeProfiles(consumer, func(ev *feed.ProfileEvent) {
			deliver(protocol.TypeProfileChange, protocol.ProfileChangeMsg{
				UserID: ev.UserID,
				Name:   ev.Name,
				Avatar: ev.Avatar,
			})
		}); err != nil {
			log.Printf("[feed-sub] profiles user=%s: %v", userID, err)
		}
	}

	server.SetOnConnect(func(conn *ws.Connection, firstOfUser bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if allowed, _ := limiter.Allow(ctx, conn.UserID, ratelimit.RuleConnect); !allowed {
			log.Printf("[connect] rate limited user=%s", conn.UserID)
			server.RemoveConnection(conn)
			return
		}

		if firstOfUser {
			if err := service.Connect(ctx, conn.UserID); err != nil {
				log.Printf("[connect] user=%s: %v", conn.UserID, err)
			}
		}
		openFeeds(conn)

		data, err := protocol.NewServerMessage(protocol.TypeReady, protocol.ReadyMsg{UserID: conn.UserID})
		if err == nil {
			if err := conn.WriteMessage(data); err != nil {
				log.Printf("[connect] ready to conn=%s: %v", conn.ID, err)
			}
		}
	})

	server.SetOnDisconnect(func(conn *ws.Connection, lastOfUser bool) {
		changeFeed.CloseConsumer(conn.ID)
		service.CloseRooms(conn.ID)

		if lastOfUser {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			service.Disconnect(ctx, conn.UserID)
		}
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		natsClient.Close()
		if notifier != nil {
			if err := notifier.Close(); err != nil {
				log.Printf("notifier close error: %v", err)
			}
		}
		if err := rdb.Close(); err != nil {
			log.Printf("redis close error: %v", err)
		}
		if err := db.Close(); err != nil {
			log.Printf("postgres close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
