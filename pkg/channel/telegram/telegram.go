package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"oneclick/pkg/bus"
	"oneclick/pkg/channel"
	"oneclick/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

const (
	chatQueueSize   = 16
	chatIdleTimeout = 5 * time.Minute
)

// messenger is the slice of the Bot API the adapter needs.
type messenger interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
}

// Adapter bridges Telegram chats into router sessions. Each chat is one
// session: its lines are routed in order by a dedicated worker, and chats
// never wait on each other.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger

	idleTimeout time.Duration

	mu      sync.Mutex
	workers map[int64]*chatWorker
	wg      sync.WaitGroup
}

type chatWorker struct {
	chatID int64
	queue  chan bus.InboundMessage
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:         cfg,
		allowFrom:   allowFromSet(cfg.AllowFrom),
		log:         log.With("component", "channel.telegram"),
		idleTimeout: chatIdleTimeout,
		workers:     make(map[int64]*chatWorker),
	}, nil
}

// Name returns the channel identifier used in events and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and routes every chat through handler.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")
	return a.serve(ctx, bot, updates, handler)
}

func (a *Adapter) serve(ctx context.Context, bot messenger, updates <-chan telego.Update, handler channel.Handler) error {
	defer a.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			inbound, ok := a.inboundFrom(update)
			if !ok {
				continue
			}
			a.log.Info("Received message", "chat_id", inbound.ChatID, "sender_id", inbound.SenderID, "session_key", inbound.SessionKey, "content", previewText(inbound.Content))

			a.enqueue(ctx, bot, update.Message.Chat.ID, inbound, handler)
		}
	}
}

// inboundFrom converts an update into an inbound line, dropping updates that
// carry no text or come from senders outside the allow list.
func (a *Adapter) inboundFrom(update telego.Update) (bus.InboundMessage, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundMessage{}, false
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return bus.InboundMessage{}, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.InboundMessage{}, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundMessage{}, false
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	return bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID,
		ChatID:     chatID,
		SessionKey: sessionKey(chatID),
		Content:    content,
		Metadata: map[string]string{
			"update_id": strconv.Itoa(update.UpdateID),
		},
	}, true
}

// enqueue hands inbound to the chat's worker, starting one when the chat has
// none. A full queue drops the line rather than stall polling for every chat.
func (a *Adapter) enqueue(ctx context.Context, bot messenger, chatID int64, inbound bus.InboundMessage, handler channel.Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()

	worker, ok := a.workers[chatID]
	if !ok {
		worker = &chatWorker{chatID: chatID, queue: make(chan bus.InboundMessage, chatQueueSize)}
		a.workers[chatID] = worker
		a.wg.Add(1)
		go a.runWorker(ctx, bot, worker, handler)
	}

	select {
	case worker.queue <- inbound:
	default:
		a.log.Warn("Dropping message for busy chat", "chat_id", inbound.ChatID, "session_key", inbound.SessionKey)
	}
}

func (a *Adapter) runWorker(ctx context.Context, bot messenger, worker *chatWorker, handler channel.Handler) {
	defer a.wg.Done()

	idle := time.NewTimer(a.idleTimeout)
	defer idle.Stop()

	sender := a.chatSender(bot, worker.chatID)
	for {
		select {
		case <-ctx.Done():
			return
		case inbound := <-worker.queue:
			a.process(ctx, bot, worker.chatID, inbound, sender, handler)
			idle.Reset(a.idleTimeout)
		case <-idle.C:
			if a.retire(worker) {
				return
			}
			idle.Reset(a.idleTimeout)
		}
	}
}

// retire removes an idle worker unless a line arrived while the timer fired.
func (a *Adapter) retire(worker *chatWorker) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(worker.queue) > 0 {
		return false
	}
	delete(a.workers, worker.chatID)
	return true
}

func (a *Adapter) process(ctx context.Context, bot messenger, chatID int64, inbound bus.InboundMessage, sender channel.Sender, handler channel.Handler) {
	stopTyping := a.startTypingIndicator(ctx, bot, chatID)
	err := handler(ctx, inbound, sender)
	stopTyping()

	if err != nil && !channel.IsPeerDisconnected(err) {
		a.log.Error("Failed to process inbound message", "session_key", inbound.SessionKey, "error", err)
	}
}

// chatSender delivers replies to one chat. Any Bot API failure ends the
// current route as a disconnect.
func (a *Adapter) chatSender(bot messenger, chatID int64) channel.Sender {
	return channel.SenderFunc(func(ctx context.Context, text string) error {
		a.log.Debug("Sending message", "chat_id", chatID, "content", previewText(text))
		if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
			return channel.NewError(channel.ErrorPeerDisconnected, err)
		}
		return nil
	})
}

// activeChats reports how many chats currently own a worker.
func (a *Adapter) activeChats() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.workers)
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sessionKey maps one Telegram chat to one session.
func sessionKey(chatID string) string {
	return "telegram:" + strings.TrimSpace(chatID)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}

// startTypingIndicator sends a typing action and refreshes it until the
// returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, bot messenger, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
