package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/spreadbot/chain"
	"github.com/web3guy0/spreadbot/core"
	"github.com/web3guy0/spreadbot/storage"
	"github.com/web3guy0/spreadbot/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - Spread alerts & scanner control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   🎯 Opportunity alerts with full cost breakdown
//   🔄 Rescan button on every alert
//   🎛️ Control commands (/status, /scan, /pause, /resume, /stats, /reset)
//
// Monitoring only: no message ever triggers a transaction.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	rescanCallback = "rescan"
	statusTimeout  = 5 * time.Second
)

// botAPI is the subset of *tgbotapi.BotAPI the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Controller is the engine surface exposed to chat commands
type Controller interface {
	ScanOnce(ctx context.Context) (*types.ScanSummary, error)
	Pause()
	Resume()
	IsPaused() bool
	Stats() types.ScanStats
	LastSummary() *types.ScanSummary
}

// HistoryProvider exposes stored totals
type HistoryProvider interface {
	Totals() (storage.Totals, error)
}

// HealthProvider reports RPC endpoint state for /status (chain.Pool)
type HealthProvider interface {
	Health() []chain.EndpointStatus
	BlockNumber(ctx context.Context) (uint64, error)
}

// CooldownResetter clears alert cooldowns (risk.Gate)
type CooldownResetter interface {
	Reset() int
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     botAPI
	chatID  int64
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	ctrl     Controller
	history  HistoryProvider
	health   HealthProvider
	cooldown CooldownResetter
	info     StartupInfo
}

// NewTelegramBot connects to the Bot API
func NewTelegramBot(token string, chatID int64) (*TelegramBot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_CHAT_ID not set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return newTelegramBot(api, chatID), nil
}

func newTelegramBot(api botAPI, chatID int64) *TelegramBot {
	return &TelegramBot{
		api:    api,
		chatID: chatID,
	}
}

// SetController wires chat commands to the engine
func (b *TelegramBot) SetController(ctrl Controller) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctrl = ctrl
}

// SetHistory enables all-time totals in /stats
func (b *TelegramBot) SetHistory(h HistoryProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = h
}

// SetHealth enables RPC health in /status
func (b *TelegramBot) SetHealth(h HealthProvider) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.health = h
}

// SetCooldowns enables /reset
func (b *TelegramBot) SetCooldowns(c CooldownResetter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cooldown = c
}

// Start begins listening for commands
func (b *TelegramBot) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	go b.commandLoop(ctx)
	log.Info().Msg("📱 Telegram bot started")
}

// Stop stops the bot
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	done := b.doneCh
	b.mu.Unlock()

	b.api.StopReceivingUpdates()
	<-done
	log.Info().Msg("Telegram bot stopped")
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyStartup sends startup notification
func (b *TelegramBot) NotifyStartup(info StartupInfo) {
	b.mu.Lock()
	b.info = info
	b.mu.Unlock()

	triangles := ""
	if len(info.Triangles) > 0 {
		triangles = "\n🔺 Triangles: " + esc(strings.Join(info.Triangles, ", "))
	}

	msg := fmt.Sprintf(`🚀 *SPREADBOT STARTED*
%s

🔗 Network: *%s*
🪙 Pairs: %s%s
🏦 Sources: %s
⏱️ Scanning every *%s*
💵 Flash loan: *$%s* | Min NET: *$%s*

First scan starting now. Use /help for commands`,
		divider,
		esc(info.Network),
		esc(strings.Join(info.Pairs, ", ")),
		triangles,
		esc(strings.Join(info.Sources, ", ")),
		info.Interval,
		usd(info.FlashLoanUSD),
		usd(info.MinProfitUSD),
	)

	if _, err := b.sendMarkdown(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send startup message")
	}
}

// NotifyScanSummary sends the header for a batch of alerts
func (b *TelegramBot) NotifyScanSummary(summary *types.ScanSummary) error {
	_, err := b.sendMarkdown(FormatSummary(summary))
	return err
}

// NotifyOpportunity sends an alert with a rescan button and returns its message id
func (b *TelegramBot) NotifyOpportunity(opp *types.Opportunity) (int, error) {
	msg := tgbotapi.NewMessage(b.chatID, FormatOpportunity(opp))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Rescan", rescanCallback),
		),
	)

	sent, err := b.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send alert: %w", err)
	}
	return sent.MessageID, nil
}

// NotifyError sends an error alert
func (b *TelegramBot) NotifyError(scope string, err error) {
	msg := fmt.Sprintf("⚠️ *ERROR* (%s)\n\n`%s`", esc(scope), strings.ReplaceAll(err.Error(), "`", "'"))
	if _, sendErr := b.sendMarkdown(msg); sendErr != nil {
		log.Error().Err(sendErr).Msg("Failed to send error alert")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop(ctx context.Context) {
	defer close(b.doneCh)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stopCh:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *TelegramBot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cq := update.CallbackQuery; cq != nil {
		// Only respond to authorized chat
		if cq.Message == nil || cq.Message.Chat == nil || cq.Message.Chat.ID != b.chatID {
			return
		}
		b.handleCallback(ctx, cq)
		return
	}

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	if update.Message.Chat == nil || update.Message.Chat.ID != b.chatID {
		return
	}
	b.handleCommand(ctx, update.Message)
}

func (b *TelegramBot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Data != rescanCallback {
		if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "Unknown action")); err != nil {
			log.Debug().Err(err).Msg("Failed to answer callback")
		}
		return
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cq.ID, "🔍 Rescanning...")); err != nil {
		log.Debug().Err(err).Msg("Failed to answer callback")
	}
	b.cmdScan(ctx)
}

func (b *TelegramBot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := strings.ToLower(msg.Command())

	switch cmd {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus(ctx)
	case "scan":
		b.cmdScan(ctx)
	case "top":
		b.cmdTop()
	case "stats":
		b.cmdStats()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "reset":
		b.cmdReset()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	msg := fmt.Sprintf(`🤖 *SPREADBOT COMMANDS*
%s

📊 /status - Bot status
🔍 /scan - Scan now
🏆 /top - Opportunities from the last scan
📈 /stats - Scanner statistics
⏸️ /pause - Pause scheduled scans
▶️ /resume - Resume scheduled scans
🔄 /reset - Clear alert cooldowns
🏓 /ping - Test connection

%s
Monitoring only. Nothing is executed.`, divider, divider)

	b.sendMarkdownQuiet(msg)
}

func (b *TelegramBot) cmdStatus(ctx context.Context) {
	ctrl, info := b.controller()
	if ctrl == nil {
		b.send("❌ Status not available")
		return
	}

	b.mu.RLock()
	health := b.health
	b.mu.RUnlock()

	var rpc RPCStatus
	if health != nil {
		rpc.Endpoints = health.Health()
		ctx, cancel := context.WithTimeout(ctx, statusTimeout)
		rpc.Block, rpc.BlockErr = health.BlockNumber(ctx)
		cancel()
	}
	b.sendMarkdownQuiet(FormatStatus(ctrl.Stats(), info, rpc))
}

func (b *TelegramBot) cmdScan(ctx context.Context) {
	ctrl, _ := b.controller()
	if ctrl == nil {
		b.send("❌ Scanner not available")
		return
	}

	b.send("🔍 Scanning...")
	summary, err := ctrl.ScanOnce(ctx)
	if errors.Is(err, core.ErrScanInProgress) {
		b.send("⏳ A scan is already running")
		return
	}
	if err != nil {
		b.sendMarkdownQuiet(fmt.Sprintf("❌ Scan failed\n\n`%s`", strings.ReplaceAll(err.Error(), "`", "'")))
		return
	}
	b.sendMarkdownQuiet(FormatSummary(summary))
}

func (b *TelegramBot) cmdTop() {
	ctrl, _ := b.controller()
	if ctrl == nil {
		b.send("❌ Scanner not available")
		return
	}

	last := ctrl.LastSummary()
	if last == nil {
		b.send("📭 No completed scan yet")
		return
	}
	if len(last.Top) == 0 {
		b.sendMarkdownQuiet(FormatSummary(last))
		return
	}
	for _, opp := range last.Top {
		b.sendMarkdownQuiet(FormatOpportunity(opp))
	}
}

func (b *TelegramBot) cmdStats() {
	ctrl, _ := b.controller()
	if ctrl == nil {
		b.send("❌ Stats not available")
		return
	}

	b.mu.RLock()
	history := b.history
	b.mu.RUnlock()

	var totals *storage.Totals
	if history != nil {
		if t, err := history.Totals(); err == nil {
			totals = &t
		} else {
			log.Warn().Err(err).Msg("Failed to load totals")
		}
	}

	b.sendMarkdownQuiet(FormatStats(ctrl.Stats(), totals))
}

func (b *TelegramBot) cmdPause() {
	ctrl, _ := b.controller()
	if ctrl != nil {
		ctrl.Pause()
	}
	b.send("⏸️ Scanning paused")
	log.Info().Msg("Scanning paused via Telegram")
}

func (b *TelegramBot) cmdReset() {
	b.mu.RLock()
	cooldown := b.cooldown
	b.mu.RUnlock()

	if cooldown == nil {
		b.send("❌ Cooldowns not available")
		return
	}
	n := cooldown.Reset()
	b.send(fmt.Sprintf("🔄 Cleared %d alert cooldowns", n))
	log.Info().Int("routes", n).Msg("Alert cooldowns reset via Telegram")
}

func (b *TelegramBot) cmdResume() {
	ctrl, _ := b.controller()
	if ctrl != nil {
		ctrl.Resume()
	}
	b.send("▶️ Scanning resumed")
	log.Info().Msg("Scanning resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) controller() (Controller, StartupInfo) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ctrl, b.info
}

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	return b.api.Send(msg)
}

func (b *TelegramBot) sendMarkdownQuiet(text string) {
	if _, err := b.sendMarkdown(text); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}
