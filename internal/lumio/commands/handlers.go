package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Lumio/common/spec/envelope"
	"github.com/bdobrica/Lumio/internal/lumio/calendar"
	"github.com/bdobrica/Lumio/internal/lumio/ledger"
	"github.com/bdobrica/Lumio/internal/lumio/nlp"
	"github.com/bdobrica/Lumio/internal/lumio/observability"
	"github.com/bdobrica/Lumio/internal/lumio/reminders"
)

// Fixed replies.
const (
	StartMessage = "👋 Lumio 全能型上線！"
	HelpMessage  = "📖 **指令列表**\n" +
		"/add <內容> 新增行程\n" +
		"/delete <關鍵字> 刪除行程\n" +
		"/update <關鍵字> 改成 <內容> 修改行程\n" +
		"/today 今日行程\n" +
		"/week 一週行程\n" +
		"/spend <金額> <項目> [備註] 記帳\n" +
		"/report 本月報表\n" +
		"/stock <代號> 股價\n" +
		"/weather [地點] 天氣\n" +
		"/s <關鍵字> 搜尋\n" +
		"/remind <內容> 設定提醒\n" +
		"/todo [事項] 待辦清單\n" +
		"/done <編號> 完成待辦\n" +
		"或直接用自然語言跟我說話 🙂"

	CalendarMissingMessage = "❌ 未設定 Google Calendar"
	LedgerMissingMessage   = "❌ 未設定 Google Sheets"
	RemindUnsupported      = "⚠️ LINE 暫不支援主動提醒，請改用 Telegram"

	addFailed     = "❌ 建立失敗，請稍後再試"
	listFailed    = "❌ 讀取失敗"
	deleteFailed  = "❌ 刪除失敗"
	updateFailed  = "❌ 更新失敗"
	reportFailed  = "❌ 報表失敗"
	remindFailed  = "❌ 提醒設定失敗"
	todoFailed    = "❌ 待辦操作失敗"
	todoEmpty     = "📝 目前沒有待辦事項"
	doneUsage     = "格式: /done 1"
	remindUsage   = "格式: /remind 明天早上八點吃藥"
	queryRequired = "請輸入要查找的行程"
)

// Extractor turns free text into calendar events, reminders and patches.
type Extractor interface {
	Extract(ctx context.Context, text string, ref time.Time) (nlp.ExtractedEvent, error)
	ExtractReminder(ctx context.Context, text string, ref time.Time) (nlp.ExtractedReminder, error)
	ExtractPatch(ctx context.Context, instruction string, current nlp.ExtractedEvent, ref time.Time) (nlp.EventPatch, error)
}

// ReminderStore persists reminders and todos.
type ReminderStore interface {
	Create(ctx context.Context, msg envelope.InboundMessage, task string, at time.Time) (reminders.Reminder, error)
	AddTodo(ctx context.Context, userID, task string) (reminders.Todo, error)
	OpenTodos(ctx context.Context, userID string) ([]reminders.Todo, error)
	CompleteTodo(ctx context.Context, userID string, n int) (reminders.Todo, error)
}

// StockService reports a quote for a symbol.
type StockService interface {
	Report(ctx context.Context, symbol string) string
}

// WeatherService reports current conditions for a location.
type WeatherService interface {
	Current(ctx context.Context, location string) string
}

// SearchService answers a web search query.
type SearchService interface {
	Answer(ctx context.Context, query string) string
}

// ChatService produces a conversational reply.
type ChatService interface {
	Reply(ctx context.Context, text string) string
}

// Handlers holds the collaborators the command handlers call. A nil
// Calendar or Ledger means the feature is not configured.
type Handlers struct {
	Calendar  calendar.Service
	Ledger    ledger.Ledger
	Extractor Extractor
	Reminders ReminderStore
	Stocks    StockService
	Forecast  WeatherService
	WebSearch SearchService
	Responder ChatService

	// Location is used for reference times and rendering.
	Location *time.Location
	// Now defaults to time.Now.
	Now func() time.Time
}

func (h *Handlers) now() time.Time {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	return now().In(h.loc())
}

func (h *Handlers) loc() *time.Location {
	if h.Location == nil {
		return time.Local
	}
	return h.Location
}

// failure maps err to the reply shown to the user. Extraction and lookup
// errors carry their own text; anything else gets fallback.
func failure(ctx context.Context, op string, err error, fallback string) string {
	var xerr *nlp.ExtractionError
	if errors.As(err, &xerr) {
		observability.WithTrace(ctx).Info("extraction failed", "op", op, "err", err)
		return xerr.UserMessage()
	}
	var nf *calendar.NotFoundError
	if errors.As(err, &nf) {
		observability.WithTrace(ctx).Info("no matching event", "op", op, "query", nf.Query)
		return nf.UserMessage()
	}
	observability.WithTrace(ctx).Error("handler failed", "op", op, "err", err)
	return fallback
}

// AddEvent extracts an event from text and inserts it.
func (h *Handlers) AddEvent(ctx context.Context, text string) string {
	if h.Calendar == nil {
		return CalendarMissingMessage
	}
	ev, err := h.Extractor.Extract(ctx, text, h.now())
	if err != nil {
		return failure(ctx, "add_event", err, addFailed)
	}
	created, err := h.Calendar.Insert(ctx, ev)
	if err != nil {
		return failure(ctx, "add_event", err, addFailed)
	}
	return fmt.Sprintf("✅ 已建立: %s (%s)", created.Summary, calendar.Stamp(created.Start, h.loc()))
}

// DeleteEvent removes the upcoming event query refers to.
func (h *Handlers) DeleteEvent(ctx context.Context, query string) string {
	if h.Calendar == nil {
		return CalendarMissingMessage
	}
	if strings.TrimSpace(query) == "" {
		return queryRequired
	}
	ev, err := calendar.Find(ctx, h.Calendar, query, h.now())
	if err != nil {
		return failure(ctx, "delete_event", err, deleteFailed)
	}
	if err := h.Calendar.Delete(ctx, ev.ID); err != nil {
		return failure(ctx, "delete_event", err, deleteFailed)
	}
	return "🗑️ 已刪除: " + ev.Summary
}

// UpdateEvent locates the event query refers to and applies the change
// described by instruction.
func (h *Handlers) UpdateEvent(ctx context.Context, query, instruction string) string {
	if h.Calendar == nil {
		return CalendarMissingMessage
	}
	if strings.TrimSpace(query) == "" {
		return queryRequired
	}
	now := h.now()
	ev, err := calendar.Find(ctx, h.Calendar, query, now)
	if err != nil {
		return failure(ctx, "update_event", err, updateFailed)
	}

	current := nlp.ExtractedEvent{
		Summary:         ev.Summary,
		Start:           ev.Start,
		DurationMinutes: int(ev.End.Sub(ev.Start) / time.Minute),
	}
	if current.DurationMinutes <= 0 {
		current.DurationMinutes = nlp.DefaultDurationMinutes
	}
	patch, err := h.Extractor.ExtractPatch(ctx, instruction, current, now)
	if err != nil {
		return failure(ctx, "update_event", err, updateFailed)
	}
	updated, err := h.Calendar.Update(ctx, ev.ID, patch.Apply(current))
	if err != nil {
		return failure(ctx, "update_event", err, updateFailed)
	}
	return fmt.Sprintf("✏️ 已更新: %s (%s)", updated.Summary, calendar.Stamp(updated.Start, h.loc()))
}

// ListEvents lists events starting within the next days days.
func (h *Handlers) ListEvents(ctx context.Context, days int) string {
	if h.Calendar == nil {
		return CalendarMissingMessage
	}
	now := h.now()
	events, err := h.Calendar.List(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return failure(ctx, "list_events", err, listFailed)
	}
	return calendar.FormatListing(events, days, h.loc())
}

// SpendCommand handles /spend <amount> <category> [note...].
func (h *Handlers) SpendCommand(ctx context.Context, args []string) string {
	entry, err := ledger.ParseSpendCommand(args, h.now())
	if err != nil {
		return ledger.SpendUsage
	}
	return h.appendSpend(ctx, entry)
}

// SpendText handles a classified expense. original becomes the note.
func (h *Handlers) SpendText(ctx context.Context, args, original string) string {
	entry, err := ledger.ParseSpendArgs(args, original, h.now())
	if err != nil {
		return ledger.SpendFailedHint
	}
	return h.appendSpend(ctx, entry)
}

func (h *Handlers) appendSpend(ctx context.Context, entry ledger.SpendEntry) string {
	if h.Ledger == nil {
		return LedgerMissingMessage
	}
	if err := h.Ledger.Append(ctx, entry); err != nil {
		observability.WithTrace(ctx).Error("ledger append failed", "err", err)
		return ledger.SpendFailedHint
	}
	return entry.Confirmation()
}

// Report summarises this month's expenses.
func (h *Handlers) Report(ctx context.Context) string {
	if h.Ledger == nil {
		return LedgerMissingMessage
	}
	records, err := h.Ledger.Records(ctx)
	if err != nil {
		return failure(ctx, "report", err, reportFailed)
	}
	return ledger.MonthlyReport(records, h.now()).String()
}

func (h *Handlers) Stock(ctx context.Context, symbol string) string {
	return h.Stocks.Report(ctx, strings.TrimSpace(symbol))
}

func (h *Handlers) Weather(ctx context.Context, location string) string {
	return h.Forecast.Current(ctx, strings.TrimSpace(location))
}

func (h *Handlers) Search(ctx context.Context, query string) string {
	return h.WebSearch.Answer(ctx, strings.TrimSpace(query))
}

func (h *Handlers) Chat(ctx context.Context, text string) string {
	return h.Responder.Reply(ctx, text)
}

// Remind stores a reminder extracted from text. Platforms that cannot push
// messages are refused before anything is stored.
func (h *Handlers) Remind(ctx context.Context, msg envelope.InboundMessage, text string) string {
	if !msg.Platform.SupportsProactive() {
		return RemindUnsupported
	}
	if strings.TrimSpace(text) == "" {
		return remindUsage
	}
	extracted, err := h.Extractor.ExtractReminder(ctx, text, h.now())
	if err != nil {
		return failure(ctx, "remind", err, remindFailed)
	}
	r, err := h.Reminders.Create(ctx, msg, extracted.Task, extracted.RemindAt)
	if err != nil {
		return failure(ctx, "remind", err, remindFailed)
	}
	observability.WithTrace(ctx).Info("reminder scheduled",
		slog.String("reminder_id", r.ID.String()),
		slog.Time("remind_at", r.RemindAt))
	return fmt.Sprintf("⏰ 已設定提醒: %s (%s)", r.Task, calendar.Stamp(r.RemindAt, h.loc()))
}

// Todo lists the sender's open todos, or adds task when it is not empty.
func (h *Handlers) Todo(ctx context.Context, msg envelope.InboundMessage, task string) string {
	task = strings.TrimSpace(task)
	if task != "" {
		t, err := h.Reminders.AddTodo(ctx, msg.UserID, task)
		if err != nil {
			return failure(ctx, "todo", err, todoFailed)
		}
		return "📝 已新增待辦: " + t.Task
	}

	open, err := h.Reminders.OpenTodos(ctx, msg.UserID)
	if err != nil {
		return failure(ctx, "todo", err, todoFailed)
	}
	if len(open) == 0 {
		return todoEmpty
	}
	var b strings.Builder
	b.WriteString("📝 待辦事項:")
	for i, t := range open {
		fmt.Fprintf(&b, "\n%d. %s", i+1, t.Task)
	}
	return b.String()
}

// Done completes the n-th open todo.
func (h *Handlers) Done(ctx context.Context, msg envelope.InboundMessage, arg string) string {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return doneUsage
	}
	t, err := h.Reminders.CompleteTodo(ctx, msg.UserID, n)
	if errors.Is(err, reminders.ErrNotFound) {
		return fmt.Sprintf("❌ 找不到第 %d 項待辦", n)
	}
	if err != nil {
		return failure(ctx, "done", err, todoFailed)
	}
	return "✅ 已完成: " + t.Task
}
