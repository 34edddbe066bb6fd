// Package botui routes Telegram commands and inline-button callbacks to
// the subscription engine.
package botui

import (
	"context"
	"strconv"
	"strings"
	"time"

	"vestbot/internal/category"
	"vestbot/internal/subscribe"
	kit "vestbot/internal/transport"
	logx "vestbot/pkg/logx"
	"vestbot/pkg/tgui"
)

const (
	callbackScope = "sub"
	actionToggle  = "toggle"
	handleTimeout = 15 * time.Second
)

type Router struct {
	adapter kit.Adapter
	engine  *subscribe.Engine
	catalog *category.Catalog
	log     logx.Logger
}

func New(adapter kit.Adapter, engine *subscribe.Engine, catalog *category.Catalog, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{adapter: adapter, engine: engine, catalog: catalog, log: log}
}

// Run consumes updates until ctx is done. Each update is handled with its
// own timeout so one stuck handler cannot stall the stream.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			hctx, cancel := context.WithTimeout(ctx, handleTimeout)
			r.handle(hctx, up)
			cancel()
		}
	}
}

func (r *Router) handle(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	}
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	cmd := commandToken(m.Text)
	if cmd == "" {
		return
	}
	to := kit.ChatTarget{ChatID: m.ChatID}
	identity := strconv.FormatInt(m.ChatID, 10)

	var err error
	switch cmd {
	case "start":
		_, err = r.adapter.SendText(ctx, to, welcomeText, nil)
	case "subscribe":
		err = r.sendKeyboard(ctx, to, identity)
	case "unsubscribe":
		if err = r.engine.Unsubscribe(ctx, identity); err == nil {
			_, err = r.adapter.SendText(ctx, to, "🔕 Вы отписались от рассылки новостей.", nil)
		}
	case "about":
		_, err = r.adapter.SendText(ctx, to, aboutText, nil)
	default:
		return
	}
	if err != nil {
		r.log.Warn("command handling failed",
			logx.String("command", cmd),
			logx.Int64("chat_id", m.ChatID),
			logx.Err(err),
		)
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	scope, action, payload := tgui.ParseData(cb.Data)
	if scope != callbackScope || action != actionToggle {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}

	identity := strconv.FormatInt(cb.ChatID, 10)
	cats, err := r.engine.Toggle(ctx, identity, payload)
	if err != nil {
		r.log.Warn("toggle failed",
			logx.String("identity", identity),
			logx.String("category", payload),
			logx.Err(err),
		)
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Не удалось изменить подписку, попробуйте позже")
		return
	}

	// Confirm the resulting state, then refresh the keyboard in place.
	answer := "Подписка отключена: " + r.catalog.Label(payload)
	if containsKey(cats, payload) {
		answer = "Подписка включена: " + r.catalog.Label(payload)
	}
	if err := r.adapter.AnswerCallback(ctx, cb.ID, answer); err != nil {
		r.log.Debug("callback answer failed", logx.Err(err))
	}

	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	opt := &kit.SendOptions{ReplyMarkupAdapter: r.keyboard(cats).Markup()}
	if err := r.adapter.EditText(ctx, ref, keyboardText(cats, r.catalog), opt); err != nil {
		r.log.Debug("keyboard refresh failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
	}
}

func (r *Router) sendKeyboard(ctx context.Context, to kit.ChatTarget, identity string) error {
	cats, err := r.engine.Subscriptions(ctx, identity)
	if err != nil {
		return err
	}
	opt := &kit.SendOptions{ReplyMarkupAdapter: r.keyboard(cats).Markup()}
	_, err = r.adapter.SendText(ctx, to, keyboardText(cats, r.catalog), opt)
	return err
}

// keyboard renders one button per concrete category plus the "all" row,
// marking active subscriptions.
func (r *Router) keyboard(active []string) *tgui.Inline {
	kb := tgui.NewInline()
	for _, e := range r.catalog.Entries() {
		kb.Row(tgui.Btn(buttonLabel(e.Label, containsKey(active, e.Key)), tgui.Data(callbackScope, actionToggle, e.Key)))
	}
	kb.Row(tgui.Btn(
		buttonLabel(r.catalog.Label(category.All), containsKey(active, category.All)),
		tgui.Data(callbackScope, actionToggle, category.All),
	))
	return kb
}

func buttonLabel(label string, active bool) string {
	if active {
		return "✅ " + label
	}
	return label
}

func keyboardText(active []string, cat *category.Catalog) string {
	if len(active) == 0 {
		return "Выберите категории новостей, которые хотите получать:"
	}
	var labels []string
	for _, k := range active {
		if k == category.All {
			continue
		}
		labels = append(labels, cat.Label(k))
	}
	if containsKey(active, category.All) {
		return "Вы подписаны на все новости.\n\nНажмите на категорию, чтобы изменить подписку:"
	}
	return "Ваши подписки: " + strings.Join(labels, ", ") + "\n\nНажмите на категорию, чтобы изменить подписку:"
}

func containsKey(set []string, key string) bool {
	for _, v := range set {
		if v == key {
			return true
		}
	}
	return false
}

// commandToken extracts the bot command from a message ("/subscribe@bot x" -> "subscribe").
func commandToken(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	tok := strings.Fields(text)[0]
	tok = strings.TrimPrefix(tok, "/")
	if at := strings.IndexByte(tok, '@'); at >= 0 {
		tok = tok[:at]
	}
	return strings.ToLower(tok)
}

const welcomeText = "👋 Добро пожаловать в бота новостей города Нерехта!\n\n" +
	"Этот бот будет присылать вам уведомления о новых новостях с официального сайта администрации.\n\n" +
	"Доступные команды:\n" +
	"• /subscribe — выбрать категории новостей\n" +
	"• /unsubscribe — отписаться от уведомлений\n" +
	"• /about — информация о боте"

const aboutText = "📱 Бот новостей города Нерехта\n\n" +
	"Бот автоматически отслеживает новости на официальном сайте администрации города " +
	"и отправляет их подписчикам по выбранным категориям."
