package notify

import (
	"bytes"
	"context"
	"html/template"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/unlinked/internal/metrics"
	"github.com/hitoshi/unlinked/internal/model"
	"github.com/hitoshi/unlinked/internal/security"
)

const (
	defaultQueueSize     = 100
	defaultRatePerMinute = 30
	sendTimeout          = 30 * time.Second
)

var welcomeTemplate = template.Must(template.New("welcome").Parse(
	`<h1>Welcome to UnLinked, {{.Name}}!</h1>` +
		`<p>Your account has been created. Complete your profile so others can find you.</p>` +
		`<p><a href="{{.ProfileURL}}">View your profile</a></p>`))

// DispatcherConfig はDispatcherの設定。
type DispatcherConfig struct {
	QueueSize     int
	RatePerMinute int
	// ClientURL はメール内のプロフィールリンクの基点。
	ClientURL string
}

// Dispatcher はメールをキューに積み、単一のワーカーgoroutineから送信する。
// 送信はレートで間引き、失敗はログに記録するのみで呼び出し元には返さない。
type Dispatcher struct {
	mailer    Mailer
	sanitizer *security.EmailSanitizer
	limiter   *rate.Limiter
	queue     chan Message
	clientURL string
	metrics   metrics.Recorder
	wg        sync.WaitGroup
}

// NewDispatcher はDispatcherを生成する。Startを呼ぶまで送信は行わない。
func NewDispatcher(mailer Mailer, config DispatcherConfig, recorder metrics.Recorder) *Dispatcher {
	if config.QueueSize <= 0 {
		config.QueueSize = defaultQueueSize
	}
	if config.RatePerMinute <= 0 {
		config.RatePerMinute = defaultRatePerMinute
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Dispatcher{
		mailer:    mailer,
		sanitizer: security.NewEmailSanitizer(),
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RatePerMinute)), 1),
		queue:     make(chan Message, config.QueueSize),
		clientURL: strings.TrimRight(config.ClientURL, "/"),
		metrics:   recorder,
	}
}

// Start はワーカーgoroutineを起動する。ctxがキャンセルされると停止する。
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

// Wait はワーカーgoroutineの終了を待つ。
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(d.queue); n > 0 {
				slog.Warn("mail dispatcher stopped with pending messages", slog.Int("pending", n))
			}
			return
		case msg := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.send(ctx, msg)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, msg Message) {
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := d.mailer.Send(sendCtx, msg); err != nil {
		d.metrics.RecordWelcomeMail(metrics.ResultError)
		slog.Error("failed to send mail",
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.RecordWelcomeMail(metrics.ResultSuccess)
	slog.Info("mail sent", slog.String("subject", msg.Subject))
}

// NotifyWelcome はウェルカムメールをキューに積む。呼び出し元をブロックしない。
// キューが満杯の場合は破棄してログに記録する。
func (d *Dispatcher) NotifyWelcome(account *model.Account) {
	msg, err := d.welcomeMessage(account)
	if err != nil {
		d.metrics.RecordWelcomeMail(metrics.ResultError)
		slog.Error("failed to render welcome mail",
			slog.String("account_id", account.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case d.queue <- msg:
	default:
		d.metrics.RecordWelcomeMail(metrics.ResultDropped)
		slog.Warn("mail queue full, welcome mail dropped",
			slog.String("account_id", account.ID),
		)
	}
}

func (d *Dispatcher) welcomeMessage(account *model.Account) (Message, error) {
	name := account.Email
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}

	var buf bytes.Buffer
	err := welcomeTemplate.Execute(&buf, struct {
		Name       string
		ProfileURL string
	}{
		Name:       name,
		ProfileURL: d.clientURL + "/profile/" + account.ID,
	})
	if err != nil {
		return Message{}, err
	}

	html := d.sanitizer.SanitizeHTML(buf.String())
	return Message{
		To:       account.Email,
		Subject:  "Welcome to UnLinked",
		HTMLBody: html,
		TextBody: d.sanitizer.StripTags(html),
	}, nil
}
