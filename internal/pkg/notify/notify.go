package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/bucket"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/contxt"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/model"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/money"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/summary"
	"github.com/robeertm/shelly-energy-analyzer/internal/pkg/window"
)

var (
	ErrJob         = errors.New("scheduled job failed")
	ErrInvalidRule = errors.New("invalid alert rule")
)

const (
	keyDaily   = "daily_summary"
	keyMonthly = "monthly_summary"
)

type Summarizer interface {
	Summarize(ctx context.Context, deviceID string, spec window.Spec, width bucket.Width, ref time.Time) (model.DeviceSummary, error)
	SummarizeAll(ctx context.Context, spec window.Spec, width bucket.Width, ref time.Time) ([]model.DeviceSummary, error)
	Devices() []model.Device
}

// Sender delivers a notification. The chat transport lives outside this
// module; publisher.Publisher is the in-process implementation.
type Sender interface {
	Send(ctx context.Context, n model.Notification) error
}

type Config struct {
	DailyEnabled   bool              `env:"DAILY_ENABLED" envDefault:"false"`
	DailyAt        string            `env:"DAILY_AT" envDefault:"00:05"`
	MonthlyEnabled bool              `env:"MONTHLY_ENABLED" envDefault:"false"`
	MonthlyAt      string            `env:"MONTHLY_AT" envDefault:"00:10"`
	AlertInterval  time.Duration     `env:"ALERT_INTERVAL" envDefault:"5m"`
	Detail         model.DetailLevel `env:"DETAIL" envDefault:"detailed"`
	StateFile      string            `env:"STATE_FILE"`
	JobTimeout     time.Duration     `env:"JOB_TIMEOUT" envDefault:"1m"`
}

// AlertRule fires when a device uses more than MaxKWh within Window. Device
// "*" matches every configured device.
type AlertRule struct {
	ID      string  `yaml:"id"`
	Enabled bool    `yaml:"enabled"`
	Device  string  `yaml:"device"`
	Window  string  `yaml:"window"`
	MaxKWh  float64 `yaml:"max_kwh"`
	Message string  `yaml:"message"`

	spec window.Spec
}

func (r AlertRule) matches(deviceID string) bool {
	return r.Device == "*" || r.Device == "" || r.Device == deviceID
}

type Notifier struct {
	cfg     Config
	rules   []AlertRule
	engine  Summarizer
	sender  Sender
	state   *State
	loc     *time.Location
	logger  *zap.Logger
	now     func() time.Time
	errChan chan<- error
}

func New(cfg Config, rules []AlertRule, engine Summarizer, sender Sender, state *State, loc *time.Location, errChan chan<- error) (*Notifier, error) {
	parsed := make([]AlertRule, 0, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: missing id", ErrInvalidRule)
		}
		if r.MaxKWh <= 0 {
			return nil, fmt.Errorf("%w: %s: max_kwh must be positive", ErrInvalidRule, r.ID)
		}
		spec, err := window.ParseSpec(r.Window, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidRule, r.ID, err)
		}
		r.spec = spec
		parsed = append(parsed, r)
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = time.Minute
	}
	return &Notifier{
		cfg:     cfg,
		rules:   parsed,
		engine:  engine,
		sender:  sender,
		state:   state,
		loc:     loc,
		logger:  zap.L(),
		now:     time.Now,
		errChan: errChan,
	}, nil
}

// SendDailySummary sends the previous day's hourly summaries of all devices.
// Without force a day that was already reported is skipped.
func (n *Notifier) SendDailySummary(ctx context.Context, force bool) error {
	ref := n.now().In(n.loc)
	day := ref.AddDate(0, 0, -1)
	return n.sendSummary(ctx, keyDaily, day.Format("2006-01-02"), force, model.Notification{
		Kind:  model.KindDailySummary,
		Title: "Daily summary " + day.Format("02.01.2006"),
	}, window.PreviousDay(), bucket.Hour, ref)
}

// SendMonthlySummary sends the previous month's daily summaries.
func (n *Notifier) SendMonthlySummary(ctx context.Context, force bool) error {
	ref := n.now().In(n.loc)
	month := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, n.loc).AddDate(0, -1, 0)
	return n.sendSummary(ctx, keyMonthly, month.Format("2006-01"), force, model.Notification{
		Kind:  model.KindMonthlySummary,
		Title: "Monthly summary " + month.Format("01/2006"),
	}, window.PreviousMonth(), bucket.Day, ref)
}

func (n *Notifier) sendSummary(ctx context.Context, key, marker string, force bool, msg model.Notification, spec window.Spec, width bucket.Width, ref time.Time) error {
	if err := n.state.Claim(key, marker, force); err != nil {
		if errors.Is(err, ErrAlreadySent) {
			n.logger.Debug("summary already sent", zap.String("key", key), zap.String("marker", marker))
			return nil
		}
		return err
	}

	summaries, err := n.engine.SummarizeAll(ctx, spec, width, ref)
	if err != nil {
		n.state.Release(key)
		return err
	}
	msg.Summaries = summaries
	msg.At = ref
	msg.Text = n.text(msg.Title, summaries)

	if err := n.sender.Send(ctx, msg); err != nil {
		n.state.Release(key)
		return fmt.Errorf("send %s: %w", key, err)
	}
	if err := n.state.Commit(key); err != nil {
		n.logger.Error("failed to persist notification state", zap.String("key", key), zap.Error(err))
	}
	n.logger.Info("summary sent", zap.String("key", key), zap.String("marker", marker), zap.Int("devices", len(summaries)))
	return nil
}

func (n *Notifier) text(title string, summaries []model.DeviceSummary) string {
	parts := []string{title}
	for _, s := range summaries {
		parts = append(parts, summary.Text(s, summary.Options{Detail: n.cfg.Detail}))
	}
	return strings.Join(parts, "\n\n")
}

// CheckAlerts evaluates every enabled rule. Each rule fires at most once per
// device and local day.
func (n *Notifier) CheckAlerts(ctx context.Context) error {
	ref := n.now().In(n.loc)
	today := ref.Format("2006-01-02")

	var errs []error
	for _, rule := range lo.Filter(n.rules, func(r AlertRule, _ int) bool { return r.Enabled }) {
		devices := lo.Filter(n.engine.Devices(), func(d model.Device, _ int) bool {
			return rule.matches(d.Key)
		})
		for _, device := range devices {
			if err := n.checkRule(ctx, rule, device, ref, today); err != nil {
				n.logger.Error("alert check failed", zap.String("rule", rule.ID), zap.String("device", device.Key), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) checkRule(ctx context.Context, rule AlertRule, device model.Device, ref time.Time, today string) error {
	s, err := n.engine.Summarize(ctx, device.Key, rule.spec, bucket.Hour, ref)
	if err != nil {
		return err
	}
	if s.TotalKWh <= rule.MaxKWh {
		return nil
	}

	key := fmt.Sprintf("alert:%s:%s", rule.ID, device.Key)
	if err := n.state.Claim(key, today, false); err != nil {
		if errors.Is(err, ErrAlreadySent) || errors.Is(err, ErrInProgress) {
			return nil
		}
		return err
	}

	text := rule.Message
	if text == "" {
		text = fmt.Sprintf("%s used %s kWh in %s (limit %s kWh)",
			device.DisplayName(), money.Format(s.TotalKWh, 3), rule.spec, money.Format(rule.MaxKWh, 3))
	}
	err = n.sender.Send(ctx, model.Notification{
		Kind:      model.KindAlert,
		Title:     "Alert " + rule.ID,
		Text:      text,
		Summaries: []model.DeviceSummary{s},
		At:        ref,
	})
	if err != nil {
		n.state.Release(key)
		return err
	}
	n.logger.Info("alert sent", zap.String("rule", rule.ID), zap.String("device", device.Key), zap.Float64("total_kwh", s.TotalKWh))
	return n.state.Commit(key)
}

// Run schedules the enabled jobs and blocks until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	c := cron.New()
	tz := "CRON_TZ=" + n.loc.String()

	if n.cfg.DailyEnabled {
		h, m, err := parseClock(n.cfg.DailyAt)
		if err != nil {
			return err
		}
		if _, err := c.AddFunc(fmt.Sprintf("%s %d %d * * *", tz, m, h), n.job("daily summary", func(ctx context.Context) error {
			return n.SendDailySummary(ctx, false)
		})); err != nil {
			return err
		}
	}
	if n.cfg.MonthlyEnabled {
		h, m, err := parseClock(n.cfg.MonthlyAt)
		if err != nil {
			return err
		}
		if _, err := c.AddFunc(fmt.Sprintf("%s %d %d 1 * *", tz, m, h), n.job("monthly summary", func(ctx context.Context) error {
			return n.SendMonthlySummary(ctx, false)
		})); err != nil {
			return err
		}
	}
	if len(n.rules) > 0 && n.cfg.AlertInterval > 0 {
		if _, err := c.AddFunc(fmt.Sprintf("@every %s", n.cfg.AlertInterval), n.job("alerts", n.CheckAlerts)); err != nil {
			return err
		}
	}

	n.logger.Info("notification scheduler started", zap.Int("jobs", len(c.Entries())))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (n *Notifier) job(name string, fn func(ctx context.Context) error) func() {
	return func() {
		ctx, cancel := contxt.NewContext(context.Background(), n.cfg.JobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			n.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
			if n.errChan != nil {
				select {
				case n.errChan <- fmt.Errorf("%w: %s: %w", ErrJob, name, err):
				default:
				}
			}
		}
	}
}

func parseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}
