package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces alert counters in Redis.
const DefaultPrefix = "library:alerts"

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// AlertResult reports the counter state after an observation.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

type rule struct {
	threshold int64
	window    time.Duration
}

// rules is keyed by outcome, then by event; "*" matches any event.
var rules = map[string]map[string]rule{
	"rate_limited": {"*": {threshold: 20, window: time.Minute}},
	"fail":         {"auth.login": {threshold: 10, window: 5 * time.Minute}},
	"denied": {
		"*":            {threshold: 25, window: 5 * time.Minute},
		"books.delete": {threshold: 5, window: 5 * time.Minute},
	},
}

// AuditAlerter counts security events per client IP in fixed windows
// and reports when a rule's threshold is reached.
type AuditAlerter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewAuditAlerter returns nil when addr is empty.
func NewAuditAlerter(addr, password, prefix string) *AuditAlerter {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &AuditAlerter{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		now:    time.Now,
	}
}

// Observe records one event. Events with no matching rule are ignored.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	if a == nil {
		return AlertResult{}, nil
	}
	r, ok := ruleFor(event, outcome)
	if !ok {
		return AlertResult{}, nil
	}
	windowMs := r.window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, segment(event), segment(outcome), segment(ip), slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return AlertResult{}, fmt.Errorf("alert counter: %w", err)
	}
	return AlertResult{
		Triggered: count >= r.threshold,
		Count:     count,
		Threshold: r.threshold,
		Window:    r.window,
	}, nil
}

// Close releases the Redis connection pool.
func (a *AuditAlerter) Close() error {
	return a.client.Close()
}

func ruleFor(event, outcome string) (rule, bool) {
	byEvent, ok := rules[strings.TrimSpace(outcome)]
	if !ok {
		return rule{}, false
	}
	if r, ok := byEvent[strings.TrimSpace(event)]; ok {
		return r, true
	}
	r, ok := byEvent["*"]
	return r, ok
}

func segment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	return strings.NewReplacer(":", "_", "|", "_", " ", "_").Replace(in)
}
