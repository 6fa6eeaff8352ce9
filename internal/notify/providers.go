package notify

import (
	"fmt"
	"net/url"
	"strings"

	"roadguard/internal/models"
)

// requiredFields lists, per provider, the fields a structured target must
// set. Keys are the names used under notify_targets in the config file.
var requiredFields = map[string][]string{
	"telegram": {"bot_token", "chat_id"},
	"discord":  {"webhook_url"},
	"slack":    {"webhook_url"},
	"email":    {"host", "port", "from", "to"},
	"generic":  {"webhook_url"},
}

// secretFields are never echoed back in logs or history
var secretFields = map[string]bool{
	"bot_token": true, "webhook_url": true, "password": true,
}

// ValidateTarget checks that a structured target names a known provider
// and sets its required fields.
func ValidateTarget(t models.NotifyTarget) error {
	req, ok := requiredFields[t.Type]
	if !ok {
		return fmt.Errorf("unknown provider: %s", t.Type)
	}
	for _, k := range req {
		if strings.TrimSpace(t.Fields[k]) == "" {
			return fmt.Errorf("%s: %s is required", t.Type, k)
		}
	}
	return nil
}

// MaskSecrets returns a copy of fields with secret values masked
func MaskSecrets(fields map[string]string) map[string]string {
	masked := make(map[string]string, len(fields))
	for k, v := range fields {
		if secretFields[k] && v != "" {
			v = SecretMask
		}
		masked[k] = v
	}
	return masked
}

const SecretMask = "********"

// ResolveURLs merges raw Shoutrrr URLs with structured targets built into
// URLs. Invalid targets are reported, not skipped silently.
func ResolveURLs(raw []string, targets []models.NotifyTarget) ([]string, error) {
	out := append([]string(nil), raw...)
	for i, t := range targets {
		u, err := BuildShoutrrrURL(t)
		if err != nil {
			return nil, fmt.Errorf("notify target %d: %w", i+1, err)
		}
		out = append(out, u)
	}
	return out, nil
}

// BuildShoutrrrURL assembles a Shoutrrr URL from a structured target
func BuildShoutrrrURL(t models.NotifyTarget) (string, error) {
	if err := ValidateTarget(t); err != nil {
		return "", err
	}
	f := t.Fields
	switch t.Type {
	case "telegram":
		return buildTelegramURL(f), nil
	case "discord":
		return buildDiscordURL(f)
	case "slack":
		return buildSlackURL(f)
	case "email":
		return buildEmailURL(f), nil
	case "generic":
		return buildGenericURL(f), nil
	}
	return "", fmt.Errorf("unknown provider: %s", t.Type)
}

// telegram://botToken@telegram?chats=chatID
func buildTelegramURL(f map[string]string) string {
	params := url.Values{}
	params.Set("chats", strings.TrimSpace(f["chat_id"]))
	if f["thread_id"] != "" {
		params.Set("topic", strings.TrimSpace(f["thread_id"]))
	}
	return fmt.Sprintf("telegram://%s@telegram?%s", strings.TrimSpace(f["bot_token"]), params.Encode())
}

// discord://token@webhookID from https://discord.com/api/webhooks/{id}/{token}
func buildDiscordURL(f map[string]string) (string, error) {
	parts := strings.Split(strings.TrimRight(strings.TrimSpace(f["webhook_url"]), "/"), "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", fmt.Errorf("invalid Discord webhook URL format")
	}
	u := fmt.Sprintf("discord://%s@%s", parts[len(parts)-1], parts[len(parts)-2])
	if f["username"] != "" {
		u += "?username=" + url.QueryEscape(f["username"])
	}
	return u, nil
}

// slack://a/b/c from https://hooks.slack.com/services/a/b/c
func buildSlackURL(f map[string]string) (string, error) {
	parts := strings.Split(strings.TrimRight(strings.TrimSpace(f["webhook_url"]), "/"), "/")
	if len(parts) < 3 {
		return "", fmt.Errorf("invalid Slack webhook URL format")
	}
	u := fmt.Sprintf("slack://%s/%s/%s", parts[len(parts)-3], parts[len(parts)-2], parts[len(parts)-1])
	if f["channel"] != "" {
		u += "?channel=" + url.QueryEscape(f["channel"])
	}
	return u, nil
}

// smtp://[user:pass@]host:port/?from=addr&to=addr
func buildEmailURL(f map[string]string) string {
	userinfo := ""
	if f["username"] != "" {
		userinfo = url.PathEscape(f["username"])
		if f["password"] != "" {
			userinfo += ":" + url.PathEscape(f["password"])
		}
		userinfo += "@"
	}

	params := url.Values{}
	params.Set("from", strings.TrimSpace(f["from"]))
	params.Set("to", strings.TrimSpace(f["to"]))
	params.Set("subject", "RoadGuard accident alert")
	if f["subject"] != "" {
		params.Set("subject", f["subject"])
	}
	switch f["security"] {
	case "none":
		params.Set("useStartTLS", "no")
	case "ssl":
		params.Set("encryption", "ssl")
	default:
		params.Set("useStartTLS", "yes")
	}

	return fmt.Sprintf("smtp://%s%s:%s/?%s", userinfo,
		strings.TrimSpace(f["host"]), strings.TrimSpace(f["port"]), params.Encode())
}

// generic+https://example.com/path
func buildGenericURL(f map[string]string) string {
	u := strings.TrimSpace(f["webhook_url"])
	switch {
	case strings.HasPrefix(u, "generic+"), strings.HasPrefix(u, "generic://"):
		return u
	case strings.HasPrefix(u, "https://"), strings.HasPrefix(u, "http://"):
		return "generic+" + u
	}
	return "generic+https://" + u
}

// Redact reduces a Shoutrrr URL to scheme and host, which is what history
// rows and logs show. Tokens live in the userinfo and path.
func Redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "invalid-url"
	}
	if u.Host == "" {
		return u.Scheme + "://"
	}
	return u.Scheme + "://" + u.Hostname()
}
