package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// DiscordNotifier posts a high-urgency alert to a Discord incoming webhook.
// No Discord SDK is in use anywhere in the reference pack, so this speaks
// the webhook's plain JSON contract directly over net/http rather than
// pulling in a library for a single POST.
type DiscordNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewDiscordNotifier constructs a DiscordNotifier posting to webhookURL.
func NewDiscordNotifier(webhookURL string) *DiscordNotifier {
	return &DiscordNotifier{webhookURL: webhookURL, httpClient: &http.Client{}}
}

type discordPayload struct {
	Content string `json:"content"`
}

func (n *DiscordNotifier) Notify(ctx context.Context, alert Alert) error {
	content := fmt.Sprintf("**High urgency ticket %s** [%s] urgency=%.2f assigned=%s\n%s",
		alert.TicketID, alert.Category, alert.Urgency, orNone(alert.AssignedAgent), alert.Subject)
	if alert.MasterIncident != "" {
		content += fmt.Sprintf("\nmaster incident: %s", alert.MasterIncident)
	}

	body, err := json.Marshal(discordPayload{Content: content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook returned status %d", resp.StatusCode)
	}
	return nil
}
