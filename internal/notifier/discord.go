package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/xtream_offline/internal/storage"
)

type Notifier interface {
	Notify(content string) error
}

type DiscordNotifier struct {
	WebhookURL string
}

func (d *DiscordNotifier) Notify(content string) error {
	if d.WebhookURL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	payload := map[string]string{"content": content}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	resp, err := http.Post(d.WebhookURL, "application/json", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

// DownloadFinishedMessage formats the completion notification for a record.
func DownloadFinishedMessage(rec *storage.DownloadRecord) string {
	return fmt.Sprintf("📥 Download finished: %s (%s)", rec.Title, humanize.Bytes(uint64(rec.TotalSize)))
}

// DownloadFailedMessage formats the failure notification for a record.
func DownloadFailedMessage(rec *storage.DownloadRecord) string {
	return fmt.Sprintf("⚠️ Download failed: %s: %s", rec.Title, rec.ErrorDetail)
}
