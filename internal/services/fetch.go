package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxDownloadBytes caps artifact downloads so a misbehaving provider cannot
// exhaust memory. Finished portrait clips stay well under this.
const maxDownloadBytes = 512 << 20

// Download fetches a remote artifact into memory and reports its content
// type. Transport failures and non-200 responses come back as transient.
func Download(ctx context.Context, client *http.Client, stage, rawURL string) ([]byte, string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(rawURL) == "" {
		return nil, "", Wrap(ErrValidation, stage, "download", "empty artifact url", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", Wrap(ErrValidation, stage, "download", "build request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, "", err
		}
		return nil, "", Wrap(ErrTransient, stage, "download", "request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", Wrap(ErrTransient, stage, "download", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", Wrap(ErrTransient, stage, "download", "read body", err)
	}
	if len(payload) > maxDownloadBytes {
		return nil, "", Wrap(ErrValidation, stage, "download", "artifact exceeds size limit", nil)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return payload, contentType, nil
}
