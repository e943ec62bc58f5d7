package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Masterminds/semver/v3"
)

const maxUpdateResponseBytes = 64 * 1024

// UpdateInfo is the update endpoint's answer.
type UpdateInfo struct {
	Latest       string `json:"latest"`
	NeedsUpgrade bool   `json:"needsUpgrade"`
}

// UpdateResult is the outcome of an update check.
type UpdateResult struct {
	Current string
	Latest  string
	// Newer is set when the endpoint reports a newer version or asks for an upgrade.
	Newer bool
}

// CheckUpdates queries endpoint with the running version and install id and
// compares the reported latest version against current.
func CheckUpdates(ctx context.Context, client *http.Client, endpoint, current, installID string) (UpdateResult, error) {
	result := UpdateResult{Current: current}

	base, err := url.Parse(endpoint)
	if err != nil {
		return result, fmt.Errorf("invalid update url: %w", err)
	}
	query := base.Query()
	query.Set("version", current)
	query.Set("installID", installID)
	base.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), http.NoBody)
	if err != nil {
		return result, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return result, fmt.Errorf("fetch %s: %w", base.Redacted(), err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return result, fmt.Errorf("fetch %s: HTTP %d", base.Redacted(), resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpdateResponseBytes+1))
	if err != nil {
		return result, fmt.Errorf("read response: %w", err)
	}
	if len(data) > maxUpdateResponseBytes {
		return result, errors.New("response too large")
	}

	var info UpdateInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return result, fmt.Errorf("decode update info: %w", err)
	}
	result.Latest = info.Latest

	newer, err := IsNewer(current, info.Latest)
	if err != nil {
		return result, err
	}
	result.Newer = newer || info.NeedsUpgrade
	return result, nil
}

// IsNewer reports whether latest is a higher version than current.
func IsNewer(current, latest string) (bool, error) {
	mine, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("parse current version %q: %w", current, err)
	}
	theirs, err := semver.NewVersion(latest)
	if err != nil {
		return false, fmt.Errorf("parse latest version %q: %w", latest, err)
	}
	return mine.LessThan(theirs), nil
}
