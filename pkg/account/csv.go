package account

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"
)

// ImportCSV seeds or refreshes accounts from a CSV export of the billing
// sheet. The first row must be a header; recognized columns are bot_id,
// role, plan, api_key, api_secret, bearer_token, access_token,
// access_token_secret, and monthly_reset (RFC 3339 or YYYY-MM-DD).
// Unknown columns are ignored. Returns the number of imported rows.
func ImportCSV(ctx context.Context, store Store, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := cols["bot_id"]; !ok {
		return 0, fmt.Errorf("CSV header is missing bot_id column")
	}

	imported := 0
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return imported, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		a := &Account{
			BotID:             field("bot_id"),
			Role:              Role(field("role")),
			Plan:              field("plan"),
			APIKey:            field("api_key"),
			APISecret:         field("api_secret"),
			BearerToken:       field("bearer_token"),
			AccessToken:       field("access_token"),
			AccessTokenSecret: field("access_token_secret"),
		}
		if a.BotID == "" {
			return imported, fmt.Errorf("CSV line %d has an empty bot_id", line)
		}
		if a.Role == "" {
			a.Role = RoleAll
		}
		if !a.Role.Valid() {
			return imported, fmt.Errorf("CSV line %d has unknown role %q", line, a.Role)
		}

		if raw := field("monthly_reset"); raw != "" {
			reset, err := parseResetDate(raw)
			if err != nil {
				return imported, fmt.Errorf("CSV line %d: %w", line, err)
			}
			a.MonthlyReset = &reset
		}

		if err := store.Upsert(ctx, a); err != nil {
			return imported, fmt.Errorf("failed to import bot %s: %w", a.BotID, err)
		}
		imported++
	}

	return imported, nil
}

func parseResetDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid monthly_reset value %q", raw)
}
