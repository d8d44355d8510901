package main

import (
	"context"
	"errors"
	"net"

	"imagehoster/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Name {
		case "invalid_signature":
			lines = append(lines, "hint: sign with the account's posting key.")
		case "no_such_account":
			lines = append(lines, "hint: check the account name and the server's rpc_node.")
		case "qouta_exceeded":
			lines = append(lines, "hint: upload quota exhausted; retry after the limit window.")
		case "deplorable":
			lines = append(lines, "hint: the account's reputation is below the upload threshold.")
		case "payload_too_large":
			lines = append(lines, "hint: the file exceeds the server's max_image_size.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase IMAGEHOSTER_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure an imagehoster server is reachable at --server.",
			"hint: start a local server with: imagehoster serve",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
