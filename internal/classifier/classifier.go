// Package classifier maps job failures to a retry decision.
package classifier

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/RezaEskandarii/taskfire/custom_errors"
	"github.com/RezaEskandarii/taskfire/internal/store"
)

type Category string

const (
	CategoryInfrastructure Category = "infrastructure"
	CategoryClient         Category = "client"
	CategoryUnknown        Category = "unknown"
)

type Classification struct {
	Category  Category
	Retryable bool
	Reason    string
}

var (
	infrastructure = Classification{Category: CategoryInfrastructure, Retryable: true}
	client         = Classification{Category: CategoryClient, Retryable: false}
	unknown        = Classification{Category: CategoryUnknown, Retryable: true}
)

type rule struct {
	signals []string
	result  Classification
	reason  string
}

// Fallback table for errors raised outside this codebase, checked in order.
// Unrecognized failures retry so unanticipated faults never silently drop work.
var rules = []rule{
	{
		signals: []string{"not found"},
		result:  client,
		reason:  "entity not found",
	},
	{
		signals: []string{"timeout", "timed out", "deadline exceeded", "connection", "database", "storage", "econnrefused"},
		result:  infrastructure,
		reason:  "storage or connection failure",
	},
	{
		signals: []string{"invalid", "missing", "required", "malformed"},
		result:  client,
		reason:  "invalid input",
	},
	{
		signals: []string{"network", "unreachable", "enotfound", "econnreset", "no route to host"},
		result:  infrastructure,
		reason:  "network unreachable",
	},
}

// Classify never returns a zero Classification; a nil error is treated as unknown.
func Classify(err error) Classification {
	if err == nil {
		return withReason(unknown, "no error")
	}

	if kind, ok := custom_errors.KindOf(err); ok {
		switch kind {
		case custom_errors.KindValidation:
			return withReason(client, "invalid input")
		case custom_errors.KindNotFound:
			return withReason(client, "entity not found")
		case custom_errors.KindInfrastructure:
			return withReason(infrastructure, "infrastructure failure")
		}
	}

	if errors.Is(err, store.ErrNotFound) || errors.Is(err, sql.ErrNoRows) {
		return withReason(client, "entity not found")
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) {
		return withReason(infrastructure, "storage or connection failure")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return withReason(infrastructure, "network unreachable")
	}

	msg := strings.ToLower(err.Error())
	for _, r := range rules {
		for _, signal := range r.signals {
			if strings.Contains(msg, signal) {
				return withReason(r.result, r.reason)
			}
		}
	}

	return withReason(unknown, "unrecognized failure")
}

func withReason(c Classification, reason string) Classification {
	c.Reason = reason
	return c
}
