// Package clock queries an SNTP server and compares the synchronized
// time with the local clock. Event timestamps elsewhere in the
// application come from whichever source the caller picks.
package clock

import (
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// DefaultHost is the public pool queried when none is configured.
const DefaultHost = "pool.ntp.org"

type Result struct {
	Server time.Time
	Local  time.Time
	Offset time.Duration
}

// Check performs one SNTP query against host.
func Check(host string) (Result, error) {
	if host == "" {
		host = DefaultHost
	}
	response, err := ntp.Query(host)
	if err != nil {
		return Result{}, fmt.Errorf("sntp query to %s failed: %w", host, err)
	}
	if err := response.Validate(); err != nil {
		return Result{}, fmt.Errorf("sntp response from %s invalid: %w", host, err)
	}
	local := time.Now()
	return Result{
		Server: local.Add(response.ClockOffset),
		Local:  local,
		Offset: response.ClockOffset,
	}, nil
}
