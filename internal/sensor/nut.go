package sensor

import (
	"context"
	"fmt"
	"time"

	gonut "github.com/robbiet480/go.nut"

	"github.com/sweeney/powerdraw/internal/config"
)

// NUT samples power through a upsd daemon fronting the board's metered
// supply. On a read error the connection is marked stale; the next read
// reconnects automatically before fetching variables.
type NUT struct {
	host     string
	port     int
	username string
	password string
	upsName  string
	pollStep time.Duration
	conn     *gonut.Client
	stale    bool
}

// NewNUT dials upsd and returns a ready sensor, or an error if the initial
// connection fails.
func NewNUT(cfg config.SensorConfig) (*NUT, error) {
	s := &NUT{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		upsName:  cfg.UPSName,
		pollStep: cfg.PollStep.Duration,
	}
	if s.pollStep <= 0 {
		s.pollStep = 250 * time.Millisecond
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *NUT) connect() error {
	conn, err := gonut.Connect(s.host, s.port)
	if err != nil {
		return fmt.Errorf("connecting to NUT at %s:%d: %w", s.host, s.port, err)
	}
	if s.username != "" {
		if _, err := conn.Authenticate(s.username, s.password); err != nil {
			_, _ = conn.Disconnect()
			return fmt.Errorf("authenticating with NUT: %w", err)
		}
	}
	s.conn = &conn
	s.stale = false
	return nil
}

// Sample reads instantaneous watts every pollStep for the duration of
// window and returns their mean. The final step is truncated so the call
// blocks for window, not window rounded up to a step boundary.
func (s *NUT) Sample(ctx context.Context, window time.Duration) (float64, error) {
	deadline := time.Now().Add(window)
	var sum float64
	n := 0

	for {
		w, err := s.readWatts()
		if err != nil {
			return 0, err
		}
		sum += w
		n++

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		step := s.pollStep
		if step > remaining {
			step = remaining
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(step):
		}
	}
	return sum / float64(n), nil
}

// readWatts fetches the current variable set and derives watts from it.
// If the connection is stale it reconnects first.
func (s *NUT) readWatts() (float64, error) {
	if s.stale {
		if err := s.connect(); err != nil {
			return 0, err
		}
	}

	upsList, err := s.conn.GetUPSList()
	if err != nil {
		s.stale = true
		return 0, fmt.Errorf("listing UPS: %w", err)
	}

	var target *gonut.UPS
	for i := range upsList {
		if upsList[i].Name == s.upsName {
			target = &upsList[i]
			break
		}
	}
	if target == nil {
		return 0, fmt.Errorf("UPS %q not found in upsd", s.upsName)
	}

	nutVars, err := target.GetVariables()
	if err != nil {
		s.stale = true
		return 0, fmt.Errorf("getting variables for %q: %w", s.upsName, err)
	}

	vars := make(map[string]string, len(nutVars))
	for _, v := range nutVars {
		vars[v.Name] = fmt.Sprintf("%v", v.Value)
	}
	w, ok := wattsFromVars(vars)
	if !ok {
		return 0, fmt.Errorf("UPS %q reports no usable power variables", s.upsName)
	}
	return w, nil
}

// Close disconnects from upsd.
func (s *NUT) Close() error {
	if s.conn != nil {
		_, err := s.conn.Disconnect()
		s.conn = nil
		return err
	}
	return nil
}
