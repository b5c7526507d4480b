package capability

import (
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"github.com/samber/lo"
)

// MissingBinaryError is returned when a required executable is not on PATH.
type MissingBinaryError struct {
	Names []string
}

func (e *MissingBinaryError) Error() string {
	return fmt.Sprintf("missing executables: %s", strings.Join(e.Names, ", "))
}

// BinaryChecker verifies that external executables can be resolved.
type BinaryChecker struct {
	lookPath func(string) (string, error)
}

func NewBinaryChecker() *BinaryChecker {
	return &BinaryChecker{lookPath: exec.LookPath}
}

// Require returns a MissingBinaryError listing every name that cannot be found.
func (c *BinaryChecker) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if _, err := c.lookPath(name); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &MissingBinaryError{Names: missing}
	}
	return nil
}

var transportSchemes = []string{"ws", "wss", "http", "https"}

// TransportCheck verifies the speech service endpoint can be reached by a
// duplex socket.
func TransportCheck(endpoint string) Check {
	return Check{
		Name: "transport",
		Probe: func() error {
			if strings.TrimSpace(endpoint) == "" {
				return fmt.Errorf("no realtime endpoint configured")
			}
			parsed, err := url.Parse(endpoint)
			if err != nil {
				return fmt.Errorf("invalid realtime endpoint: %w", err)
			}
			if !lo.Contains(transportSchemes, strings.ToLower(parsed.Scheme)) {
				return fmt.Errorf("endpoint scheme %q does not support websockets", parsed.Scheme)
			}
			if parsed.Host == "" {
				return fmt.Errorf("realtime endpoint has no host")
			}
			return nil
		},
	}
}

// BinaryCheck builds a check that requires command on PATH.
func (c *BinaryChecker) BinaryCheck(name string, command string) Check {
	return Check{
		Name: name,
		Probe: func() error {
			return c.Require(command)
		},
	}
}
