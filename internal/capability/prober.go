package capability

import (
	"fmt"

	"tutorvoice/internal/domain"
	"tutorvoice/internal/logger"
)

// Check is one named capability requirement.
type Check struct {
	Name  string
	Probe func() error
}

// Prober reports whether the runtime supports a voice session. Checks run in
// the order given; the first failure decides the reason.
type Prober struct {
	checks []Check
}

// NewProber builds a prober. Callers pass the transport check first, then
// microphone, then playback.
func NewProber(checks ...Check) *Prober {
	return &Prober{checks: checks}
}

func (p *Prober) Probe() domain.CapabilityReport {
	for _, check := range p.checks {
		if err := runCheck(check); err != nil {
			reason := fmt.Sprintf("%s unavailable: %v", check.Name, err)
			logger.Warn("voice capability missing", "component", "capability", "check", check.Name, "err", err)
			return domain.CapabilityReport{Supported: false, Reason: reason}
		}
	}
	return domain.CapabilityReport{Supported: true}
}

func runCheck(check Check) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	if check.Probe == nil {
		return nil
	}
	return check.Probe()
}

// Static returns a prober that always yields report.
func Static(report domain.CapabilityReport) *Prober {
	if report.Supported {
		return NewProber()
	}
	return NewProber(Check{Name: "static", Probe: func() error { return fmt.Errorf("%s", report.Reason) }})
}
