package actuator

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// SysfsPWMRoot is where the kernel exposes PWM controllers.
const SysfsPWMRoot = "/sys/class/pwm"

// PWM drives one channel of a sysfs PWM controller.
type PWM struct {
	dir    string
	period time.Duration
}

// OpenPWM exports channel on pwmchip<chip> under root if needed, sets the
// period, starts at zero duty and enables the output.
func OpenPWM(root string, chip, channel int, period time.Duration) (*PWM, error) {
	if period <= 0 {
		return nil, fmt.Errorf("pwm period must be positive, got %v", period)
	}
	chipDir := filepath.Join(root, fmt.Sprintf("pwmchip%d", chip))
	dir := filepath.Join(chipDir, fmt.Sprintf("pwm%d", channel))

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := writeAttr(filepath.Join(chipDir, "export"), strconv.Itoa(channel)); err != nil {
			return nil, fmt.Errorf("export pwm channel %d: %w", channel, err)
		}
	}

	p := &PWM{dir: dir, period: period}
	// duty_cycle must never exceed period, so clear it before changing period.
	if err := p.write("duty_cycle", "0"); err != nil {
		return nil, err
	}
	if err := p.write("period", strconv.FormatInt(period.Nanoseconds(), 10)); err != nil {
		return nil, err
	}
	if err := p.write("enable", "1"); err != nil {
		return nil, err
	}
	return p, nil
}

// SetDuty sets the duty cycle to pct percent of the period.
func (p *PWM) SetDuty(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("duty %d%% out of range", pct)
	}
	duty := p.period.Nanoseconds() * int64(pct) / 100
	return p.write("duty_cycle", strconv.FormatInt(duty, 10))
}

// Close zeroes the duty cycle and disables the output.
func (p *PWM) Close() error {
	var errs []error
	if err := p.write("duty_cycle", "0"); err != nil {
		errs = append(errs, err)
	}
	if err := p.write("enable", "0"); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *PWM) write(attr, value string) error {
	if err := writeAttr(filepath.Join(p.dir, attr), value); err != nil {
		return fmt.Errorf("pwm %s: %w", attr, err)
	}
	return nil
}

// writeAttr writes a sysfs attribute. Sysfs files exist already, so the file
// is never created.
func writeAttr(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
