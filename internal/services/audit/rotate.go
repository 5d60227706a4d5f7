package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// Rotate rewrites the audit log, dropping records older than retentionDays
// based on each record's own timestamp. This is the only operation that
// ever rewrites the file; everything else is append-only.
func (s *Service) Rotate(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %d days", retentionDays)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.logPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to open audit log: %w", err)
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	var kept [][]byte
	dropped := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)

		var stamped struct {
			Timestamp time.Time `json:"timestamp"`
		}
		if err := json.Unmarshal(line, &stamped); err != nil || stamped.Timestamp.IsZero() {
			// Unparseable lines are retained; rotation only drops records
			// it can positively date.
			kept = append(kept, line)
			continue
		}

		if stamped.Timestamp.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, line)
	}
	scanErr := scanner.Err()
	_ = f.Close()
	if scanErr != nil {
		return 0, fmt.Errorf("failed to scan audit log: %w", scanErr)
	}

	if dropped == 0 {
		return 0, nil
	}

	tmp := s.logPath + ".rotate"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to create rotation file: %w", err)
	}
	for _, line := range kept {
		if _, err := out.Write(append(line, '\n')); err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
			return 0, fmt.Errorf("failed to write rotation file: %w", err)
		}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}

	if err := os.Rename(tmp, s.logPath); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("failed to swap rotated audit log: %w", err)
	}

	s.logger.Info().
		Int("dropped", dropped).
		Int("retention_days", retentionDays).
		Msg("Rotated audit log")

	return dropped, nil
}

// ScheduleRotation runs Rotate on a cron schedule. Returns the started
// scheduler so the caller can stop it at shutdown; a nil scheduler means no
// schedule was configured.
func (s *Service) ScheduleRotation(schedule string, retentionDays int) (*cron.Cron, error) {
	if schedule == "" {
		return nil, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Rotate(retentionDays); err != nil {
			s.logger.Warn().Err(err).Msg("Scheduled audit rotation failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid rotation schedule %q: %w", schedule, err)
	}

	c.Start()
	return c, nil
}
