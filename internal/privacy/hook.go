package privacy

import "github.com/sirupsen/logrus"

// MaskingHook masks identifying log fields before any formatter sees them.
// Install it unless verbose logging was requested.
type MaskingHook struct{}

func (MaskingHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (MaskingHook) Fire(entry *logrus.Entry) error {
	entry.Data = logrus.Fields(MaskSensitiveFields(entry.Data))
	return nil
}
