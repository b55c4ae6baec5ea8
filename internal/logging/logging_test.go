package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipe-qc-server/internal/domain"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

func TestNewLoggerTextFormat(t *testing.T) {
	logger, err := NewLogger(domain.LoggingConfig{Level: "warn", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
}

func TestNewLoggerInvalid(t *testing.T) {
	_, err := NewLogger(domain.LoggingConfig{Level: "verbose", Format: "json"})
	assert.Error(t, err)

	_, err = NewLogger(domain.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
