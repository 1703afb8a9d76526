package log

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/stretchr/testify/assert"
)

func TestInitLoggerTo_Levels(t *testing.T) {
	var buf bytes.Buffer

	InitLoggerTo(&buf, "info")
	log.Debug("hidden")
	log.WithField("queue", "ingest").Info("created")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, " I created queue=ingest\n")
}

func TestInitLoggerTo_DefaultIsError(t *testing.T) {
	var buf bytes.Buffer

	InitLoggerTo(&buf, "")
	log.Warn("quiet")
	log.Error("loud")

	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), " E loud")
}

func TestTracef(t *testing.T) {
	var buf bytes.Buffer

	InitLoggerTo(&buf, "debug")
	Tracef("step %d", 1)
	assert.Empty(t, buf.String())

	InitLoggerTo(&buf, "TRACE")
	Tracef("step %d", 2)
	assert.Contains(t, buf.String(), " T step 2")
}
