package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	l := New("nonsense", "json")
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("unknown level should fall back to info, got %s", l.GetLevel())
	}
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.WithField("job", "hourly").Info("done")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json format expected: %v (%q)", err, buf.String())
	}
	if entry["job"] != "hourly" || entry["msg"] != "done" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if New("debug", "text").GetLevel() != logrus.DebugLevel {
		t.Fatalf("debug level not applied")
	}
}
