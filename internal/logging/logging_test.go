package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wisp-renderer/wisp-installer/internal/logging"
)

func TestLoggerLevels(t *testing.T) {
	cases := []struct {
		note  string
		level logging.Level
		exp   []string
	}{
		{note: "error only", level: logging.ErrorLevel, exp: []string{"error"}},
		{note: "warn", level: logging.WarnLevel, exp: []string{"warn", "error"}},
		{note: "info", level: logging.InfoLevel, exp: []string{"info", "warn", "error"}},
		{note: "debug", level: logging.DebugLevel, exp: []string{"debug", "info", "warn", "error"}},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			var buf bytes.Buffer
			log := logging.NewLogger(logging.Config{Level: tc.level, Format: logging.JSONFormat, Output: &buf})

			log.Debugf("d %d", 1)
			log.Infof("i %d", 2)
			log.Warnf("w %d", 3)
			log.Errorf("e %d", 4)

			var levels []string
			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]any
				if err := json.Unmarshal([]byte(line), &entry); err != nil {
					t.Fatalf("invalid log line %q: %v", line, err)
				}
				levels = append(levels, entry["level"].(string))
			}

			if diff := cmp.Diff(tc.exp, levels); diff != "" {
				t.Fatalf("unexpected levels (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNoticeIgnoresLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: logging.ErrorLevel, Format: logging.JSONFormat, Output: &buf})

	log.Warnf("filtered")
	log.Noticef("using %s", "plain text")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected a single log line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "warn" || entry["message"] != "using plain text" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: logging.InfoLevel, Format: logging.JSONFormat, Output: &buf})

	log.With("submodule", "deps/glm").Infof("updated")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["submodule"] != "deps/glm" || entry["message"] != "updated" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	log := logging.NewLogger(logging.Config{Level: logging.InfoLevel, Output: &buf, NoColor: true})

	log.Warnf("using plain text to authenticate with %s", "https://example.com/x.git")

	if !strings.Contains(buf.String(), "WRN using plain text to authenticate with https://example.com/x.git") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}
