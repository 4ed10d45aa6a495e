package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"uciboard/enginetest"
)

func TestMain(m *testing.M) {
	enginetest.Main()
	os.Exit(m.Run())
}

// startFake launches the test binary as an engine. quirks is a list understood
// by enginetest.ParseQuirks.
func startFake(t *testing.T, quirks string) (*Session, string) {
	t.Helper()

	path, err := enginetest.Path()
	if err != nil {
		t.Fatal(err)
	}

	logPath := filepath.Join(t.TempDir(), "commands.log")
	t.Setenv(enginetest.EnvLog, logPath)
	t.Setenv(enginetest.EnvQuirks, quirks)

	s := NewSession(path, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Dispose)

	return s, logPath
}
