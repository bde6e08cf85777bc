package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildBinary compiles the bot once per test into a temp dir.
func buildBinary(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary exec test is unix-focused")
	}

	goMod, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err)
	repoRoot := filepath.Dir(strings.TrimSpace(string(goMod)))
	require.NotEqual(t, ".", repoRoot, "go env GOMOD returned empty")

	binary := filepath.Join(t.TempDir(), "deepseek-bot")
	build := exec.Command("go", "build", "-o", binary, "./cmd/deepseek-bot")
	build.Dir = repoRoot
	build.Env = os.Environ()
	out, err := build.CombinedOutput()
	require.NoError(t, err, string(out))
	return binary
}

// isolatedEnv points every config and data lookup at dir.
func isolatedEnv(dir string) []string {
	env := []string{
		"HOME=" + dir,
		"XDG_CONFIG_HOME=" + filepath.Join(dir, "config"),
		"XDG_DATA_HOME=" + filepath.Join(dir, "data"),
		"PATH=" + os.Getenv("PATH"),
	}
	return env
}

func TestStandaloneBinaryRunsOutsideRepo(t *testing.T) {
	binary := buildBinary(t)
	outside := t.TempDir()

	version := exec.Command(binary, "version")
	version.Dir = outside
	version.Env = isolatedEnv(outside)
	out, err := version.CombinedOutput()
	require.NoError(t, err, string(out))
	assert.True(t, strings.HasPrefix(string(out), "deepseek-bot "), string(out))

	help := exec.Command(binary, "--help")
	help.Dir = outside
	help.Env = isolatedEnv(outside)
	out, err = help.CombinedOutput()
	require.NoError(t, err, string(out))
	for _, sub := range []string{"serve", "ask", "ledger"} {
		assert.Contains(t, string(out), sub)
	}
}

func TestStandaloneBinaryLedgerNoteAndList(t *testing.T) {
	binary := buildBinary(t)
	outside := t.TempDir()
	storePath := filepath.Join(outside, "ledger", "data.json")

	env := append(isolatedEnv(outside), "DEEPSEEK_BOT_DB_PATH="+storePath)

	note := exec.Command(binary, "ledger", "note", "42", "vip", "tester")
	note.Dir = outside
	note.Env = env
	out, err := note.CombinedOutput()
	require.NoError(t, err, string(out))

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "vip tester")

	list := exec.Command(binary, "ledger", "list", "-o", "json")
	list.Dir = outside
	list.Env = env
	out, err = list.Output()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"note": "vip tester"`)
}
