package prepopulate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torwatch/armctl/logpanel"
)

func TestFindLogFilePathPicksFirstFileEntry(t *testing.T) {
	path, ok := FindLogFilePath([]string{
		"notice stdout",
		"info file /var/log/tor/notices.log",
		"debug file /var/log/tor/debug.log",
	})
	require.True(t, ok)
	assert.Equal(t, "/var/log/tor/notices.log", path)
}

func TestFindLogFilePathNoneConfigured(t *testing.T) {
	_, ok := FindLogFilePath([]string{"notice stdout"})
	assert.False(t, ok)
}

func TestParseTimeFieldDropsFraction(t *testing.T) {
	h, m, s, ok := parseTimeField("14:05:09.123")
	require.True(t, ok)
	assert.Equal(t, 14, h)
	assert.Equal(t, 5, m)
	assert.Equal(t, 9, s)
}

func TestParseTimeFieldRejectsMalformed(t *testing.T) {
	_, _, _, ok := parseTimeField("not-a-time")
	assert.False(t, ok)
}

func TestFromLastOpeningMarkerKeepsMarkerLine(t *testing.T) {
	lines := []string{
		"Jul 01 00:00:00.000 [notice] first instance noise",
		"Jul 02 00:00:00.000 [notice] opening log file",
		"Jul 02 00:00:01.000 [notice] line after boundary",
	}
	got := fromLastOpeningMarker(lines)
	require.Len(t, got, 2)
	assert.Contains(t, got[0], "opening log file")
	assert.Contains(t, got[1], "line after boundary")
}

func TestFromLastOpeningMarkerKeepsLastOfSeveral(t *testing.T) {
	lines := []string{
		"x opening log file",
		"y opening log file",
		"z after",
	}
	got := fromLastOpeningMarker(lines)
	assert.Equal(t, []string{"y opening log file", "z after"}, got)
}

func TestFromLastOpeningMarkerNoMarkerReturnsAll(t *testing.T) {
	lines := []string{"a", "b"}
	got := fromLastOpeningMarker(lines)
	assert.Equal(t, lines, got)
}

type fakeOptionReader struct {
	logOption []string
}

func (f fakeOptionReader) GetOption(key string, def []string, multiple bool, suppressExc bool) ([]string, error) {
	if key == "Log" {
		return f.logOption, nil
	}
	return def, nil
}

func TestRunSeedsPanelFromLogFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "notices.log")
	content := "" +
		"Jul 29 00:00:00.000 [notice] some earlier instance\n" +
		"Jul 30 01:02:03.000 [notice] opening log file\n" +
		"Jul 30 01:02:04.000 [notice] Bootstrapped 100%\n" +
		"Jul 30 01:02:05.000 [warn] clock skew detected\n"
	require.NoError(t, os.WriteFile(logPath, []byte(content), 0o644))

	conn := fakeOptionReader{logOption: []string{"notice file " + logPath}}
	panel := logpanel.New(map[string]bool{"NOTICE": true, "WARN": true}, nil)

	Run(conn, panel, map[string]bool{"NOTICE": true, "WARN": true})

	lines := panel.RenderLines(200, 10)
	require.Len(t, lines, 3)
	assert.False(t, panel.IsPaused())
}

func TestRunNoopsWhenNoLogFileConfigured(t *testing.T) {
	conn := fakeOptionReader{logOption: []string{"notice stdout"}}
	panel := logpanel.New(map[string]bool{"NOTICE": true}, nil)
	Run(conn, panel, map[string]bool{"NOTICE": true})
	assert.Empty(t, panel.RenderLines(200, 10))
}
