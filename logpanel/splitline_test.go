package logpanel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitLineBreaksOnNearbySpace(t *testing.T) {
	line1, line2 := SplitLine("the quick brown fox jumps over the lazy dog", 20)
	assert.LessOrEqual(t, len(line1), 20)
	assert.True(t, strings.HasPrefix(line2, "  "))
}

func TestSplitLineHyphenatesWhenBreakTooFarBack(t *testing.T) {
	line1, _ := SplitLine("supercalifragilisticexpialidocious", 10)
	assert.True(t, strings.HasSuffix(line1, "-"))
}

func TestSplitLineTruncatesOverlongContinuation(t *testing.T) {
	msg := strings.Repeat("word ", 40)
	_, line2 := SplitLine(msg, 15)
	assert.LessOrEqual(t, len(line2), 15)
}
