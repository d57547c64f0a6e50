// SPDX-License-Identifier: MPL-2.0

package linker

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const minBannerWidth = 70

// wrapPreserving puts source in its own function scope without moving any
// line: line k of source is line k of the result.
func wrapPreserving(source string) string {
	return "(function(){" + source + "\n}).call(this);\n"
}

// sourceWidth is the column the line numbers of every file in inputs align
// to: the longest line, but at least minBannerWidth.
func sourceWidth(inputs []Input) int {
	width := minBannerWidth
	for _, in := range inputs {
		for l := range strings.SplitSeq(in.Source, "\n") {
			if n := utf8.RuneCountInString(l); n > width {
				width = n
			}
		}
	}
	return width
}

// wrapWithBanner puts source in its own function scope under a banner naming
// servePath, with every line suffixed by its original line number.
func wrapWithBanner(source, servePath string, width int) string {
	return "(function () {\n\n" + frame(source, servePath, width) + "\n}).call(this);\n\n\n\n\n\n"
}

// inlineWithBanner emits source directly in the enclosing scope under the
// same banner wrapWithBanner uses.
func inlineWithBanner(source, servePath string, width int) string {
	return frame(source, servePath, width) + "\n"
}

// frame draws the banner and the numbered lines of source. width must be at
// least the longest line.
func frame(source, servePath string, width int) string {
	lines := strings.Split(source, "\n")
	bannerWidth := width + 3

	divider := strings.Repeat("/", bannerWidth) + "\n"
	spacer := "// " + strings.Repeat(" ", bannerWidth-6) + " //\n"
	blank := strings.Repeat(" ", width) + " //\n"

	var b strings.Builder
	b.Grow(len(source) + len(lines)*(width+8) + 4*bannerWidth)

	b.WriteString(divider)
	b.WriteString(spacer)
	b.WriteString("// " + padRight(strings.TrimPrefix(servePath, "/"), bannerWidth-6) + " //\n")
	b.WriteString(spacer)
	b.WriteString(divider)
	b.WriteString(blank)
	for i, l := range lines {
		b.WriteString(padRight(l, width))
		b.WriteString(" // ")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
	}
	b.WriteString(divider)
	return b.String()
}

// padRight pads or truncates s to exactly n runes.
func padRight(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count == n {
		return s
	}
	if count < n {
		return s + strings.Repeat(" ", n-count)
	}
	runes := []rune(s)
	return string(runes[:n])
}
