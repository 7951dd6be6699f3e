package main

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestShortenPath(t *testing.T) {
	cases := []struct {
		name  string
		path  string
		width int
		want  string
	}{
		{"fits", "a/b.txt", 20, "a/b.txt"},
		{"no limit", "very/long/directory/name/file.txt", 0, "very/long/directory/name/file.txt"},
		{"drops leading dirs", "very/long/directory/name/file.txt", 20, ".../name/file.txt"},
		{"elides long name", "abcdefghijklmnopqrstuvwxyz.txt", 11, "abcd....txt"},
		{"elides name under dirs", "dir/abcdefghijklmnopqrstuvwxyz.txt", 11, "abcd....txt"},
		{"tiny width", "abcdef", 2, "ab"},
		{"wide runes", "写真/旅行/東京タワー.jpg", 12, "東京....jpg"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := shortenPath(c.path, c.width)
			assert.Equal(t, c.want, got)
			if c.width > 0 {
				assert.LessOrEqual(t, runewidth.StringWidth(got), c.width)
			}
		})
	}
}
