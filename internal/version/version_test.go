package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersionStrings(t *testing.T) {
	assert.Contains(t, Short(), Version)
	assert.Contains(t, Short(), Revision)

	detailed := Detailed()
	assert.Contains(t, detailed, Version)
	assert.Contains(t, detailed, runtime.GOOS+"/"+runtime.GOARCH)
	assert.True(t, strings.HasPrefix(WithApp(Short()), AppName+" "))
}

func TestFillFromBuildInfo(t *testing.T) {
	origVersion, origRevision, origBuildDate := Version, Revision, BuildDate
	t.Cleanup(func() {
		Version, Revision, BuildDate = origVersion, origRevision, origBuildDate
	})

	tests := []struct {
		name                           string
		version, revision, buildDate   string
		mainVersion                    string
		settings                       map[string]string
		wantVersion, wantRev, wantDate string
	}{
		{
			name:        "dev build takes vcs data",
			version:     devVersion,
			revision:    "unknown",
			buildDate:   "unknown",
			mainVersion: "v1.2.3",
			settings: map[string]string{
				"vcs.revision": "abcdef1234567890",
				"vcs.modified": "true",
				"vcs.time":     "2025-12-12T01:00:00Z",
			},
			wantVersion: "1.2.3",
			wantRev:     "abcdef123456+dirty",
			wantDate:    "2025-12-12T01:00:00Z",
		},
		{
			name:        "ldflags win",
			version:     "2.0.0",
			revision:    "cafe",
			buildDate:   "yesterday",
			mainVersion: "v1.2.3",
			settings:    map[string]string{"vcs.revision": "beef", "vcs.time": "today"},
			wantVersion: "2.0.0",
			wantRev:     "cafe",
			wantDate:    "yesterday",
		},
		{
			name:        "devel main module",
			version:     devVersion,
			revision:    "unknown",
			buildDate:   "unknown",
			mainVersion: "(devel)",
			settings:    map[string]string{},
			wantVersion: devVersion,
			wantRev:     "unknown",
			wantDate:    "unknown",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			Version, Revision, BuildDate = tc.version, tc.revision, tc.buildDate
			fillFromBuildInfo(tc.mainVersion, tc.settings)
			assert.Equal(t, tc.wantVersion, Version)
			assert.Equal(t, tc.wantRev, Revision)
			assert.Equal(t, tc.wantDate, BuildDate)
		})
	}
}
