package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterDefaults(t *testing.T) {
	f := Filter{Exclude: DefaultExclude, Protect: DefaultProtect}

	tests := map[string]struct {
		rel       string
		excluded  bool
		protected bool
	}{
		"plain file":          {rel: "README.md"},
		"nested file":         {rel: "skills/run/SKILL.md"},
		"top plans dir":       {rel: "plans", excluded: true},
		"file in plans":       {rel: "plans/roadmap.md", excluded: true},
		"nested plans":        {rel: "skills/plans/x.md", excluded: true},
		"plans-like name":     {rel: "plansx/file.md"},
		"git dir":             {rel: ".git", protected: true},
		"git contents":        {rel: ".git/HEAD", protected: true},
		"nested jj":           {rel: "vendor/.jj/store", protected: true},
		"svn and hg":          {rel: "a/.svn", protected: true},
		"gitignore not meta":  {rel: ".gitignore"},
		"root is never match": {rel: "."},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.excluded, f.Excluded(tt.rel))
			assert.Equal(t, tt.protected, f.Protected(tt.rel))
		})
	}
}

func TestFilterSlashPatterns(t *testing.T) {
	f := Filter{Exclude: []string{"docs/internal", "**/*.tmp", "/build/"}}

	assert.True(t, f.Excluded("docs/internal"))
	assert.True(t, f.Excluded("docs/internal/notes.md"))
	assert.False(t, f.Excluded("other/docs/internal"))
	assert.True(t, f.Excluded("a/b/c.tmp"))
	assert.True(t, f.Excluded("c.tmp"))
	assert.True(t, f.Excluded("build/out.bin"))
	assert.False(t, f.Excluded("src/build.go"))
}

func TestFilterEmpty(t *testing.T) {
	var f Filter
	assert.False(t, f.Excluded("anything"))
	assert.False(t, f.Protected(".git"))
}
