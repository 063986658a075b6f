package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguageByName(t *testing.T) {
	lang, ok := LanguageByName("python")
	assert.True(t, ok)
	assert.Equal(t, "py", lang.Extension)
	assert.Equal(t, []string{"python", "-u"}, lang.CommandArgs())

	lang, ok = LanguageByName("JAVASCRIPT")
	assert.True(t, ok)
	assert.Equal(t, "js", lang.Extension)
	assert.Equal(t, []string{"node"}, lang.CommandArgs())

	_, ok = LanguageByName("cobol")
	assert.False(t, ok)
	assert.False(t, ValidLanguage("cobol"))
	assert.True(t, ValidLanguage("Python"))
}

func TestLanguages_ReturnsCopy(t *testing.T) {
	langs := Languages()
	assert.Len(t, langs, 2)
	langs[0].Command = "mutated"
	fresh := Languages()
	assert.NotEqual(t, "mutated", fresh[0].Command)
}
