package models

import "strings"

// Language describes how a script language is executed: the file extension
// the source is mounted under and the command that runs it.
type Language struct {
	Name      string `json:"name"`
	Extension string `json:"extension"`
	Command   string `json:"command"`
}

// CommandArgs splits the command into argv form for a container engine.
func (l Language) CommandArgs() []string {
	return strings.Fields(l.Command)
}

var languages = []Language{
	{Name: "Python", Extension: "py", Command: "python -u"},
	{Name: "JavaScript", Extension: "js", Command: "node"},
}

// LanguageByName looks up a language case-insensitively.
func LanguageByName(name string) (Language, bool) {
	for _, l := range languages {
		if strings.EqualFold(l.Name, name) {
			return l, true
		}
	}
	return Language{}, false
}

// ValidLanguage reports whether name refers to a supported language.
func ValidLanguage(name string) bool {
	_, ok := LanguageByName(name)
	return ok
}

// Languages returns the supported languages.
func Languages() []Language {
	out := make([]Language, len(languages))
	copy(out, languages)
	return out
}
