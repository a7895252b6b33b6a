package model

// Languages the editor accepts for an answer.
const (
	LanguageJavaScript = "javascript"
	LanguagePython     = "python"
	LanguageJava       = "java"
	LanguageCPP        = "cpp"
	LanguageC          = "c"
)

// DefaultLanguage is used for a fresh session with no persisted choice.
const DefaultLanguage = LanguageJavaScript

var starterTemplates = map[string]string{
	LanguageJavaScript: "// Write your JavaScript code here...\n\nfunction solution() {\n    \n}\n",
	LanguagePython:     "# Write your Python code here...\n\ndef solution():\n    pass\n",
	LanguageJava:       "// Write your Java code here...\n\npublic class Solution {\n    \n}\n",
	LanguageCPP:        "// Write your C++ code here...\n\n#include <iostream>\nusing namespace std;\n\nint main() {\n    return 0;\n}\n",
	LanguageC:          "// Write your C code here...\n\n#include <stdio.h>\n\nint main() {\n    return 0;\n}\n",
}

// ValidLanguage reports whether lang is one of the accepted languages.
func ValidLanguage(lang string) bool {
	_, ok := starterTemplates[lang]
	return ok
}

// StarterCode returns the boilerplate shown for a question with no saved
// draft. Unknown languages fall back to the default template.
func StarterCode(lang string) string {
	if tpl, ok := starterTemplates[lang]; ok {
		return tpl
	}
	return starterTemplates[DefaultLanguage]
}
