package extractor

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const plainTextLanguage = "text"

var codeFormatter = chromahtml.New(
	chromahtml.WithClasses(true),
	chromahtml.PreventSurroundingPre(true),
)

// HighlightCode guesses the language of a code snippet and returns it together
// with class-based highlighted markup. Snippets no lexer recognises come back
// as escaped plain text.
func HighlightCode(code string) (string, string, error) {
	lexer := lexers.Analyse(code)
	if lexer == nil {
		return plainTextLanguage, html.EscapeString(code), nil
	}
	language := languageName(lexer)
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return "", "", fmt.Errorf("failed to tokenise %s code: %w", language, err)
	}

	var buf bytes.Buffer
	if err := codeFormatter.Format(&buf, styles.Fallback, iterator); err != nil {
		return "", "", fmt.Errorf("failed to format %s code: %w", language, err)
	}

	return language, buf.String(), nil
}

func languageName(lexer chroma.Lexer) string {
	config := lexer.Config()
	if config == nil {
		return plainTextLanguage
	}
	if len(config.Aliases) > 0 {
		return config.Aliases[0]
	}
	return strings.ReplaceAll(strings.ToLower(config.Name), " ", "-")
}
