package extract

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/joseph-ayodele/invoice-trust/constants"
)

// PlainText returns documents that already are text. Anything else is unsupported.
type PlainText struct{}

func (PlainText) Name() string { return constants.StrategyPlainText }

func (PlainText) Extract(_ context.Context, doc Document) (string, error) {
	if doc.Format() != constants.TEXT {
		return "", fmt.Errorf("plaintext: unsupported format %q", doc.Format())
	}
	if !utf8.Valid(doc.Content) {
		return "", fmt.Errorf("plaintext: content is not valid UTF-8")
	}
	return string(doc.Content), nil
}
