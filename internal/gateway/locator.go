// Locator strategy normalization: the W3C surface accepts five
// strategies, the agent understands two.
package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/danielraffel/tauri-webdriver/internal/w3c"
)

// LocatorRequest is the W3C find-element request body
type LocatorRequest struct {
	Using string `json:"using"`
	Value string `json:"value"`
}

// NormalizeLocator converts a W3C locator strategy to the agent's
// css/xpath vocabulary. Link-text strategies become XPath queries over
// anchor text.
func NormalizeLocator(strategy, value string) (using, normalized string, err *w3c.Error) {
	switch strategy {
	case "css selector":
		return "css", value, nil
	case "tag name":
		return "css", value, nil
	case "xpath":
		return "xpath", value, nil
	case "link text":
		return "xpath", fmt.Sprintf(`//a[normalize-space(text())=%s]`, xpathString(value)), nil
	case "partial link text":
		return "xpath", fmt.Sprintf(`//a[contains(text(),%s)]`, xpathString(value)), nil
	default:
		return "", "", w3c.ErrInvalidArgument(
			fmt.Sprintf("unsupported locator strategy: %s", strategy))
	}
}

// xpathString renders s as an XPath string literal. Values containing
// both quote kinds fall back to a concat() expression.
func xpathString(s string) string {
	hasDouble := false
	hasSingle := false
	for _, r := range s {
		switch r {
		case '"':
			hasDouble = true
		case '\'':
			hasSingle = true
		}
	}
	switch {
	case !hasDouble:
		return `"` + s + `"`
	case !hasSingle:
		return `'` + s + `'`
	default:
		// Split on double quotes and stitch the pieces back together.
		out := `concat(`
		rest := s
		first := true
		for len(rest) > 0 {
			i := 0
			for i < len(rest) && rest[i] != '"' {
				i++
			}
			if !first {
				out += `,`
			}
			first = false
			out += `"` + rest[:i] + `"`
			if i < len(rest) {
				out += `,'"'`
				rest = rest[i+1:]
			} else {
				rest = ""
			}
		}
		return out + `)`
	}
}

// decodeLocator parses and normalizes a find request body
func decodeLocator(body json.RawMessage) (using, value string, werr *w3c.Error) {
	var req LocatorRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", "", w3c.ErrInvalidArgument("malformed locator body")
	}
	if req.Using == "" || req.Value == "" {
		return "", "", w3c.ErrInvalidArgument("missing 'using' or 'value'")
	}
	return NormalizeLocator(req.Using, req.Value)
}
