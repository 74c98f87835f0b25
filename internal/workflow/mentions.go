package workflow

import "strings"

// mentionDecoration are the runes a chat client wraps around a user id.
const mentionDecoration = "<@!>"

// ParseMentions splits raw on whitespace and strips mention decoration from
// each token. Tokens that are empty after stripping are dropped. refs holds
// the original token for every returned id, in the same order.
func ParseMentions(raw string) (ids, refs []string) {
	for _, tok := range strings.Fields(raw) {
		id := strings.Trim(tok, mentionDecoration)
		if id == "" {
			continue
		}
		ids = append(ids, id)
		refs = append(refs, tok)
	}
	return ids, refs
}
