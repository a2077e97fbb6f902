package payload

import (
	"fmt"
	"strings"
)

// Preview renders the one-line, human readable form of a request that is
// stored on the Message record.
func Preview(req Request) string {
	switch req.Kind() {
	case KindText:
		return req.Message
	case KindMedia:
		label := "[" + strings.ToLower(req.Media.Kind) + "]"
		if req.Media.Caption != "" {
			return label + " " + req.Media.Caption
		}
		if req.Media.Filename != "" {
			return label + " " + req.Media.Filename
		}
		return label
	case KindInteractive:
		return fmt.Sprintf("[interactive:%s] %s", req.Interactive.Type, req.Interactive.Body)
	case KindReaction:
		return fmt.Sprintf("[reaction] %s", req.Reaction.Emoji)
	case KindTemplate:
		var values []string
		for _, p := range req.Template.BodyParams {
			if p.Text != "" {
				values = append(values, p.Text)
			}
		}
		if len(values) == 0 {
			return fmt.Sprintf("[template] %s", req.Template.Name)
		}
		return fmt.Sprintf("[template] %s (%s)", req.Template.Name, strings.Join(values, ", "))
	default:
		return ""
	}
}
