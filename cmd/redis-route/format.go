package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/raniellyferreira/redis-replica-router/protocol"
)

// formatReply renders v the way redis-cli does.
func formatReply(v protocol.Value, indent string) string {
	switch v.Type {
	case protocol.TypeSimpleString:
		return string(v.Data)
	case protocol.TypeError:
		return "(error) " + string(v.Data)
	case protocol.TypeInteger:
		return "(integer) " + strconv.FormatInt(v.Integer, 10)
	case protocol.TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return strconv.Quote(string(v.Data))
	case protocol.TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		if len(v.Array) == 0 {
			return "(empty array)"
		}
		var b strings.Builder
		width := len(strconv.Itoa(len(v.Array)))
		for i, item := range v.Array {
			if i > 0 {
				b.WriteString("\n" + indent)
			}
			prefix := fmt.Sprintf("%*d) ", width, i+1)
			b.WriteString(prefix)
			b.WriteString(formatReply(item, indent+strings.Repeat(" ", len(prefix))))
		}
		return b.String()
	default:
		return fmt.Sprintf("(unknown %c)", v.Type)
	}
}
